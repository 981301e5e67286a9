package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db *sql.DB
}

// HistoryEntry is one played track record.
type HistoryEntry struct {
	GuildID         string
	Title           string
	URL             string
	DurationSec     int
	RequestedBy     string
	RequestedByName string
	PlayedAt        time.Time
}

// PlaylistSong is one element of a saved playlist.
type PlaylistSong struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Settings holds per-guild defaults.
type Settings struct {
	GuildID        string
	DefaultVolume  int
	DefaultFilter  string
	AutoDisconnect bool
}
