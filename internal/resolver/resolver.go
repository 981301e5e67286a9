// Package resolver turns free-text queries and URLs into playable track
// descriptors. Failures never escape as errors: callers get an empty
// Result and keep moving.
package resolver

import (
	"context"
	"math/rand"
	"regexp"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/intity01/sakudoko-bot/internal/spotify"
)

// TrackInfo is a fully resolved track. Immutable once constructed.
type TrackInfo struct {
	Title       string
	StreamURL   string
	PageURL     string
	DurationSec int // 0 for live or unknown duration
	Thumbnail   string
	Live        bool
}

// Entry is one playlist element. Track is nil when the element still needs
// resolution at play time; Query is what to resolve it with.
type Entry struct {
	Title string
	Query string
	Track *TrackInfo
}

// Playlist is a resolved multi-track result.
type Playlist struct {
	Title   string
	Entries []Entry
}

// Result is a single track, a playlist, or nothing.
type Result struct {
	Track    *TrackInfo
	Playlist *Playlist
}

func (r Result) Found() bool { return r.Track != nil || r.Playlist != nil }

// provider is one backing source. A provider may decline an operation by
// returning an error; the adapter then moves down the chain.
type provider interface {
	Single(ctx context.Context, url string) (*TrackInfo, error)
	Search(ctx context.Context, text string) (*TrackInfo, error)
	Playlist(ctx context.Context, url string) (*Playlist, error)
}

// Adapter classifies queries and drives the provider chain.
type Adapter struct {
	timeout    time.Duration
	providers  []provider
	spotify    *spotify.Client
	spotifyMax int
}

const defaultSpotifyMax = 25

// New builds the production chain: yt-dlp first, the lightweight YouTube
// search client as fallback. sp may be nil when Spotify is not configured.
func New(timeout time.Duration, sp *spotify.Client) *Adapter {
	return &Adapter{
		timeout:    timeout,
		providers:  []provider{ytdlpProvider{}, ytsearchProvider{}},
		spotify:    sp,
		spotifyMax: defaultSpotifyMax,
	}
}

var (
	playlistIDPattern = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]+)`)
	videoIDPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
	}
)

func playlistID(q string) string {
	if m := playlistIDPattern.FindStringSubmatch(q); m != nil {
		return m[1]
	}
	return ""
}

func videoID(q string) string {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(q); m != nil {
			return m[1]
		}
	}
	return ""
}

// Resolve classifies query and asks each provider in turn. An explicit
// playlist identifier wins over a video identifier, matching how YouTube
// watch URLs carry both.
func (a *Adapter) Resolve(parent context.Context, query string) Result {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()

	if query == "" {
		return Result{}
	}

	if spotify.IsSpotify(query) {
		return a.resolveSpotify(ctx, query)
	}

	if playlistID(query) != "" {
		for _, p := range a.providers {
			pl, err := p.Playlist(ctx, query)
			if err == nil && pl != nil && len(pl.Entries) > 0 {
				return Result{Playlist: pl}
			}
			if err != nil {
				zlog.Warn().Err(err).Str("query", query).Msg("playlist resolution failed, trying next provider")
			}
		}
		return Result{}
	}

	if id := videoID(query); id != "" {
		url := "https://www.youtube.com/watch?v=" + id
		for _, p := range a.providers {
			t, err := p.Single(ctx, url)
			if err == nil && t != nil && t.StreamURL != "" {
				return Result{Track: t}
			}
			if err != nil {
				zlog.Warn().Err(err).Str("query", query).Msg("single resolution failed, trying next provider")
			}
		}
		return Result{}
	}

	for _, p := range a.providers {
		t, err := p.Search(ctx, query)
		if err == nil && t != nil && t.StreamURL != "" {
			return Result{Track: t}
		}
		if err != nil {
			zlog.Warn().Err(err).Str("query", query).Msg("search failed, trying next provider")
		}
	}
	return Result{}
}

func (a *Adapter) resolveSpotify(ctx context.Context, query string) Result {
	if a.spotify == nil {
		zlog.Warn().Str("query", query).Msg("spotify link but spotify is not configured")
		return Result{}
	}
	typ, id, err := spotify.ParseID(query)
	if err != nil {
		zlog.Warn().Err(err).Str("query", query).Msg("invalid spotify identifier")
		return Result{}
	}

	switch typ {
	case "track":
		t, err := a.spotify.GetTrack(ctx, id)
		if err != nil {
			zlog.Warn().Err(err).Msg("spotify track lookup failed")
			return Result{}
		}
		return a.searchChain(ctx, t.Query())
	case "playlist", "album":
		var (
			tracks []spotify.Track
			title  string
		)
		if typ == "playlist" {
			tracks, title, err = a.spotify.GetPlaylist(ctx, id, a.spotifyMax)
		} else {
			tracks, title, err = a.spotify.GetAlbum(ctx, id, a.spotifyMax)
		}
		if err != nil || len(tracks) == 0 {
			zlog.Warn().Err(err).Str("type", typ).Msg("spotify collection lookup failed")
			return Result{}
		}
		pl := &Playlist{Title: title}
		for _, t := range tracks {
			pl.Entries = append(pl.Entries, Entry{Title: t.Name, Query: t.Query()})
		}
		return Result{Playlist: pl}
	}
	return Result{}
}

func (a *Adapter) searchChain(ctx context.Context, text string) Result {
	for _, p := range a.providers {
		t, err := p.Search(ctx, text)
		if err == nil && t != nil && t.StreamURL != "" {
			return Result{Track: t}
		}
	}
	return Result{}
}

// fillerKeywords seed autoplay when the queue runs dry.
var fillerKeywords = []string{"lofi hip hop", "pop hits", "EDM", "chill music"}

// FillerQuery picks a random keyword, searches music for it, and returns a
// watch URL to enqueue. The second return is false when nothing was found.
func (a *Adapter) FillerQuery(ctx context.Context) (string, bool) {
	kw := fillerKeywords[rand.Intn(len(fillerKeywords))]
	url, err := musicSearch(ctx, kw)
	if err != nil || url == "" {
		zlog.Warn().Err(err).Str("keyword", kw).Msg("autoplay filler search failed")
		return "", false
	}
	return url, true
}
