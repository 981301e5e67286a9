package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) AddSongHistory(ctx context.Context, e *HistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO song_history (guild_id, song_title, song_url, song_duration, requested_by, requested_by_name)
		VALUES (?,?,?,?,?,?)`,
		e.GuildID, e.Title, e.URL, e.DurationSec, e.RequestedBy, e.RequestedByName,
	)
	return err
}

func (r *Repo) GetSongHistory(ctx context.Context, guild string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT guild_id, song_title, song_url, song_duration, requested_by, requested_by_name, played_at
		FROM song_history WHERE guild_id = ?
		ORDER BY played_at DESC LIMIT ?`, guild, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var name sql.NullString
		if err := rows.Scan(&e.GuildID, &e.Title, &e.URL, &e.DurationSec, &e.RequestedBy, &name, &e.PlayedAt); err != nil {
			return nil, err
		}
		e.RequestedByName = name.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) SavePlaylist(ctx context.Context, guild, user, name string, songs []PlaylistSong) error {
	blob, err := json.Marshal(songs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_playlists (guild_id, user_id, playlist_name, songs)
		VALUES (?,?,?,?)
		ON CONFLICT(guild_id, user_id, playlist_name)
		DO UPDATE SET songs = excluded.songs, updated_at = CURRENT_TIMESTAMP`,
		guild, user, name, string(blob),
	)
	return err
}

// LoadPlaylist returns nil with no error when the playlist does not exist.
func (r *Repo) LoadPlaylist(ctx context.Context, guild, user, name string) ([]PlaylistSong, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT songs FROM user_playlists WHERE guild_id=? AND user_id=? AND playlist_name=?`,
		guild, user, name)

	var blob string
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var songs []PlaylistSong
	if err := json.Unmarshal([]byte(blob), &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

func (r *Repo) ListPlaylists(ctx context.Context, guild, user string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT playlist_name FROM user_playlists WHERE guild_id=? AND user_id=? ORDER BY playlist_name ASC`,
		guild, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) DeletePlaylist(ctx context.Context, guild, user, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_playlists WHERE guild_id=? AND user_id=? AND playlist_name=?`,
		guild, user, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO guild_settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT guild_id, default_volume, default_filter, auto_disconnect
		FROM guild_settings WHERE guild_id = ?`, guild)

	var s Settings
	var filter sql.NullString
	var autoDisconnect int
	if err := row.Scan(&s.GuildID, &s.DefaultVolume, &filter, &autoDisconnect); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.DefaultFilter = filter.String
	s.AutoDisconnect = autoDisconnect != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	autoDisconnect := 0
	if s.AutoDisconnect {
		autoDisconnect = 1
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE guild_settings SET
		  default_volume=?,
		  default_filter=?,
		  auto_disconnect=?,
		  updated_at=CURRENT_TIMESTAMP
		WHERE guild_id=?`,
		s.DefaultVolume, s.DefaultFilter, autoDisconnect, s.GuildID,
	)
	return err
}
