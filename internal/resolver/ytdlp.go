package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

var installOnce sync.Once

const (
	audioFormat      = "ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best"
	playlistMax      = 100
	trackPrintFields = "%(url)s\t%(title)s\t%(duration)s\t%(webpage_url)s\t%(is_live)s\t%(thumbnail)s"
)

// ytdlpProvider is the primary provider. It handles direct URLs, flat
// playlists, and free-text search through yt-dlp's ytsearch pseudo-URL.
type ytdlpProvider struct{}

func newYtdlp() *ytdlp.Command {
	installOnce.Do(func() {
		ytdlp.MustInstall(context.Background(), nil)
	})
	return ytdlp.New().
		NoWarnings().
		IgnoreConfig()
}

func (ytdlpProvider) Single(ctx context.Context, url string) (*TrackInfo, error) {
	res, err := newYtdlp().
		Format(audioFormat).
		NoPlaylist().
		Print(trackPrintFields).
		Run(ctx, "--skip-download", url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp extract: %w", err)
	}
	return parseTrackLine(res.Stdout)
}

func (ytdlpProvider) Search(ctx context.Context, text string) (*TrackInfo, error) {
	res, err := newYtdlp().
		Format(audioFormat).
		Print(trackPrintFields).
		Run(ctx, "--skip-download", "ytsearch1:"+text)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	return parseTrackLine(res.Stdout)
}

func (ytdlpProvider) Playlist(ctx context.Context, url string) (*Playlist, error) {
	res, err := newYtdlp().
		FlatPlaylist().
		PlaylistItems(fmt.Sprintf("1-%d", playlistMax)).
		Print("%(url)s\t%(title)s\t%(playlist_title)s").
		Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist fetch: %w", err)
	}

	pl := &Playlist{}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		if pl.Title == "" && parts[2] != "NA" {
			pl.Title = parts[2]
		}
		pl.Entries = append(pl.Entries, Entry{
			Title: naEmpty(parts[1]),
			Query: parts[0],
		})
	}
	if len(pl.Entries) == 0 {
		return nil, fmt.Errorf("playlist has no playable entries")
	}
	return pl, nil
}

// parseTrackLine maps one Print line to a TrackInfo. Live streams report
// no duration.
func parseTrackLine(stdout string) (*TrackInfo, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 6 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		live := strings.EqualFold(parts[4], "true")
		dur := 0
		if !live {
			if d, err := time.ParseDuration(parts[2] + "s"); err == nil {
				dur = int(d.Seconds())
			}
		}
		return &TrackInfo{
			Title:       naEmpty(parts[1]),
			StreamURL:   parts[0],
			PageURL:     naEmpty(parts[3]),
			DurationSec: dur,
			Thumbnail:   naEmpty(parts[5]),
			Live:        live,
		}, nil
	}
	return nil, fmt.Errorf("yt-dlp returned no usable track")
}

func naEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}
