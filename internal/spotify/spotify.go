// Package spotify maps Spotify links to searchable track names using the
// client-credentials flow. No playback happens through Spotify; the names
// are fed back into the YouTube resolvers.
package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Track is the minimum needed to search a song elsewhere.
type Track struct {
	Name   string
	Artist string
}

// Query returns the search text for this track.
func (t Track) Query() string {
	if t.Artist == "" {
		return t.Name
	}
	return t.Name + " " + t.Artist
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(clientID, clientSecret string) (*Client, error) {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}, nil
}

// IsSpotify reports whether the query points at Spotify.
func IsSpotify(raw string) bool {
	return strings.HasPrefix(raw, "spotify:") || strings.Contains(raw, "open.spotify.com")
}

// ParseID splits a spotify: URI or open.spotify.com URL into its type and
// identifier.
func ParseID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type: %s", parts[0])
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil
}

func (c *Client) GetPlaylist(ctx context.Context, id spotify.ID, limit int) ([]Track, string, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return nil, "", err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var out []Track
	for {
		for _, it := range page.Items {
			if it.Track.Track == nil {
				continue
			}
			if limit > 0 && len(out) >= limit {
				return out, pl.Name, nil
			}
			t := it.Track.Track
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
		if page.Next == "" {
			break
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
	}
	return out, pl.Name, nil
}

func (c *Client) GetAlbum(ctx context.Context, id spotify.ID, limit int) ([]Track, string, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return nil, "", err
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var out []Track
	for {
		for _, t := range page.Tracks {
			if limit > 0 && len(out) >= limit {
				return out, alb.Name, nil
			}
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
		if page.Next == "" {
			break
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
	}
	return out, alb.Name, nil
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
