package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

var errUnsupported = errors.New("operation not supported by this provider")

// ytsearchProvider is the fallback search path. yt-dlp's search scraper
// breaks more often than the lightweight search client, so when search
// fails upstream this provider locates the video and hands extraction back
// to yt-dlp with a direct watch URL.
type ytsearchProvider struct{}

func (ytsearchProvider) Single(context.Context, string) (*TrackInfo, error) {
	return nil, errUnsupported
}

func (ytsearchProvider) Playlist(context.Context, string) (*Playlist, error) {
	return nil, errUnsupported
}

func (ytsearchProvider) Search(ctx context.Context, text string) (*TrackInfo, error) {
	c := ytsearch.NewClient(nil)
	res, err := c.Search(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	if len(res.Results) == 0 {
		return nil, fmt.Errorf("no search results for %q", text)
	}
	url := "https://www.youtube.com/watch?v=" + res.Results[0].VideoID
	return ytdlpProvider{}.Single(ctx, url)
}

// musicSearch queries YouTube Music and returns a watch URL for a random
// track among the results.
func musicSearch(_ context.Context, keyword string) (string, error) {
	search := ytmusic.TrackSearch(keyword)
	result, err := search.Next()
	if err != nil {
		return "", fmt.Errorf("music search: %w", err)
	}
	if len(result.Tracks) == 0 {
		return "", fmt.Errorf("no music results for %q", keyword)
	}
	t := result.Tracks[rand.Intn(len(result.Tracks))]
	return "https://www.youtube.com/watch?v=" + t.VideoID, nil
}
