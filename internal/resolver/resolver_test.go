package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	single   *TrackInfo
	search   *TrackInfo
	playlist *Playlist
	err      error

	singleCalls   []string
	searchCalls   []string
	playlistCalls []string
}

func (f *fakeProvider) Single(_ context.Context, url string) (*TrackInfo, error) {
	f.singleCalls = append(f.singleCalls, url)
	return f.single, f.err
}

func (f *fakeProvider) Search(_ context.Context, text string) (*TrackInfo, error) {
	f.searchCalls = append(f.searchCalls, text)
	return f.search, f.err
}

func (f *fakeProvider) Playlist(_ context.Context, url string) (*Playlist, error) {
	f.playlistCalls = append(f.playlistCalls, url)
	return f.playlist, f.err
}

func newTestAdapter(providers ...provider) *Adapter {
	return &Adapter{timeout: time.Second, providers: providers}
}

func TestPlaylistIDClassification(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"https://www.youtube.com/playlist?list=PLabc123_-XY", "PLabc123_-XY"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLxyz", "PLxyz"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", ""},
		{"just some text", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, playlistID(c.query), c.query)
	}
}

func TestVideoIDClassification(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"never gonna give you up", ""},
		{"tooshortid", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, videoID(c.query), c.query)
	}
}

func TestResolvePlaylistWinsOverVideo(t *testing.T) {
	p := &fakeProvider{playlist: &Playlist{Title: "mix", Entries: []Entry{{Query: "a"}}}}
	a := newTestAdapter(p)

	res := a.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLxyz")
	require.True(t, res.Found())
	require.NotNil(t, res.Playlist)
	assert.Equal(t, "mix", res.Playlist.Title)
	assert.Empty(t, p.singleCalls)
}

func TestResolveVideoNormalizesURL(t *testing.T) {
	p := &fakeProvider{single: &TrackInfo{Title: "song", StreamURL: "https://cdn/audio"}}
	a := newTestAdapter(p)

	res := a.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.True(t, res.Found())
	require.Len(t, p.singleCalls, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", p.singleCalls[0])
}

func TestResolveFallsThroughChain(t *testing.T) {
	broken := &fakeProvider{err: errors.New("scraper broke")}
	working := &fakeProvider{search: &TrackInfo{Title: "found", StreamURL: "https://cdn/audio"}}
	a := newTestAdapter(broken, working)

	res := a.Resolve(context.Background(), "some free text")
	require.True(t, res.Found())
	assert.Equal(t, "found", res.Track.Title)
	assert.Len(t, broken.searchCalls, 1)
	assert.Len(t, working.searchCalls, 1)
}

func TestResolveSkipsResultsWithoutStream(t *testing.T) {
	noStream := &fakeProvider{search: &TrackInfo{Title: "broken"}}
	working := &fakeProvider{search: &TrackInfo{Title: "ok", StreamURL: "https://cdn/audio"}}
	a := newTestAdapter(noStream, working)

	res := a.Resolve(context.Background(), "query")
	require.True(t, res.Found())
	assert.Equal(t, "ok", res.Track.Title)
}

func TestResolveNothingFound(t *testing.T) {
	a := newTestAdapter(&fakeProvider{err: errors.New("nope")})

	assert.False(t, a.Resolve(context.Background(), "query").Found())
	assert.False(t, a.Resolve(context.Background(), "").Found())
}

func TestResolveSpotifyWithoutClient(t *testing.T) {
	p := &fakeProvider{search: &TrackInfo{Title: "x", StreamURL: "https://cdn/a"}}
	a := newTestAdapter(p)

	res := a.Resolve(context.Background(), "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC")
	assert.False(t, res.Found())
	assert.Empty(t, p.searchCalls)
}

func TestResolveHonorsTimeout(t *testing.T) {
	slow := &slowProvider{delay: 200 * time.Millisecond}
	a := &Adapter{timeout: 20 * time.Millisecond, providers: []provider{slow}}

	start := time.Now()
	res := a.Resolve(context.Background(), "query")
	assert.False(t, res.Found())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

type slowProvider struct {
	delay time.Duration
}

func (s *slowProvider) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return errors.New("too slow anyway")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slowProvider) Single(ctx context.Context, _ string) (*TrackInfo, error) {
	return nil, s.wait(ctx)
}

func (s *slowProvider) Search(ctx context.Context, _ string) (*TrackInfo, error) {
	return nil, s.wait(ctx)
}

func (s *slowProvider) Playlist(ctx context.Context, _ string) (*Playlist, error) {
	return nil, s.wait(ctx)
}
