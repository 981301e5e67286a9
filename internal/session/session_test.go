package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/resolver"
)

type startCall struct {
	URL    string
	Filter Filter
}

type fakeTransport struct {
	mu          sync.Mutex
	starts      []startCall
	gains       []float64
	stops       int
	pauses      int
	resumes     int
	connects    int
	disconnects int
	connectErr  error
	startErr    error
	done        chan error

	started chan startCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{started: make(chan startCall, 16)}
}

func (f *fakeTransport) Connect(context.Context, string, string) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	f.mu.Unlock()
	return err
}

func (f *fakeTransport) Start(_ context.Context, streamURL string, filter Filter) (<-chan error, error) {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return nil, err
	}
	call := startCall{URL: streamURL, Filter: filter}
	f.starts = append(f.starts, call)
	d := make(chan error, 1)
	f.done = d
	f.mu.Unlock()
	f.started <- call
	return d, nil
}

// finish signals natural or errored completion of the active track.
func (f *fakeTransport) finish(err error) {
	f.mu.Lock()
	d := f.done
	f.done = nil
	f.mu.Unlock()
	if d != nil {
		d <- err
	}
}

func (f *fakeTransport) SetGain(g float64) {
	f.mu.Lock()
	f.gains = append(f.gains, g)
	f.mu.Unlock()
}

func (f *fakeTransport) Pause() {
	f.mu.Lock()
	f.pauses++
	f.mu.Unlock()
}

func (f *fakeTransport) Resume() {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	f.stops++
	d := f.done
	f.done = nil
	f.mu.Unlock()
	if d != nil {
		d <- nil
	}
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type fakeResolver struct {
	mu       sync.Mutex
	results  map[string]resolver.Result
	filler   string
	fillerOK bool
	calls    []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{results: make(map[string]resolver.Result)}
}

func (f *fakeResolver) track(query, title string) *resolver.TrackInfo {
	t := &resolver.TrackInfo{Title: title, StreamURL: "stream://" + title, PageURL: "page://" + title}
	f.mu.Lock()
	f.results[query] = resolver.Result{Track: t}
	f.mu.Unlock()
	return t
}

func (f *fakeResolver) Resolve(_ context.Context, query string) resolver.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	return f.results[query]
}

func (f *fakeResolver) FillerQuery(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filler, f.fillerOK
}

type fakeGateway struct {
	mu            sync.Mutex
	nextRoomID    string
	createErr     error
	eligible      []string
	elevated      map[string]bool
	created       []string
	deleted       []string
	announcements []string
	nowPlaying    map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextRoomID: "room-1",
		elevated:   make(map[string]bool),
		nowPlaying: make(map[string]string),
	}
}

func (f *fakeGateway) CreateRoomChannel(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, f.nextRoomID)
	return f.nextRoomID, nil
}

func (f *fakeGateway) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeGateway) GrantAccess(context.Context, string, string, string) error { return nil }

func (f *fakeGateway) EligibleOccupants(string, string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eligible
}

func (f *fakeGateway) IsElevated(_, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elevated[userID]
}

func (f *fakeGateway) Announce(channelID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcements = append(f.announcements, message)
}

func (f *fakeGateway) announceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.announcements)
}

func (f *fakeGateway) UpdateNowPlaying(channelID string, track *resolver.TrackInfo, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowPlaying[channelID] = track.Title
}

func (f *fakeGateway) ClearNowPlaying(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nowPlaying, channelID)
}

func testConfig() *config.Config {
	return &config.Config{
		Timeout:         300 * time.Second,
		WarningWindow:   60 * time.Second,
		WatchdogTick:    time.Hour,
		SyncCooldown:    50 * time.Millisecond,
		RequestCooldown: 50 * time.Millisecond,
		ResolveTimeout:  time.Second,
	}
}

type harness struct {
	s  *Session
	tr *fakeTransport
	rs *fakeResolver
	gw *fakeGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr := newFakeTransport()
	rs := newFakeResolver()
	gw := newFakeGateway()
	s := newSession(testConfig(), "guild-1", gw, tr, rs, nil, nil)
	s.sleepFn = func(time.Duration) {}
	t.Cleanup(func() { s.Close(context.Background()) })
	return &harness{s: s, tr: tr, rs: rs, gw: gw}
}

func (h *harness) awaitStart(t *testing.T) startCall {
	t.Helper()
	select {
	case c := <-h.tr.started:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return startCall{}
	}
}

func (h *harness) awaitStatus(t *testing.T, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.s.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, h.s.Status())
}

func entryFor(query string) QueueEntry {
	return QueueEntry{Query: query, RequesterID: "u1", RequesterName: "user one"}
}
