// Package session holds the per-guild playback orchestrator: queue,
// sequencer, room lifecycle, vote state, and the registry tying them
// together. One Session per guild; the Session mutex is the concurrency
// boundary and is never held across network calls.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/intity01/sakudoko-bot/internal/resolver"
)

// Status is the sequencer state.
type Status int

const (
	StatusIdle Status = iota
	StatusResolving
	StatusPlaying
	StatusAutoPlay
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusResolving:
		return "resolving"
	case StatusPlaying:
		return "playing"
	case StatusAutoPlay:
		return "autoplay"
	}
	return "unknown"
}

// Filter is an audio filter applied to the next started track only.
type Filter string

const (
	FilterNone      Filter = "none"
	FilterBass      Filter = "bass"
	FilterNightcore Filter = "nightcore"
	FilterPitch     Filter = "pitch"
)

// ParseFilter rejects unknown names instead of defaulting.
func ParseFilter(name string) (Filter, error) {
	switch Filter(name) {
	case FilterNone, FilterBass, FilterNightcore, FilterPitch:
		return Filter(name), nil
	}
	return FilterNone, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// QueueEntry is one pending request. Track is non-nil when resolution
// already happened at request time (playlist expansion pre-resolves titles
// but not streams, direct requests pre-resolve fully).
type QueueEntry struct {
	Query         string
	Title         string
	RequesterID   string
	RequesterName string
	Track         *resolver.TrackInfo
}

// DisplayTitle is what queue listings show before resolution.
func (e QueueEntry) DisplayTitle() string {
	if e.Track != nil && e.Track.Title != "" {
		return e.Track.Title
	}
	if e.Title != "" {
		return e.Title
	}
	return e.Query
}

// RoomGateway is what the orchestrator needs from the chat platform.
// Implementations perform network work and must be safe for concurrent use.
type RoomGateway interface {
	// CreateRoomChannel creates the scoped text channel visible to the
	// current occupants of the voice channel and returns its id.
	CreateRoomChannel(ctx context.Context, guildID, voiceChannelID, ownerID string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// GrantAccess re-grants room visibility to every current non-bot
	// occupant of the voice channel.
	GrantAccess(ctx context.Context, guildID, voiceChannelID, roomChannelID string) error
	// EligibleOccupants returns the ids of non-bot occupants who are not
	// self-muted or self-deafened. Always read live, never cached.
	EligibleOccupants(guildID, voiceChannelID string) []string
	IsElevated(guildID, userID string) bool
	Announce(channelID, message string)
	UpdateNowPlaying(channelID string, track *resolver.TrackInfo, requester string)
	ClearNowPlaying(channelID string)
}

// AudioTransport is what the orchestrator needs from the voice stack.
type AudioTransport interface {
	Connect(ctx context.Context, guildID, voiceChannelID string) error
	// Start begins playback of the stream and returns a channel that
	// receives exactly one value when playback ends, nil on natural
	// completion or an error on transport failure.
	Start(ctx context.Context, streamURL string, filter Filter) (<-chan error, error)
	// SetGain adjusts the live output gain (1.0 = unity). Takes effect
	// mid-stream; used for volume control and fades.
	SetGain(gain float64)
	Pause()
	Resume()
	Stop()
	Disconnect()
}

// TrackResolver materializes queries into playable descriptors.
type TrackResolver interface {
	Resolve(ctx context.Context, query string) resolver.Result
	FillerQuery(ctx context.Context) (string, bool)
}

var (
	ErrPermissionDenied = errors.New("not allowed")
	ErrUnknownFilter    = errors.New("unknown filter")
	ErrVolumeRange      = errors.New("volume must be between 0 and 200")
	ErrNoRoom           = errors.New("no active room")
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrRateLimited      = errors.New("rate limited")
	ErrCooldown         = errors.New("request cooldown active")
	ErrNotFound         = errors.New("nothing found for that query")
	ErrClosed           = errors.New("session closed")
)
