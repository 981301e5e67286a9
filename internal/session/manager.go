package session

import (
	"sync"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/repository"
)

// TransportFactory builds one audio transport per guild session.
type TransportFactory func(guildID string) AudioTransport

// Manager is the per-guild session registry. Guilds are fully independent;
// this map is the only process-wide shared structure.
type Manager struct {
	cfg       *config.Config
	gateway   RoomGateway
	resolver  TrackResolver
	repo      *repository.Repo
	transport TransportFactory

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg *config.Config, gw RoomGateway, res TrackResolver, repo *repository.Repo, tf TransportFactory) *Manager {
	return &Manager{
		cfg:       cfg,
		gateway:   gw,
		resolver:  res,
		repo:      repo,
		transport: tf,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the guild's session, creating it on first use.
func (m *Manager) Get(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[guildID]; ok {
		return s
	}
	s := newSession(m.cfg, guildID, m.gateway, m.transport(guildID), m.resolver, m.repo, m.remove)
	m.sessions[guildID] = s
	return s
}

// Peek returns the guild's session without creating one.
func (m *Manager) Peek(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

func (m *Manager) remove(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, guildID)
}

// Count reports the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
