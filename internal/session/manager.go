package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/design"
)

// DefaultIdleTimeout is how long a session may sit unused before it is
// reaped.
const DefaultIdleTimeout = 30 * time.Minute

// ManagerConfig holds the collaborators shared by every session.
type ManagerConfig struct {
	Loader      Loader
	Editor      Editor
	Saver       Saver
	Size        canvas.Size
	IdleTimeout time.Duration
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Manager keeps the open sessions of the process.
type Manager struct {
	cfg   ManagerConfig
	guard *dispatchGuard

	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
}

// NewManager creates a manager with no open sessions.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Size == (canvas.Size{}) {
		cfg.Size = canvas.DefaultLogicalSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		guard:    &dispatchGuard{},
		sessions: make(map[string]*Session),
	}
}

// Size returns the logical canvas size of new sessions.
func (m *Manager) Size() canvas.Size {
	return m.cfg.Size
}

// Open starts a session editing page of d.
func (m *Manager) Open(ctx context.Context, d *design.Design, page int) (*Session, error) {
	id := uuid.NewString()
	s, err := Open(ctx, m.cfg.Loader, Config{
		ID:     id,
		Design: d,
		Page:   page,
		Size:   m.cfg.Size,
		Editor: m.cfg.Editor,
		Saver:  m.cfg.Saver,
		Logger: m.cfg.Logger,
		Now:    m.cfg.Now,
		guard:  m.guard,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Logger.Info().Str("session", id).Str("design", d.ID).Int("page", page).Int("open", n).Msg("session opened")
	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// IDs returns the ids of open sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes and forgets the session with the given id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Close()
	m.cfg.Logger.Info().Str("session", id).Msg("session closed")
	return nil
}

// Reap closes sessions idle for longer than the idle timeout and returns how
// many it closed. Sessions with a request in flight are left alone.
func (m *Manager) Reap() int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) && !m.guard.Busy(id) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		m.cfg.Logger.Info().Str("session", s.ID()).Msg("idle session reaped")
	}
	return len(stale)
}

// StartReaper runs Reap on a schedule. every is a cron interval such as
// time.Minute.
func (m *Manager) StartReaper(every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() { m.Reap() }); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	c.Start()

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	m.cfg.Logger.Debug().Dur("every", every).Dur("idle_timeout", m.cfg.IdleTimeout).Msg("session reaper started")
	return nil
}

// Shutdown stops the reaper, closes every session and waits for outstanding
// requests until ctx is done. No new request is admitted once it starts.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	for _, s := range sessions {
		s.Close()
	}
	m.guard.Drain(ctx)
}
