package scorer

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Manager keeps at most one open session per game.
type Manager struct {
	store  GameStore
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int]*Session
	opening  singleflight.Group
}

func NewManager(store GameStore, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[int]*Session),
	}
}

// Open returns the running session for gameID, opening one if needed.
// Concurrent opens of the same game share one load.
func (m *Manager) Open(ctx context.Context, gameID int) (*Session, error) {
	if s, ok := m.Get(gameID); ok {
		return s, nil
	}

	v, err, _ := m.opening.Do(strconv.Itoa(gameID), func() (interface{}, error) {
		if s, ok := m.Get(gameID); ok {
			return s, nil
		}
		s, err := Open(ctx, gameID, m.store, m.opts)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[gameID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) Get(gameID int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gameID]
	return s, ok
}

// Close ends the session of gameID. It reports false when none was open.
func (m *Manager) Close(gameID int) bool {
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	delete(m.sessions, gameID)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// CloseAll is used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.logger.Info("closed scorer sessions", slog.Int("count", len(sessions)))
	}
}

// Active returns the game IDs with an open session, ascending.
func (m *Manager) Active() []int {
	m.mu.Lock()
	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Ints(ids)
	return ids
}
