package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/router"
)

// ErrUnknownSession is returned for a session ID the manager does not hold.
var ErrUnknownSession = errors.New("unknown session")

// Manager opens sessions over the cached dataset and keeps them by ID.
type Manager struct {
	cache  *dataset.Cache
	path   string
	router *router.Router
	opt    Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager loading path through cache.
func NewManager(cache *dataset.Cache, path string, r *router.Router, opt Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cache: cache, path: path, router: r, opt: opt, logger: logger, sessions: map[string]*Session{}}
}

// Open creates a session over the current dataset. Existing sessions keep the dataset
// they were opened on.
func (m *Manager) Open() (*Session, error) {
	ds, err := m.cache.Get(m.path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	s, err := NewSession(ds, m.router, m.opt, m.logger)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("session opened", zap.String("session", s.ID), zap.Int("rows", ds.Len()))
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Close drops a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	delete(m.sessions, id)
	return nil
}

// IDs lists open sessions, oldest first.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Created.Before(all[j].Created) })
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.ID
	}
	return out
}

// Reload drops the cached dataset; the next Open reads the file again.
func (m *Manager) Reload() error {
	m.cache.Invalidate()
	ds, err := m.cache.Get(m.path)
	if err != nil {
		return fmt.Errorf("reload dataset: %w", err)
	}
	m.logger.Info("dataset reloaded", zap.String("path", m.path), zap.Int("rows", ds.Len()))
	return nil
}

// Router returns the router sessions dispatch through.
func (m *Manager) Router() *router.Router { return m.router }
