package session

import (
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

const DefaultIdleTimeout = 30 * time.Minute

type ManagerConfig struct {
	DetectTimeout time.Duration // Maximum time for one detector call
	IdleTimeout   time.Duration // Sessions that are unused for this long are discarded
}

// Manager owns the sessions of all users
type Manager struct {
	log      logs.Log
	provider Provider
	config   ManagerConfig

	lock     sync.Mutex
	sessions map[string]*Session
	lastUsed map[string]time.Time

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func NewManager(log logs.Log, provider Provider, config ManagerConfig) *Manager {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.DetectTimeout <= 0 {
		config.DetectTimeout = DefaultDetectTimeout
	}
	return &Manager{
		log:      log,
		provider: provider,
		config:   config,
		sessions: map[string]*Session{},
		lastUsed: map[string]time.Time{},
		shutdown: make(chan struct{}),
	}
}

// Create a new session with a random ID
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.provider, m.config.DetectTimeout)
	m.lock.Lock()
	m.sessions[s.ID] = s
	m.lastUsed[s.ID] = time.Now()
	n := len(m.sessions)
	m.lock.Unlock()
	m.log.Infof("Created session %v (%v active)", s.ID, n)
	return s
}

// Get returns the session, and marks it as used
func (m *Manager) Get(id string) (*Session, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[id]
	if ok {
		m.lastUsed[id] = time.Now()
	}
	return s, ok
}

// GetOrCreate returns the session with the given ID, or a new session if there is none.
// The second return value is true if a new session was created.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

func (m *Manager) Delete(id string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.sessions, id)
	delete(m.lastUsed, id)
}

func (m *Manager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sessions)
}

// ExpireIdle discards sessions that have not been used since now - IdleTimeout.
// Returns the number of sessions discarded.
func (m *Manager) ExpireIdle(now time.Time) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for id, t := range m.lastUsed {
		if now.Sub(t) > m.config.IdleTimeout {
			delete(m.sessions, id)
			delete(m.lastUsed, id)
			n++
		}
	}
	if n != 0 {
		m.log.Infof("Expired %v idle sessions (%v remain)", n, len(m.sessions))
	}
	return n
}

// StartExpiry runs ExpireIdle periodically, until Close is called
func (m *Manager) StartExpiry() {
	interval := max(m.config.IdleTimeout/10, time.Second)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.shutdown:
				return
			case now := <-ticker.C:
				m.ExpireIdle(now)
			}
		}
	}()
}

func (m *Manager) Close() {
	close(m.shutdown)
	m.wg.Wait()
}
