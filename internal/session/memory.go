package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region memory-store
// Memory is an in-process Store with idle expiry. A janitor goroutine
// sweeps expired sessions until Close.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*Session
	config   Config
	now      func() time.Time
	logger   *zap.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory starts the janitor when config.TTL and config.JanitorInterval are
// both positive.
func NewMemory(config Config, logger *zap.Logger) *Memory {
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultConfig().MaxMessages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memory{
		sessions: make(map[string]*Session),
		config:   config,
		now:      time.Now,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if config.TTL > 0 && config.JanitorInterval > 0 {
		go m.janitor(config.JanitorInterval)
	} else {
		close(m.done)
	}
	return m
}

// #endregion memory-store

// #region operations
// Get returns a copy of the user's session; an unknown or expired user gets
// an empty one.
func (m *Memory) Get(userID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(userID)
	if !ok {
		return Session{UserID: userID}
	}
	return copySession(s)
}

// Put replaces the stored session, trimming history to the window.
func (m *Memory) Put(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copySession(&s)
	cp.History = m.trim(cp.History)
	cp.LastSeen = m.now()
	m.sessions[s.UserID] = &cp
}

// Append adds msgs to the history as one turn and returns the result.
func (m *Memory) Append(userID string, msgs ...Message) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(userID)
	if !ok {
		s = &Session{UserID: userID}
		m.sessions[userID] = s
	}
	s.History = m.trim(append(s.History, msgs...))
	s.Turns++
	s.LastSeen = m.now()
	return copySession(s)
}

// Evict forgets the user.
func (m *Memory) Evict(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// Active counts sessions that have not expired.
func (m *Memory) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.sessions {
		if _, ok := m.live(id); ok {
			n++
		}
	}
	return n
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Close stops the janitor and waits for it to exit.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

// #endregion operations

// #region helpers
func (m *Memory) janitor(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("expired sessions", zap.Int("count", n))
			}
		}
	}
}

// live must be called with mu held. Expired entries are removed.
func (m *Memory) live(userID string) (*Session, bool) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	if m.expired(s) {
		delete(m.sessions, userID)
		return nil, false
	}
	return s, true
}

func (m *Memory) expired(s *Session) bool {
	return m.config.TTL > 0 && m.now().Sub(s.LastSeen) > m.config.TTL
}

func (m *Memory) trim(h []Message) []Message {
	if over := len(h) - m.config.MaxMessages; over > 0 {
		h = h[over:]
	}
	return h
}

func copySession(s *Session) Session {
	cp := *s
	cp.History = append([]Message(nil), s.History...)
	return cp
}

// #endregion helpers
