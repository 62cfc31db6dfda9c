package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMemory(t *testing.T, cfg Config) (*Memory, *fakeClock) {
	t.Helper()
	cfg.JanitorInterval = 0
	m := NewMemory(cfg, nil)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	t.Cleanup(func() { m.Close() })
	return m, clock
}

func TestAppendKeepsWindow(t *testing.T) {
	m, _ := newTestMemory(t, Config{MaxMessages: 8})

	for i := 0; i < 6; i++ {
		m.Append("alice",
			Message{Role: RoleUser, Content: fmt.Sprintf("u%d", i)},
			Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	s := m.Get("alice")
	require.Len(t, s.History, 8)
	assert.Equal(t, "u2", s.History[0].Content)
	assert.Equal(t, "a5", s.History[7].Content)
	assert.Equal(t, 6, s.Turns)
}

func TestGetReturnsCopy(t *testing.T) {
	m, _ := newTestMemory(t, DefaultConfig())
	m.Append("alice", Message{Role: RoleUser, Content: "hola"})

	s := m.Get("alice")
	s.History[0].Content = "mutated"
	assert.Equal(t, "hola", m.Get("alice").History[0].Content)
}

func TestUnknownUserEmpty(t *testing.T) {
	m, _ := newTestMemory(t, DefaultConfig())
	s := m.Get("ghost")
	assert.Equal(t, "ghost", s.UserID)
	assert.Empty(t, s.History)
	assert.Zero(t, s.Turns)
}

func TestIdleExpiry(t *testing.T) {
	m, clock := newTestMemory(t, Config{TTL: 30 * time.Minute, MaxMessages: 8})
	m.Append("alice", Message{Role: RoleUser, Content: "hola"})
	m.Append("bob", Message{Role: RoleUser, Content: "hey"})
	assert.Equal(t, 2, m.Active())

	clock.Advance(20 * time.Minute)
	m.Append("bob", Message{Role: RoleUser, Content: "still here"})
	clock.Advance(15 * time.Minute)

	assert.Empty(t, m.Get("alice").History, "alice idled past the TTL")
	assert.Len(t, m.Get("bob").History, 2)
	assert.Equal(t, 1, m.Active())
}

func TestSweep(t *testing.T) {
	m, clock := newTestMemory(t, Config{TTL: time.Minute, MaxMessages: 8})
	m.Append("a", Message{Role: RoleUser, Content: "x"})
	m.Append("b", Message{Role: RoleUser, Content: "y"})
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, m.Sweep())
	assert.Equal(t, 0, m.Sweep())
}

func TestPutAndEvict(t *testing.T) {
	m, _ := newTestMemory(t, Config{MaxMessages: 2})
	m.Put(Session{UserID: "alice", History: []Message{
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"},
	}, Turns: 4})

	s := m.Get("alice")
	require.Len(t, s.History, 2)
	assert.Equal(t, "2", s.History[0].Content)
	assert.Equal(t, 4, s.Turns)

	m.Evict("alice")
	assert.Empty(t, m.Get("alice").History)
}

func TestJanitorStopsOnClose(t *testing.T) {
	m := NewMemory(Config{TTL: time.Millisecond, MaxMessages: 8, JanitorInterval: time.Millisecond}, nil)
	m.Append("alice", Message{Role: RoleUser, Content: "x"})

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.sessions) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "Close is idempotent")
}

func TestConcurrentAppend(t *testing.T) {
	m, _ := newTestMemory(t, Config{MaxMessages: 8})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Append("alice", Message{Role: RoleUser, Content: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Get("alice").Turns)
	assert.Len(t, m.Get("alice").History, 8)
}
