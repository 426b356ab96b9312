package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"postbox/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSession(participantID string, now time.Time, ttl time.Duration) domain.Session {
	return domain.Session{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestRegistry_Open_Lookup_Close(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	registry := NewRegistry(clock.Now)
	session := newSession("alice", clock.Now(), time.Hour)

	// Given no session is open
	req.Zero(registry.Count())

	// When alice logs in
	registry.Open(session)

	// Then her session resolves
	found, ok := registry.Lookup(session.ID)
	req.True(ok)
	req.Equal(session, found)
	req.Equal(1, registry.Count())

	// When she logs out twice, only the first close counts
	req.True(registry.Close(session.ID))
	req.False(registry.Close(session.ID))

	_, ok = registry.Lookup(session.ID)
	req.False(ok)
	req.Zero(registry.Count())
}

func TestRegistry_Sessions_Are_Independent(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	registry := NewRegistry(clock.Now)
	alice := newSession("alice", clock.Now(), time.Hour)
	bob := newSession("bob", clock.Now(), time.Hour)

	registry.Open(alice)
	registry.Open(bob)
	req.True(registry.Close(alice.ID))

	found, ok := registry.Lookup(bob.ID)
	req.True(ok)
	req.Equal("bob", found.ParticipantID)
}

func TestRegistry_Expiry(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	registry := NewRegistry(clock.Now)
	short := newSession("alice", clock.Now(), time.Minute)
	registry.Open(short)

	clock.Advance(2 * time.Minute)

	_, ok := registry.Lookup(short.ID)
	req.False(ok)
	req.Zero(registry.Count())
	req.False(registry.Close(short.ID))

	// Opening another session prunes what has expired
	registry.Open(newSession("bob", clock.Now(), time.Hour))
	req.Len(registry.sessions, 1)
}

func TestRegistry_CloseAllFor(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	registry := NewRegistry(clock.Now)
	registry.Open(newSession("alice", clock.Now(), time.Hour))
	registry.Open(newSession("alice", clock.Now(), time.Hour))
	bob := newSession("bob", clock.Now(), time.Hour)
	registry.Open(bob)

	req.Equal(2, registry.CloseAllFor("alice"))
	req.Equal(1, registry.Count())
	_, ok := registry.Lookup(bob.ID)
	req.True(ok)
}
