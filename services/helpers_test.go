package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"postbox/auth"
	"postbox/moderation"
	"postbox/observability"
	"postbox/repositories"
	"postbox/runtime"
	"postbox/search"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var fastParams = auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

var defaultPolicy = auth.Policy{MaxTitleLength: 80, MaxContentLength: 500}

// fakeClock is shared by the services, the token issuer and the registry.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
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

type fixture struct {
	auth         *AuthService
	messaging    *MessagingService
	participants *repositories.ParticipantRepository
	messages     *repositories.MessageRepository
	index        *search.BlugeIndex
	registry     *runtime.Registry
	monitor      *observability.Monitor
	clock        *fakeClock
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy        auth.Policy
	censoredWords []string
}

func withPolicy(policy auth.Policy) fixtureOption {
	return func(c *fixtureConfig) { c.policy = policy }
}

func withCensoredWords(words ...string) fixtureOption {
	return func(c *fixtureConfig) { c.censoredWords = words }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	config := fixtureConfig{policy: defaultPolicy}
	for _, option := range options {
		option(&config)
	}

	log := logs.GetLoggerFromLevel(slog.LevelError)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.NewBlugeIndex("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	moderator, err := moderation.NewModerator(config.censoredWords, '*', log)
	require.NoError(t, err)

	clock := newFakeClock()
	participants := repositories.NewParticipantRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	hasher := auth.NewArgon2Hasher(fastParams)
	tokens := auth.NewTokenIssuer([]byte("test-secret"), "postbox-test", time.Hour).WithClock(clock.Now)
	registry := runtime.NewRegistry(clock.Now)
	monitor := observability.NewMonitor(log, registry)

	return &fixture{
		auth: NewAuthService(log, participants, messages, hasher, tokens, registry, monitor).
			WithClock(clock.Now),
		messaging: NewMessagingService(log, participants, messages, index, moderator, hasher, config.policy, monitor, 10).
			WithClock(clock.Now),
		participants: participants,
		messages:     messages,
		index:        index,
		registry:     registry,
		monitor:      monitor,
		clock:        clock,
	}
}

// register creates a participant and returns its id.
func (f *fixture) register(t *testing.T, username string) string {
	t.Helper()
	view, err := f.messaging.Register(context.Background(), username, username+"-pw")
	require.NoError(t, err)
	return view.ID
}

// loginAs logs the participant in and returns an authenticated context.
func (f *fixture) loginAs(t *testing.T, username string) context.Context {
	t.Helper()
	result, err := f.auth.Login(context.Background(), username, username+"-pw")
	require.NoError(t, err)
	ctx, err := f.auth.Authenticate(context.Background(), result.Session.Token)
	require.NoError(t, err)
	return ctx
}
