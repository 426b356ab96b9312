package e2e

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"postbox/auth"
	"postbox/moderation"
	"postbox/observability"
	"postbox/repositories"
	"postbox/runtime"
	"postbox/search"
	"postbox/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

// Stack is one running postbox process: storage, index and services.
type Stack struct {
	DB        *badger.DB
	Index     *search.BlugeIndex
	Auth      *services.AuthService
	Messaging *services.MessagingService
	Monitor   *observability.Monitor
}

func (s *Stack) Close() {
	_ = s.Index.Close()
	_ = s.DB.Close()
}

type BaseSuite struct {
	suite.Suite
	Config  Config
	dataDir string
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// SetupTest gives every scenario its own data directory
func (s *BaseSuite) SetupTest() {
	s.dataDir = s.Config.DataDir
	if s.dataDir == "" {
		s.dataDir = s.T().TempDir()
	} else {
		s.dataDir = filepath.Join(s.dataDir, s.T().Name())
	}
}

// Start opens a stack on the suite data directory. Stopping and starting
// again simulates a process restart: storage survives, sessions do not.
func (s *BaseSuite) Start(censoredWords ...string) *Stack {
	log := logs.GetLoggerFromString(s.Config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(filepath.Join(s.dataDir, "badger")).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	index, err := search.NewBlugeIndex(filepath.Join(s.dataDir, "bluge"), log)
	s.Require().NoError(err)
	moderator, err := moderation.NewModerator(censoredWords, '*', log)
	s.Require().NoError(err)

	participants := repositories.NewParticipantRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	hasher := auth.NewArgon2Hasher(auth.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	tokens := auth.NewTokenIssuer([]byte("e2e-secret"), "postbox-e2e", time.Hour)
	registry := runtime.NewRegistry(nil)
	monitor := observability.NewMonitor(log, registry)

	stack := &Stack{
		DB:        db,
		Index:     index,
		Auth:      services.NewAuthService(log, participants, messages, hasher, tokens, registry, monitor),
		Messaging: services.NewMessagingService(log, participants, messages, index, moderator, hasher, auth.Policy{MaxTitleLength: 120, MaxContentLength: 4000}, monitor, 10),
		Monitor:   monitor,
	}
	_, err = stack.Messaging.Reindex(context.Background())
	s.Require().NoError(err)
	return stack
}

// Step prints a colorized header and runs fn as a sub test
func (s *BaseSuite) Step(name string, fn func()) {
	s.Run(name, func() {
		header := fmt.Sprintf("  ====== %s ======", name)
		if s.Config.Colours {
			header = color.New(color.BgBlack, color.FgGreen).Render(header)
		}
		s.T().Log(header)
		fn()
	})
}

// LoginAs opens a session and returns the authenticated context with the token.
func (s *BaseSuite) LoginAs(stack *Stack, username, password string) (context.Context, string) {
	result, err := stack.Auth.Login(context.Background(), username, password)
	s.Require().NoError(err)
	ctx, err := stack.Auth.Authenticate(context.Background(), result.Session.Token)
	s.Require().NoError(err)
	return ctx, result.Session.Token
}
