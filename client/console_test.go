package client

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"postbox/auth"
	"postbox/moderation"
	"postbox/repositories"
	"postbox/runtime"
	"postbox/search"
	"postbox/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type harness struct {
	authService      *services.AuthService
	messagingService *services.MessagingService
}

func newHarness(t *testing.T) harness {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	index, err := search.NewBlugeIndex("", log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })
	moderator, err := moderation.NewModerator(nil, '*', log)
	req.NoError(err)

	participants := repositories.NewParticipantRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	hasher := auth.NewArgon2Hasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	registry := runtime.NewRegistry(nil)
	tokens := auth.NewTokenIssuer([]byte("console-secret"), "postbox-test", time.Hour)

	return harness{
		authService: services.NewAuthService(log, participants, messages, hasher, tokens, registry, nil),
		messagingService: services.NewMessagingService(log, participants, messages, index, moderator, hasher,
			auth.Policy{MaxTitleLength: 50, MaxContentLength: 200}, nil, 10),
	}
}

// session drives one console over a script and returns everything it printed.
func (h harness) session(t *testing.T, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	console := NewConsole(logs.GetLoggerFromLevel(slog.LevelError), h.authService, h.messagingService,
		strings.NewReader(strings.Join(script, "\n")+"\n"), &out, false)
	require.NoError(t, console.Run(context.Background()))
	return out.String()
}

func TestConsole_Alice_Writes_To_Bob(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	out := h.session(t,
		"register alice a-secret",
		"register bob b-secret",
		"login alice a-secret",
		`send bob "Hi there" "Hello bob, lunch today?"`,
		"logout",
		"quit",
	)
	req.Contains(out, "Registered alice")
	req.Contains(out, "Registered bob")
	req.Contains(out, "Welcome alice. No new messages")
	req.Contains(out, "Sent ")
	req.Contains(out, "Logged out")

	out = h.session(t,
		"login bob b-secret",
		"whoami",
		"unread",
		"unread",
	)
	req.Contains(out, "Welcome bob. You have 1 unread message")
	req.Contains(out, "bob (")
	req.Contains(out, "Hello bob, lunch today?")
	req.Contains(out, "alice")
	req.Contains(out, "error: no unread messages")
}

func TestConsole_Errors_Keep_The_Console_Running(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	out := h.session(t,
		"",
		"dance",
		`send bob "unterminated`,
		"send bob Hi Hello",
		"login ghost nope",
		"logout",
		"login",
		"whoami",
		"help",
	)
	req.Contains(out, `error: unknown command "dance", type help`)
	req.Contains(out, "error: unterminated quote")
	req.Contains(out, "error: not authenticated")
	req.Contains(out, "error: invalid username")
	req.Contains(out, "error: no active session")
	req.Contains(out, "error: usage: login <username> <password>")
	req.Contains(out, "discover <terms> [--limit N] [--sender ID]")
}

func TestConsole_Edit_Delete_And_Search(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	out := h.session(t,
		"register alice a-secret",
		"register bob b-secret",
		"login alice a-secret",
		`send bob "Budget" "numbers for the quarterly budget"`,
		"logout",
	)
	id := sentID(t, out)

	out = h.session(t,
		"login bob b-secret",
		`edit `+id+` alice "Hijack" "mine now"`,
		"delete "+id,
		"search quarterly",
		"discover budget",
		"get "+id,
		"list",
		"participants",
	)
	req.Contains(out, "error: forbidden")
	req.Contains(out, "numbers for the quarterly budget")
	req.Contains(out, "alice")

	out = h.session(t,
		"login alice a-secret",
		`edit `+id+` bob "Budget v2" "updated numbers"`,
		"get "+id,
		"delete "+id,
		"get "+id,
		"list",
		"logout all",
		"whoami",
	)
	req.Contains(out, "Edited "+id)
	req.Contains(out, "updated numbers")
	req.Contains(out, "(edited)")
	req.Contains(out, "Deleted "+id)
	req.Contains(out, "error: not found")
	req.Contains(out, "No messages")
	req.Contains(out, "Closed 1 session(s)")
	req.Contains(out, "error: not authenticated")
}

func sentID(t *testing.T, out string) string {
	t.Helper()
	_, after, found := strings.Cut(out, "Sent ")
	require.True(t, found)
	id, _, _ := strings.Cut(after, "\n")
	return strings.TrimSpace(id)
}

func TestConsole_Search_Keeps_The_Phrase_Spacing(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	out := h.session(t,
		"register alice a-secret",
		"login alice a-secret",
		`send alice "Gap" "mind the   gap"`,
		"search mind the   gap",
		`search "the   gap"`,
		`search "the gap"`,
	)

	// Then an unquoted phrase is refused rather than rejoined
	req.Contains(out, `error: usage: search "<phrase>"`)
	// And the quoted phrase matches only with its exact spacing
	req.Equal(1, strings.Count(out, "Gap"))
	req.Equal(1, strings.Count(out, "error: no messages match"))
}
