package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"postbox/auth"
	"postbox/domain"
	perrors "postbox/errors"
	"postbox/services"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const prompt = "postbox> "

var (
	promptStyle = color.New(color.FgCyan, color.OpBold)
	errorStyle  = color.New(color.FgRed)
	okStyle     = color.New(color.FgGreen)
)

type command struct {
	usage string
	help  string
	run   func(c *Console, ctx context.Context, args []string) error
}

var errUsage = errors.New("usage")

// Console is a line oriented front end. It holds the token of the session
// it opened and resolves it on every command, one command at a time.
type Console struct {
	log       *slog.Logger
	auth      services.IAuthService
	messaging services.IMessagingService
	in        io.Reader
	out       io.Writer
	colour    bool
	token     string
	username  string
	commands  map[string]command
}

func NewConsole(
	log *slog.Logger,
	authService services.IAuthService,
	messagingService services.IMessagingService,
	in io.Reader,
	out io.Writer,
	colour bool,
) *Console {
	c := &Console{
		log:       log,
		auth:      authService,
		messaging: messagingService,
		in:        in,
		out:       out,
		colour:    colour,
	}
	c.commands = map[string]command{
		"register":     {usage: "register <username> <password>", help: "create an account", run: (*Console).register},
		"login":        {usage: "login <username> <password>", help: "open a session", run: (*Console).login},
		"logout":       {usage: "logout [all]", help: "close this session, or every session of yours", run: (*Console).logout},
		"send":         {usage: `send <recipient> "<title>" "<body>"`, help: "send a message to a username or id", run: (*Console).send},
		"edit":         {usage: `edit <id> <recipient> "<title>" "<body>"`, help: "rewrite one of your messages", run: (*Console).edit},
		"delete":       {usage: "delete <id>", help: "delete one of your messages", run: (*Console).deleteMessage},
		"get":          {usage: "get <id>", help: "show one message", run: (*Console).get},
		"list":         {usage: "list", help: "show every message", run: (*Console).list},
		"unread":       {usage: "unread", help: "show your unread messages and mark them read", run: (*Console).unread},
		"search":       {usage: `search "<phrase>"`, help: "messages whose body contains the phrase, quote it when it has spaces", run: (*Console).search},
		"discover":     {usage: "discover <terms> [--limit N] [--sender ID]", help: "ranked full-text search", run: (*Console).discover},
		"participants": {usage: "participants", help: "list registered participants", run: (*Console).participants},
		"whoami":       {usage: "whoami", help: "show the logged in participant", run: (*Console).whoami},
	}
	return c
}

// Run reads commands until quit, end of input or cancellation.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.printPrompt()
	for {
		select {
		case <-ctx.Done():
			c.println("")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.Execute(ctx, line); quit {
				return nil
			}
			c.printPrompt()
		}
	}
}

// Execute runs one console line. It reports true when the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	args, err := SplitArgs(line)
	if err != nil {
		c.printError(err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	name := strings.ToLower(args[0])
	switch name {
	case "quit", "exit":
		return true
	case "help":
		c.help()
		return false
	}

	cmd, ok := c.commands[name]
	if !ok {
		c.printError(fmt.Errorf("unknown command %q, type help", args[0]))
		return false
	}
	if err = cmd.run(c, c.identity(ctx), args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			c.printError(fmt.Errorf("usage: %s", cmd.usage))
		} else {
			c.printError(err)
		}
		c.log.Debug("Command failed", "command", name, "error", err)
	}
	return false
}

// identity resolves the held token into an authenticated context. A token
// that stopped being valid is dropped.
func (c *Console) identity(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	authCtx, err := c.auth.Authenticate(ctx, c.token)
	if err != nil {
		c.token, c.username = "", ""
		c.printError(errors.New("your session has ended, please log in again"))
		return ctx
	}
	return authCtx
}

func (c *Console) help() {
	table := c.newTable([]string{"Command", "Description"})
	for _, name := range slices.Sorted(maps.Keys(c.commands)) {
		table.Append([]string{c.commands[name].usage, c.commands[name].help})
	}
	table.Append([]string{"help", "show this help"})
	table.Append([]string{"quit", "leave the console"})
	table.Render()
}

func (c *Console) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	view, err := c.messaging.Register(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	c.printOK(fmt.Sprintf("Registered %s (%s)", view.Username, view.ID))
	return nil
}

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	result, err := c.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if c.token != "" {
		_ = c.auth.Logout(ctx, c.token)
	}
	c.token, c.username = result.Session.Token, args[0]
	c.printOK(fmt.Sprintf("Welcome %s. %s", args[0], result.Summary()))
	return nil
}

func (c *Console) logout(ctx context.Context, args []string) error {
	switch {
	case len(args) == 0:
		if err := c.auth.Logout(ctx, c.token); err != nil {
			return err
		}
		c.printOK("Logged out")
	case len(args) == 1 && args[0] == "all":
		closed, err := c.auth.LogoutEverywhere(ctx)
		if err != nil {
			return err
		}
		c.printOK(fmt.Sprintf("Closed %d session(s)", closed))
	default:
		return errUsage
	}
	c.token, c.username = "", ""
	return nil
}

func (c *Console) send(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	recipientID, err := c.resolveParticipant(ctx, args[0])
	if err != nil {
		return err
	}
	message, err := c.messaging.Send(ctx, args[1], args[2], recipientID)
	if err != nil {
		return err
	}
	c.printOK("Sent " + message.ID)
	return nil
}

func (c *Console) edit(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return errUsage
	}
	recipientID, err := c.resolveParticipant(ctx, args[1])
	if err != nil {
		return err
	}
	message, err := c.messaging.EditMessage(ctx, args[0], args[2], args[3], recipientID)
	if err != nil {
		return err
	}
	c.printOK("Edited " + message.ID)
	return nil
}

func (c *Console) deleteMessage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	message, err := c.messaging.DeleteMessage(ctx, args[0])
	if err != nil {
		return err
	}
	c.printOK(fmt.Sprintf("Deleted %s (%q)", message.ID, message.Title))
	return nil
}

func (c *Console) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	message, err := c.messaging.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printMessages(ctx, []domain.Message{message})
}

func (c *Console) list(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	messages, err := c.messaging.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		c.println("No messages")
		return nil
	}
	return c.printMessages(ctx, messages)
}

func (c *Console) unread(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	messages, err := c.messaging.MyUnread(ctx)
	if err != nil {
		return err
	}
	return c.printMessages(ctx, messages)
}

// search takes the phrase as a single argument so that its spacing reaches
// the substring match unchanged.
func (c *Console) search(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	messages, err := c.messaging.Search(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printMessages(ctx, messages)
}

func (c *Console) discover(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	messages, err := c.messaging.Discover(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return c.printMessages(ctx, messages)
}

func (c *Console) participants(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	views, err := c.messaging.ListParticipants(ctx)
	if err != nil {
		return err
	}
	table := c.newTable([]string{"ID", "Username", "Registered", "Last login"})
	for _, v := range views {
		lastLogin := "never"
		if v.LastLogin != nil {
			lastLogin = v.LastLogin.Format(time.DateTime)
		}
		table.Append([]string{v.ID, v.Username, v.CreatedAt.Format(time.DateTime), lastLogin})
	}
	table.Render()
	return nil
}

func (c *Console) whoami(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	id, ok := auth.ParticipantID(ctx)
	if !ok {
		return perrors.ErrNotAuthenticated
	}
	c.println(fmt.Sprintf("%s (%s)", c.username, id))
	return nil
}

// resolveParticipant accepts a username or an id.
func (c *Console) resolveParticipant(ctx context.Context, nameOrID string) (string, error) {
	views, err := c.messaging.ListParticipants(ctx)
	if err != nil {
		return "", err
	}
	if view, ok := lo.Find(views, func(v domain.ParticipantView) bool {
		return v.Username == nameOrID
	}); ok {
		return view.ID, nil
	}
	return nameOrID, nil
}

func (c *Console) printMessages(ctx context.Context, messages []domain.Message) error {
	views, err := c.messaging.ListParticipants(ctx)
	if err != nil {
		return err
	}
	names := lo.SliceToMap(views, func(v domain.ParticipantView) (string, string) {
		return v.ID, v.Username
	})
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	table := c.newTable([]string{"ID", "From", "To", "Title", "Body", "Read", "Sent"})
	for _, m := range messages {
		sent := m.CreatedAt.Format(time.DateTime)
		if m.UpdatedAt != nil {
			sent += " (edited)"
		}
		table.Append([]string{m.ID, name(m.SenderID), name(m.RecipientID), m.Title, m.Body, fmt.Sprint(m.Read), sent})
	}
	table.Render()
	return nil
}

func (c *Console) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func (c *Console) printPrompt() {
	_, _ = fmt.Fprint(c.out, c.render(promptStyle, prompt))
}

func (c *Console) printOK(msg string) {
	c.println(c.render(okStyle, msg))
}

func (c *Console) printError(err error) {
	c.println(c.render(errorStyle, "error: "+err.Error()))
}

func (c *Console) println(msg string) {
	_, _ = fmt.Fprintln(c.out, msg)
}

func (c *Console) render(style color.Style, msg string) string {
	if !c.colour {
		return msg
	}
	return style.Render(msg)
}
