// Command satukanvas joins a canvas session from the terminal. Lines typed on
// stdin are sent as chat; lines starting with a slash are commands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"satukanvas/client"
	"satukanvas/config"
	"satukanvas/internal/document"
	"satukanvas/internal/events"
	"satukanvas/internal/session/model"
	"satukanvas/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func main() {
	var (
		server   = pflag.String("server", "http://localhost:8080", "base URL of the relay server")
		token    = pflag.String("token", os.Getenv("SATUKANVAS_TOKEN"), "JWT whose subject is your user id")
		userID   = pflag.String("user", "", "your user id; defaults to the token subject")
		name     = pflag.String("name", "", "display name shown to collaborators")
		color    = pflag.String("color", "", "cursor color, e.g. #e6194b")
		session  = pflag.String("session", "", "session to join; a new one is created when empty")
		docID    = pflag.String("document", "", "document for a new session")
		logLevel = pflag.String("log-level", "warn", "log level")
	)
	pflag.Parse()

	logger.Init(*logLevel)
	defer logger.Sync()

	// The server stamps every frame with the token subject, so the local
	// identity has to be that subject.
	id, err := resolveUser(*userID, *token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "satukanvas:", err)
		os.Exit(2)
	}

	// Timings come from the same environment the server reads.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "satukanvas:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options{
		server:   *server,
		token:    *token,
		userID:   id,
		name:     *name,
		color:    *color,
		session:  *session,
		document: *docID,
		timing:   cfg.Protocol,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "satukanvas:", err)
		os.Exit(1)
	}
}

type options struct {
	server, token, userID, name, color, session, document string

	timing config.Protocol
}

func run(ctx context.Context, opts options) error {
	api := &client.LifecycleClient{BaseURL: opts.server, Token: opts.token}

	sessionID := opts.session
	if sessionID == "" {
		created, err := api.CreateSession(ctx, opts.document)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = created.SessionID
		fmt.Printf("created session %s\n", sessionID)
	}

	joined, err := api.JoinSession(ctx, sessionID, model.JoinSessionRequest{DisplayName: opts.name, Color: opts.color})
	if err != nil {
		return fmt.Errorf("join session: %w", err)
	}

	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		Identity:   client.Identity{ID: opts.userID, DisplayName: opts.name, Color: opts.color},
		SessionID:  joined.SessionID,
		DocumentID: joined.DocumentID,
		OwnerID:    joined.OwnerID,
		Transport:  &client.WebSocketTransport{URL: wsURL, Token: opts.token},
		Timing:     opts.timing,
	})
	if err != nil {
		return err
	}
	unsubscribe := c.Events().Subscribe(printEvent)
	defer unsubscribe()

	if err := c.ConnectWait(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Disconnect()
	go client.NewReconnector(c).Run(ctx)

	role := "collaborator"
	if c.IsOwner() {
		role = "owner"
	}
	fmt.Printf("joined session %s on document %s as %s\n", joined.SessionID, joined.DocumentID, role)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := command(c, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// command runs one input line and reports whether the user asked to quit.
func command(c *client.Client, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := c.SendChat(line)
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/sync":
		return false, c.RequestSync()
	case "/add":
		// /add <type> <x> <y>
		if len(fields) != 4 {
			return false, fmt.Errorf("usage: /add <type> <x> <y>")
		}
		x, y, err := coords(fields[2], fields[3])
		if err != nil {
			return false, err
		}
		id := uuid.NewString()[:8]
		if err := c.AddObject(document.Object{ID: id, Type: fields[1], Attrs: map[string]any{"x": x, "y": y}}); err != nil {
			return false, err
		}
		fmt.Printf("added %s\n", id)
		return false, nil
	case "/move":
		// /move <id> <x> <y>
		if len(fields) != 4 {
			return false, fmt.Errorf("usage: /move <id> <x> <y>")
		}
		x, y, err := coords(fields[2], fields[3])
		if err != nil {
			return false, err
		}
		return false, c.UpdateObject(fields[1], map[string]any{"x": x, "y": y})
	case "/rm":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /rm <id>")
		}
		return false, c.RemoveObject(fields[1])
	case "/who":
		for _, col := range c.Collaborators() {
			fmt.Printf("  %s (%s)\n", col.DisplayName, col.ID)
		}
		return false, nil
	case "/ls":
		for _, obj := range c.Document().ExportSnapshot().Objects {
			fmt.Printf("  %s %s %v\n", obj.ID, obj.Type, obj.Attrs)
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown command %s", fields[0])
}

func coords(xs, ys string) (float64, float64, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad x %q", xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad y %q", ys)
	}
	return x, y, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse --server: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func printEvent(e events.Event) {
	switch ev := e.(type) {
	case events.ConnectionStateChanged:
		if ev.Err != nil {
			fmt.Printf("* %s (%v)\n", ev.To, ev.Err)
		} else {
			fmt.Printf("* %s\n", ev.To)
		}
	case events.CollaboratorJoined:
		fmt.Printf("* %s joined\n", ev.DisplayName)
	case events.CollaboratorLeft:
		fmt.Printf("* %s left (%s)\n", ev.ID, ev.Reason)
	case events.ChatReceived:
		fmt.Printf("<%s> %s\n", ev.SenderName, ev.Content)
	case events.SyncCompleted:
		if !ev.Local {
			fmt.Printf("* synced %d objects from %s\n", ev.Objects, ev.SourceID)
		}
	case events.SyncTimedOut:
		fmt.Printf("* nobody answered the sync request after %s, keeping local canvas\n", ev.After)
	case events.ProtocolError:
		fmt.Printf("! %s from %s: %v\n", ev.Kind, ev.SenderID, ev.Err)
	}
}

// resolveUser returns the user id the server will stamp on our frames: the
// subject of token. A --user that disagrees with it is rejected.
func resolveUser(flagUser, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("--token (or SATUKANVAS_TOKEN) is required")
	}
	// The server verifies the signature; here the claims are only read.
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	if flagUser != "" && flagUser != sub {
		return "", fmt.Errorf("--user %q does not match token subject %q", flagUser, sub)
	}
	return sub, nil
}
