// Package client is the collaborator side of a canvas session: it owns the
// transport connection, keeps the roster and document in step with peers,
// and reports what happens on an event bus.
//
// A Client is scoped to exactly one session. Construct one per session and
// discard it after Disconnect.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"satukanvas/config"
	"satukanvas/internal/document"
	"satukanvas/internal/events"
	"satukanvas/internal/presence"
	"satukanvas/protocol"
)

// Identity is the local collaborator as resolved by authentication.
type Identity struct {
	ID          string
	DisplayName string
	Color       string
}

type Config struct {
	Identity   Identity
	SessionID  string
	DocumentID string
	// OwnerID is the owner resolved by the session API. Leave it empty only
	// if ownership should be learned from the first Join that claims it.
	OwnerID string

	Transport Transport
	// Document defaults to an empty in-memory canvas.
	Document document.Store
	// Bus defaults to a private bus; share one to observe several clients.
	Bus *events.Bus

	Timing config.Protocol
}

var defaultTiming = config.Protocol{
	OpenTimeout:       10 * time.Second,
	SyncTimeout:       3 * time.Second,
	StaleAfter:        60 * time.Second,
	HeartbeatInterval: 20 * time.Second,
	SweepInterval:     5 * time.Second,
}

type Client struct {
	cfg    Config
	sender protocol.Sender
	doc    document.Store
	bus    *events.Bus
	roster *presence.Roster
	chat   *ChatLog

	mu         sync.Mutex
	state      State
	conn       Conn
	attempt    uint64
	cancelDial context.CancelFunc
	stop       chan struct{}

	// sync bookkeeping, guarded by mu
	syncRound   uint64
	syncTimer   *time.Timer
	syncPending bool
	synced      bool
}

func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	if cfg.Document == nil {
		cfg.Document = document.NewCanvas()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	cfg.Timing = withDefaults(cfg.Timing)

	return &Client{
		cfg: cfg,
		sender: protocol.Sender{
			ID:        cfg.Identity.ID,
			Name:      cfg.Identity.DisplayName,
			SessionID: cfg.SessionID,
		},
		doc:    cfg.Document,
		bus:    cfg.Bus,
		roster: presence.NewRoster(cfg.SessionID, cfg.DocumentID, cfg.Identity.ID, cfg.OwnerID),
		chat:   NewChatLog(),
		state:  StateDisconnected,
	}, nil
}

func withDefaults(t config.Protocol) config.Protocol {
	if t.OpenTimeout <= 0 {
		t.OpenTimeout = defaultTiming.OpenTimeout
	}
	if t.SyncTimeout <= 0 {
		t.SyncTimeout = defaultTiming.SyncTimeout
	}
	if t.StaleAfter <= 0 {
		t.StaleAfter = defaultTiming.StaleAfter
	}
	if t.HeartbeatInterval <= 0 {
		t.HeartbeatInterval = defaultTiming.HeartbeatInterval
	}
	if t.SweepInterval <= 0 {
		t.SweepInterval = defaultTiming.SweepInterval
	}
	return t
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ID() string                             { return c.cfg.Identity.ID }
func (c *Client) SessionID() string                      { return c.cfg.SessionID }
func (c *Client) Events() *events.Bus                    { return c.bus }
func (c *Client) Document() document.Store               { return c.doc }
func (c *Client) IsOwner() bool                          { return c.roster.IsSelfOwner() }
func (c *Client) Chat() []ChatEntry                      { return c.chat.Entries() }
func (c *Client) Collaborators() []presence.Collaborator { return c.roster.Collaborators() }

// Session returns the cached session view; ok is false before the first join.
func (c *Client) Session() (presence.Session, bool) {
	return c.roster.Session()
}

// Synced reports whether the document has been bootstrapped from the owner
// (or is the owner's own) since the last connect.
func (c *Client) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

func (c *Client) publish(evs ...events.Event) {
	for _, e := range evs {
		if e != nil {
			c.bus.Publish(e)
		}
	}
}
