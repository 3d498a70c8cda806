// Package presence tracks who is in a collaboration session, who owns it,
// and when each collaborator was last heard from.
package presence

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"satukanvas/internal/document"
	"satukanvas/pkg/logger"
)

type Collaborator struct {
	ID           string
	DisplayName  string
	Color        string
	Cursor       *document.Point
	LastActiveAt time.Time
}

// Session is the client's cached view of the session.
type Session struct {
	ID            string
	DocumentID    string
	OwnerID       string
	Collaborators []Collaborator
	CreatedAt     time.Time
}

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#469990", "#9a6324", "#800000",
}

// ColorFor picks a stable palette color for id.
func ColorFor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

// JoinResult describes what a Join did to the roster.
type JoinResult struct {
	Collaborator Collaborator
	New          bool
	// OwnerConflict is set when the sender claimed ownership of a session
	// that already has a different owner. The claim is ignored.
	OwnerConflict bool
}

type Roster struct {
	mu         sync.Mutex
	sessionID  string
	documentID string
	selfID     string
	ownerID    string
	createdAt  time.Time
	members    map[string]*Collaborator
}

// NewRoster builds an empty roster. ownerID may be empty when the session
// API did not resolve it; the first Join declaring ownership then sets it.
func NewRoster(sessionID, documentID, selfID, ownerID string) *Roster {
	return &Roster{
		sessionID:  sessionID,
		documentID: documentID,
		selfID:     selfID,
		ownerID:    ownerID,
		members:    make(map[string]*Collaborator),
	}
}

// AddSelf puts the local client on the roster. It is never derived from
// remote messages.
func (r *Roster) AddSelf(name, color string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCreated(now)
	r.upsert(r.selfID, name, color, now)
}

// Join records a Join from senderID. Joins carrying the local id are ignored.
func (r *Roster) Join(senderID, name, color string, claimsOwner bool, now time.Time) (JoinResult, bool) {
	if senderID == "" || senderID == r.selfID {
		return JoinResult{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureCreated(now)
	var res JoinResult
	if claimsOwner {
		switch r.ownerID {
		case "":
			r.ownerID = senderID
		case senderID:
		default:
			res.OwnerConflict = true
			logger.Sugar.Warnf("session %s: %s claimed ownership held by %s; ignoring", r.sessionID, senderID, r.ownerID)
		}
	}
	_, existed := r.members[senderID]
	res.Collaborator = *r.upsert(senderID, name, color, now)
	res.New = !existed
	return res, true
}

// Leave removes id and reports whether it was present.
func (r *Roster) Leave(id string) bool {
	if id == r.selfID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// MoveCursor updates a known collaborator's cursor. Unknown ids are dropped:
// a cursor can only follow a Join, so anything else is an ordering anomaly.
func (r *Roster) MoveCursor(id string, pos document.Point, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.members[id]
	if !ok || id == r.selfID {
		return false
	}
	p := pos
	c.Cursor = &p
	c.LastActiveAt = now
	return true
}

// Touch marks any traffic from a known collaborator as activity.
func (r *Roster) Touch(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.members[id]; ok && now.After(c.LastActiveAt) {
		c.LastActiveAt = now
	}
}

// Peer is the minimal description of a collaborator exchanged during sync.
type Peer struct {
	ID          string
	DisplayName string
	Color       string
	Owner       bool
}

// Merge adds peers learned from a sync response and returns the ones that
// were not yet known. Existing entries keep their own activity data.
func (r *Roster) Merge(peers []Peer, now time.Time) []Collaborator {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCreated(now)

	var added []Collaborator
	for _, p := range peers {
		if p.ID == "" || p.ID == r.selfID {
			continue
		}
		if p.Owner && r.ownerID == "" {
			r.ownerID = p.ID
		}
		if _, ok := r.members[p.ID]; ok {
			continue
		}
		added = append(added, *r.upsert(p.ID, p.DisplayName, p.Color, now))
	}
	return added
}

// Sweep evicts collaborators not heard from since now-staleAfter and returns
// their ids. The local client is never evicted.
func (r *Roster) Sweep(now time.Time, staleAfter time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-staleAfter)
	var evicted []string
	for id, c := range r.members {
		if id == r.selfID {
			continue
		}
		if c.LastActiveAt.Before(cutoff) {
			delete(r.members, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Reset drops every collaborator. Ownership is kept; it is fixed for the
// lifetime of the session.
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]*Collaborator)
}

func (r *Roster) OwnerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerID
}

// IsSelfOwner reports whether the local client is the session owner.
func (r *Roster) IsSelfOwner() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerID != "" && r.ownerID == r.selfID
}

func (r *Roster) Get(id string) (Collaborator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.members[id]
	if !ok {
		return Collaborator{}, false
	}
	return clone(c), true
}

// Collaborators returns the roster ordered by id.
func (r *Roster) Collaborators() []Collaborator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list()
}

// Peers returns the roster as sync peers, the local client included.
func (r *Roster) Peers() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.list()
	peers := make([]Peer, 0, len(list))
	for _, c := range list {
		peers = append(peers, Peer{ID: c.ID, DisplayName: c.DisplayName, Color: c.Color, Owner: c.ID == r.ownerID})
	}
	return peers
}

// Session returns a copy of the cached session. ok is false until the first join.
func (r *Roster) Session() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createdAt.IsZero() {
		return Session{}, false
	}
	return Session{
		ID:            r.sessionID,
		DocumentID:    r.documentID,
		OwnerID:       r.ownerID,
		Collaborators: r.list(),
		CreatedAt:     r.createdAt,
	}, true
}

func (r *Roster) ensureCreated(now time.Time) {
	if r.createdAt.IsZero() {
		r.createdAt = now
	}
}

func (r *Roster) upsert(id, name, color string, now time.Time) *Collaborator {
	c, ok := r.members[id]
	if !ok {
		c = &Collaborator{ID: id}
		r.members[id] = c
	}
	if name != "" {
		c.DisplayName = name
	}
	switch {
	case color != "":
		c.Color = color
	case c.Color == "":
		c.Color = ColorFor(id)
	}
	if now.After(c.LastActiveAt) {
		c.LastActiveAt = now
	}
	return c
}

func (r *Roster) list() []Collaborator {
	out := make([]Collaborator, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(c *Collaborator) Collaborator {
	out := *c
	if c.Cursor != nil {
		p := *c.Cursor
		out.Cursor = &p
	}
	return out
}
