// Package document holds the shared canvas state that collaborators edit:
// positioned objects plus a derived path. Geometry is opaque here; objects
// carry free-form attributes and the protocol only moves them around.
package document

import "errors"

var ErrObjectNotFound = errors.New("object not found")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Object struct {
	ID    string         `json:"id"`
	Type  string         `json:"type,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Clone returns a deep copy of the top-level attribute map.
func (o Object) Clone() Object {
	c := Object{ID: o.ID, Type: o.Type}
	if o.Attrs != nil {
		c.Attrs = make(map[string]any, len(o.Attrs))
		for k, v := range o.Attrs {
			c.Attrs[k] = v
		}
	}
	return c
}

// Snapshot is a complete copy of the shared state, used to bootstrap a late joiner.
type Snapshot struct {
	Objects []Object `json:"objects"`
	Path    []Point  `json:"path"`
}

// Store is the document surface the collaboration protocol drives.
type Store interface {
	AddObject(obj Object) error
	UpdateObject(id string, patch map[string]any) error
	RemoveObject(id string) error
	SetPath(path []Point) error
	ExportSnapshot() Snapshot
	ImportSnapshot(snap Snapshot) error
}
