package document

import (
	"sort"
	"sync"
)

// Canvas is an in-memory Store. Mutations are keyed by object id, so
// applying the same update twice leaves the same state.
type Canvas struct {
	mu      sync.RWMutex
	objects map[string]Object
	path    []Point
}

func NewCanvas() *Canvas {
	return &Canvas{objects: make(map[string]Object)}
}

// AddObject inserts obj, overwriting any object with the same id.
func (c *Canvas) AddObject(obj Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[obj.ID] = obj.Clone()
	return nil
}

func (c *Canvas) UpdateObject(id string, patch map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[id]
	if !ok {
		return ErrObjectNotFound
	}
	if obj.Attrs == nil {
		obj.Attrs = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		obj.Attrs[k] = v
	}
	c.objects[id] = obj
	return nil
}

// RemoveObject is a no-op for unknown ids.
func (c *Canvas) RemoveObject(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, id)
	return nil
}

func (c *Canvas) SetPath(path []Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = append([]Point(nil), path...)
	return nil
}

// Object returns a copy of the object with the given id.
func (c *Canvas) Object(id string) (Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[id]
	if !ok {
		return Object{}, false
	}
	return obj.Clone(), true
}

func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// ExportSnapshot returns objects ordered by id so snapshots compare stably.
func (c *Canvas) ExportSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Objects: make([]Object, 0, len(c.objects)),
		Path:    append([]Point{}, c.path...),
	}
	for _, obj := range c.objects {
		snap.Objects = append(snap.Objects, obj.Clone())
	}
	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].ID < snap.Objects[j].ID })
	return snap
}

// ImportSnapshot replaces the whole state with snap. Nothing of the previous
// state survives.
func (c *Canvas) ImportSnapshot(snap Snapshot) error {
	objects := make(map[string]Object, len(snap.Objects))
	for _, obj := range snap.Objects {
		objects[obj.ID] = obj.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = objects
	c.path = append([]Point(nil), snap.Path...)
	return nil
}
