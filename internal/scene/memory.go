package scene

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

var _ Scene = (*MemoryScene)(nil)

// MemoryScene is an in-memory reference table.
type MemoryScene struct {
	mu    sync.RWMutex
	refs  map[string]*Reference // node -> reference
	order []string              // node creation order

	// Roaring bitmap index: source path → set of internal node IDs.
	// IDs grow monotonically, so the lowest bit is the oldest node.
	pathToNodes map[string]*roaring.Bitmap
	nodeIntID   map[string]uint32
	intToNode   []string
	nextIntID   uint32
}

func NewMemoryScene() *MemoryScene {
	return &MemoryScene{
		refs:        make(map[string]*Reference),
		pathToNodes: make(map[string]*roaring.Bitmap),
		nodeIntID:   make(map[string]uint32),
	}
}

// CreateReference implements Importer.
func (s *MemoryScene) CreateReference(path, namespace string, depth Depth) (Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := uniqueNamespace(namespace, func(ns string) (bool, error) {
		_, exists := s.refs[nodeName(ns)]
		return exists, nil
	})
	if err != nil {
		return Reference{}, err
	}
	r := &Reference{
		Node:      nodeName(ns),
		Path:      cleanPath(path),
		Namespace: ns,
		Loaded:    depth.Loads(),
		Depth:     depth,
	}
	s.refs[r.Node] = r
	s.order = append(s.order, r.Node)

	id := s.nextIntID
	s.nextIntID++
	s.nodeIntID[r.Node] = id
	s.intToNode = append(s.intToNode, r.Node)
	s.index(r.Path, id)
	return *r, nil
}

// index must be called with s.mu held.
func (s *MemoryScene) index(path string, id uint32) {
	bm, ok := s.pathToNodes[path]
	if !ok {
		bm = roaring.New()
		s.pathToNodes[path] = bm
	}
	bm.Add(id)
}

// unindex must be called with s.mu held.
func (s *MemoryScene) unindex(path string, id uint32) {
	bm, ok := s.pathToNodes[path]
	if !ok {
		return
	}
	bm.Remove(id)
	if bm.IsEmpty() {
		delete(s.pathToNodes, path)
	}
}

// ListLoadedReferenceFiles implements Host, in node creation order.
func (s *MemoryScene) ListLoadedReferenceFiles() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []string{}
	for _, n := range s.order {
		if r := s.refs[n]; r.Loaded {
			out = append(out, r.Path)
		}
	}
	return out, nil
}

// IsReferenceLoaded implements Host.
func (s *MemoryScene) IsReferenceLoaded(path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.pathToNodes[cleanPath(path)]
	if !ok {
		return false, nil
	}
	it := bm.Iterator()
	for it.HasNext() {
		if s.refs[s.intToNode[it.Next()]].Loaded {
			return true, nil
		}
	}
	return false, nil
}

// ResolveReferenceNode implements Host. When several nodes share the
// path the oldest loaded one is returned, or the oldest one if none is
// loaded.
func (s *MemoryScene) ResolveReferenceNode(path string) (Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.pathToNodes[cleanPath(path)]
	if !ok || bm.IsEmpty() {
		return Reference{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	it := bm.Iterator()
	for it.HasNext() {
		if r := s.refs[s.intToNode[it.Next()]]; r.Loaded {
			return *r, nil
		}
	}
	return *s.refs[s.intToNode[bm.Minimum()]], nil
}

// ReloadReferenceSource implements Host. The loaded flag is kept.
func (s *MemoryScene) ReloadReferenceSource(node, newPath string, depth Depth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refs[node]
	if !ok {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	id := s.nodeIntID[node]
	s.unindex(r.Path, id)
	r.Path = cleanPath(newPath)
	r.Depth = depth
	s.index(r.Path, id)
	return nil
}

// References implements Table.
func (s *MemoryScene) References() ([]Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reference, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.refs[n])
	}
	return out, nil
}

// RemoveReference implements Table.
func (s *MemoryScene) RemoveReference(node string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refs[node]
	if !ok {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	id := s.nodeIntID[node]
	s.unindex(r.Path, id)
	delete(s.refs, node)
	delete(s.nodeIntID, node)
	s.intToNode[id] = ""
	for i, n := range s.order {
		if n == node {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetLoaded implements Editor.
func (s *MemoryScene) SetLoaded(node string, loaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refs[node]
	if !ok {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	r.Loaded = loaded
	return nil
}

// Rename implements Editor.
func (s *MemoryScene) Rename(node, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refs[node]
	if !ok {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	id := s.nodeIntID[node]
	s.unindex(r.Path, id)
	r.Path = cleanPath(newPath)
	s.index(r.Path, id)
	return nil
}
