package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/scene"
)

// ErrNotInCatalog is returned when a selected name is not in the snapshot.
var ErrNotInCatalog = errors.New("not in catalog")

// ImportAll references every record of the snapshot into the scene.
func (s *Session) ImportAll(ctx context.Context) ([]scene.Reference, error) {
	return s.importWith(ctx, func(snap *catalog.Snapshot) ([]catalog.Record, error) {
		return snap.Records(), nil
	})
}

// ImportSelected references the named records of one category. A name is
// either a cache filename or an asset base name.
func (s *Session) ImportSelected(ctx context.Context, cat catalog.Category, names ...string) ([]scene.Reference, error) {
	return s.importWith(ctx, func(snap *catalog.Snapshot) ([]catalog.Record, error) {
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNothingSelected, cat)
		}
		var out []catalog.Record
		for _, n := range names {
			rec, ok := lookup(snap, cat, n)
			if !ok {
				return nil, fmt.Errorf("%s %q: %w", cat, n, ErrNotInCatalog)
			}
			out = append(out, rec)
		}
		return out, nil
	})
}

// ImportCamera references the first camera record.
func (s *Session) ImportCamera(ctx context.Context) (scene.Reference, error) {
	refs, err := s.importWith(ctx, func(snap *catalog.Snapshot) ([]catalog.Record, error) {
		cams := snap.ByCategory(catalog.Camera)
		if len(cams) == 0 {
			return nil, ErrNoCamera
		}
		return cams[:1], nil
	})
	if err != nil {
		return scene.Reference{}, err
	}
	return refs[0], nil
}

func lookup(snap *catalog.Snapshot, cat catalog.Category, name string) (catalog.Record, bool) {
	if rec, ok := snap.Get(cat, name); ok {
		return rec, true
	}
	if rec, ok := snap.Find(name); ok && rec.Category == cat {
		return rec, true
	}
	return catalog.Record{}, false
}

// importWith creates one reference per picked record, namespaced by the
// record's base name. Creating references changes the scene, so a pending
// diff is dropped and the session returns to CatalogLoaded.
func (s *Session) importWith(ctx context.Context, pick func(*catalog.Snapshot) ([]catalog.Record, error)) ([]scene.Reference, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	imp, ok := s.host.(scene.Importer)
	if !ok {
		return nil, ErrNoImporter
	}

	s.mu.RLock()
	state, snap := s.state, s.snap
	s.mu.RUnlock()
	if snap == nil {
		return nil, fmt.Errorf("%w: import from %s", ErrInvalidTransition, state)
	}

	recs, err := pick(snap)
	if err != nil {
		return nil, err
	}

	out := make([]scene.Reference, 0, len(recs))
	for _, rec := range recs {
		ref, err := imp.CreateReference(rec.Path, rec.Base, s.opts.LoadDepth)
		if err != nil {
			return out, fmt.Errorf("import %s: %w", rec.Filename, err)
		}
		s.opts.Logger.InfoContext(ctx, "session: imported", "file", rec.Filename,
			"node", ref.Node, "namespace", ref.Namespace, "depth", ref.Depth)
		if s.opts.Observer.OnImported != nil {
			s.opts.Observer.OnImported(ref)
		}
		out = append(out, ref)
	}

	s.mu.Lock()
	var from State
	if s.state == DiffComputed {
		s.result = nil
		from = s.setState(CatalogLoaded)
	}
	s.mu.Unlock()
	if from != "" {
		s.notifyState(from, CatalogLoaded)
	}
	return out, nil
}
