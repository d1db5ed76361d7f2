// Package refsync rebinds stale scene references to newer cache files.
//
// Each pair is applied to the loaded reference nodes already bound to the
// stale path. Nodes are never unloaded and recreated, so connections made to a
// node in the scene survive the update. A pair that cannot be applied is
// recorded as a failure and the batch moves on; earlier successes are not
// rolled back.
package refsync

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/agentic-research/cachesync/internal/diff"
	"github.com/agentic-research/cachesync/internal/scene"
)

// Synchronizer applies diff pairs to a scene host.
type Synchronizer struct {
	host   scene.Host
	logger *slog.Logger
}

// New returns a Synchronizer. A nil logger means slog.Default().
func New(host scene.Host, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{host: host, logger: logger}
}

// Synchronize applies pairs in order and returns one aggregated report.
// A pair yields one outcome per loaded node rebound from its stale path.
// ctx is used for logging only: a batch always runs to completion.
func (s *Synchronizer) Synchronize(ctx context.Context, pairs []diff.Pair) Report {
	rep := NewReport()
	for _, p := range pairs {
		rep.Outcomes = append(rep.Outcomes, s.apply(ctx, p)...)
	}
	rep.Finalize()
	s.logger.InfoContext(ctx, "refsync: batch done",
		"pairs", len(pairs), "succeeded", rep.Succeeded, "failed", rep.Failed)
	return rep
}

// apply rebinds every loaded node bound to p.Stale. Unloaded nodes on the
// same path are left alone.
func (s *Synchronizer) apply(ctx context.Context, p diff.Pair) []Outcome {
	var outs []Outcome
	seen := map[string]bool{}
	for {
		ref, err := s.host.ResolveReferenceNode(p.Stale)
		switch {
		case errors.Is(err, scene.ErrNotFound) && len(outs) > 0:
			return outs
		case err != nil:
			code := ErrCodeStaleReference
			if !errors.Is(err, scene.ErrNotFound) {
				code = ErrCodeHostFailed
			}
			s.logger.WarnContext(ctx, "refsync: skip pair", "old", p.Stale, "error", err)
			return append(outs, s.failed(p, scene.Reference{}, code, err.Error()))
		case !ref.Loaded && len(outs) > 0:
			return outs
		case !ref.Loaded:
			s.logger.WarnContext(ctx, "refsync: skip pair", "old", p.Stale, "node", ref.Node, "error", "not loaded")
			return append(outs, s.failed(p, ref, ErrCodeStaleReference, "no loaded node bound to "+p.Stale))
		case seen[ref.Node]:
			// A host that does not rebind the node would loop forever.
			return append(outs, s.failed(p, ref, ErrCodeHostFailed, "node still bound to "+p.Stale+" after reload"))
		}
		seen[ref.Node] = true

		out := s.reload(ctx, p, ref)
		outs = append(outs, out)
		if !out.OK() {
			return outs
		}
	}
}

func (s *Synchronizer) reload(ctx context.Context, p diff.Pair, ref scene.Reference) Outcome {
	depth := ref.Depth
	if depth == "" {
		depth = scene.DepthAll
	}
	if err := s.host.ReloadReferenceSource(ref.Node, p.Fresh, depth); err != nil {
		s.logger.WarnContext(ctx, "refsync: reload failed", "node", ref.Node, "new", p.Fresh, "error", err)
		return s.failed(p, ref, ErrCodeReloadFailed, err.Error())
	}
	s.logger.DebugContext(ctx, "refsync: reloaded", "node", ref.Node,
		"old", filepath.Base(p.Stale), "new", filepath.Base(p.Fresh), "depth", depth)
	return Outcome{
		Status:    StatusUpdated,
		Old:       p.Stale,
		New:       p.Fresh,
		Node:      ref.Node,
		Namespace: ref.Namespace,
		WasLoaded: ref.Loaded,
	}
}

func (s *Synchronizer) failed(p diff.Pair, ref scene.Reference, code, msg string) Outcome {
	return Outcome{
		Status:    StatusFailed,
		Old:       p.Stale,
		New:       p.Fresh,
		Node:      ref.Node,
		Namespace: ref.Namespace,
		WasLoaded: ref.Loaded,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
