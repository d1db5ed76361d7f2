// Package session holds the state of one shot being synchronized: the
// selected scope, its catalog snapshot and the last diff.
//
//	Idle -> CatalogLoaded -> DiffComputed -> Synchronized
//
// Synchronized behaves like CatalogLoaded: a new diff may run against the
// same snapshot. Selecting another scope returns to Idle and discards the
// snapshot and diff. Only one operation runs at a time; a second caller
// gets ErrBusy instead of waiting.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/diff"
	"github.com/agentic-research/cachesync/internal/layout"
	"github.com/agentic-research/cachesync/internal/refsync"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/version"
)

// State is a session lifecycle state.
type State string

const (
	Idle          State = "idle"
	CatalogLoaded State = "catalog_loaded"
	DiffComputed  State = "diff_computed"
	Synchronized  State = "synchronized"
)

var (
	ErrBusy              = errors.New("session: another operation is in flight")
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrNoCamera          = errors.New("camera cache not found")
	ErrNothingSelected   = errors.New("nothing selected to import")
	ErrNoImporter        = errors.New("scene host cannot create references")
)

// Observer receives lifecycle events. Nil fields are ignored.
type Observer struct {
	OnState    func(from, to State)
	OnCatalog  func(scope api.Scope, snap *catalog.Snapshot)
	OnDiff     func(res diff.Result)
	OnSync     func(rep refsync.Report)
	OnImported func(ref scene.Reference)
}

// Options tunes a Session.
type Options struct {
	// LoadDepth of references created by imports. Default: scene.DepthAll.
	LoadDepth scene.Depth
	// Differ parses scene filenames. Default: version.DefaultCodec.
	Differ   *diff.Differ
	Observer Observer
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.LoadDepth == "" {
		o.LoadDepth = scene.DepthAll
	}
	if o.Differ == nil {
		o.Differ = &diff.Differ{Codec: version.DefaultCodec}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Session drives catalog, diff and synchronization for one scope at a time.
type Session struct {
	tree    *layout.Tree
	catalog *catalog.Catalog
	host    scene.Host
	sync    *refsync.Synchronizer
	opts    Options

	busy atomic.Bool

	mu     sync.RWMutex
	state  State
	scope  api.Scope
	dir    string
	snap   *catalog.Snapshot
	result *diff.Result
	report *refsync.Report
}

// New returns an Idle session.
func New(tree *layout.Tree, cat *catalog.Catalog, host scene.Host, opts Options) *Session {
	opts.defaults()
	return &Session{
		tree:    tree,
		catalog: cat,
		host:    host,
		sync:    refsync.New(host, opts.Logger),
		opts:    opts,
		state:   Idle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Scope returns the selected scope, zero when Idle with nothing selected.
func (s *Session) Scope() api.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Snapshot returns the current catalog snapshot, or nil.
func (s *Session) Snapshot() *catalog.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// LastDiff returns the last computed diff, or nil.
func (s *Session) LastDiff() *diff.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// LastReport returns the report of the last synchronization, or nil.
func (s *Session) LastReport() *refsync.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func (s *Session) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() { s.busy.Store(false) }

// setState must be called with s.mu held. It returns the previous state.
func (s *Session) setState(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Session) notifyState(from, to State) {
	if from == to {
		return
	}
	s.opts.Logger.Debug("session: state", "from", from, "to", to)
	if s.opts.Observer.OnState != nil {
		s.opts.Observer.OnState(from, to)
	}
}

// SelectScope selects a shot. Choosing a different scope resets the
// session to Idle; re-selecting the current scope keeps everything.
func (s *Session) SelectScope(scope api.Scope) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	dir, err := s.tree.CacheDir(scope)
	if err != nil {
		return fmt.Errorf("select scope: %w", err)
	}

	s.mu.Lock()
	if s.scope == scope && s.state != Idle {
		s.mu.Unlock()
		return nil
	}
	s.scope = scope
	s.dir = dir
	s.snap, s.result, s.report = nil, nil, nil
	from := s.setState(Idle)
	s.mu.Unlock()

	s.opts.Logger.Info("session: scope selected", "scope", scope.String(), "dir", dir)
	s.notifyState(from, Idle)
	return nil
}

// LoadCatalog scans the cache directory of the selected scope. It is
// valid in every state once a scope is selected and always moves to
// CatalogLoaded, discarding any previous diff.
func (s *Session) LoadCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()
	return s.loadCatalog(ctx)
}

func (s *Session) loadCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	s.mu.RLock()
	scope, dir := s.scope, s.dir
	s.mu.RUnlock()
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: load catalog: %w", ErrInvalidTransition, layout.ErrNoScope)
	}

	snap, err := s.catalog.ListLatest(dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.snap = snap
	s.result, s.report = nil, nil
	from := s.setState(CatalogLoaded)
	s.mu.Unlock()

	s.opts.Logger.InfoContext(ctx, "session: catalog loaded", "scope", scope.String(),
		"records", snap.Len(), "skipped", len(snap.Skipped))
	s.notifyState(from, CatalogLoaded)
	if s.opts.Observer.OnCatalog != nil {
		s.opts.Observer.OnCatalog(scope, snap)
	}
	return snap, nil
}

// ComputeDiff compares the snapshot with the references loaded in the
// scene. It requires a loaded catalog.
func (s *Session) ComputeDiff(ctx context.Context) (diff.Result, error) {
	if err := s.acquire(); err != nil {
		return diff.Result{}, err
	}
	defer s.release()
	return s.computeDiff(ctx)
}

func (s *Session) computeDiff(ctx context.Context) (diff.Result, error) {
	s.mu.RLock()
	state, snap := s.state, s.snap
	s.mu.RUnlock()
	switch state {
	case CatalogLoaded, DiffComputed, Synchronized:
	default:
		return diff.Result{}, fmt.Errorf("%w: diff from %s", ErrInvalidTransition, state)
	}

	loaded, err := s.host.ListLoadedReferenceFiles()
	if err != nil {
		return diff.Result{}, fmt.Errorf("list loaded references: %w", err)
	}
	res := s.opts.Differ.Diff(snap, loaded)

	s.mu.Lock()
	s.result = &res
	from := s.setState(DiffComputed)
	s.mu.Unlock()

	s.opts.Logger.InfoContext(ctx, "session: diff computed",
		"higher", len(res.HigherAvailable), "lower", len(res.LowerThanScene),
		"unmatched", len(res.Unmatched), "ambiguous", len(res.Ambiguous))
	for _, a := range res.Ambiguous {
		s.opts.Logger.WarnContext(ctx, "session: ambiguous match",
			"record", a.Record, "matched", a.Matched, "reason", a.Reason)
	}
	s.notifyState(from, DiffComputed)
	if s.opts.Observer.OnDiff != nil {
		s.opts.Observer.OnDiff(res)
	}
	return res, nil
}

// Synchronize applies the pairs of the last diff. It requires
// DiffComputed; the diff is consumed.
func (s *Session) Synchronize(ctx context.Context) (refsync.Report, error) {
	if err := s.acquire(); err != nil {
		return refsync.Report{}, err
	}
	defer s.release()
	return s.synchronize(ctx)
}

func (s *Session) synchronize(ctx context.Context) (refsync.Report, error) {
	s.mu.RLock()
	state, res := s.state, s.result
	s.mu.RUnlock()
	if state != DiffComputed || res == nil {
		return refsync.Report{}, fmt.Errorf("%w: synchronize from %s", ErrInvalidTransition, state)
	}

	rep := s.sync.Synchronize(ctx, res.Pairs())

	s.mu.Lock()
	s.result = nil
	s.report = &rep
	from := s.setState(Synchronized)
	s.mu.Unlock()

	s.notifyState(from, Synchronized)
	if s.opts.Observer.OnSync != nil {
		s.opts.Observer.OnSync(rep)
	}
	return rep, nil
}

// Check rescans the catalog and diffs it against the scene.
func (s *Session) Check(ctx context.Context) (diff.Result, error) {
	if err := s.acquire(); err != nil {
		return diff.Result{}, err
	}
	defer s.release()

	if _, err := s.loadCatalog(ctx); err != nil {
		return diff.Result{}, err
	}
	return s.computeDiff(ctx)
}

// Update rescans, diffs and synchronizes in one step and returns the
// aggregated report together with the diff it applied.
func (s *Session) Update(ctx context.Context) (diff.Result, refsync.Report, error) {
	if err := s.acquire(); err != nil {
		return diff.Result{}, refsync.Report{}, err
	}
	defer s.release()

	if _, err := s.loadCatalog(ctx); err != nil {
		return diff.Result{}, refsync.Report{}, err
	}
	res, err := s.computeDiff(ctx)
	if err != nil {
		return diff.Result{}, refsync.Report{}, err
	}
	rep, err := s.synchronize(ctx)
	return res, rep, err
}
