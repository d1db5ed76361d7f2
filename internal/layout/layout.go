// Package layout maps show-level concepts (episodes, shots, save and publish
// areas) onto directories below a show root.
//
//	<root>/asset_final/published/sequence/<episode>/<shot>/cache
//	<root>/asset_wips/saved/<type>/<asset>/<asset>_layout_vNNN.<ext>
//	<root>/asset_final/published/<type>/<asset>/<asset>_layout_vNNN.<ext>
package layout

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/version"
)

const (
	SequenceDir = "asset_final/published/sequence"
	CacheDir    = "cache"
	SaveDir     = "asset_wips/saved"
	PublishDir  = "asset_final/published"
)

// Kind selects the export area.
type Kind string

const (
	KindSave    Kind = "save"
	KindPublish Kind = "publish"
)

// ParseKind accepts "save" or "publish".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindSave, KindPublish:
		return k, nil
	}
	return "", fmt.Errorf("unknown export kind %q (want save or publish)", s)
}

// AssetTypes lists the top-level groups exported to each area, in export order.
var AssetTypes = map[Kind][]string{
	KindSave:    {"setPiece", "set", "prop", "character"},
	KindPublish: {"setPiece", "set", "layout", "animation"},
}

// assetName is the studio naming convention: a short upper-case prefix and
// one or more capitalized words, e.g. "PR_OldChair".
var assetName = regexp.MustCompile(`^[A-Z]{1,3}_([A-Z][a-z]+)+$`)

var (
	ErrInvalidName = errors.New("invalid asset name")
	ErrInvalidType = errors.New("invalid asset type")
	ErrNoScope     = errors.New("no episode/shot selected")
	ErrInvalidExt  = errors.New("unsupported cache extension")
)

// ValidateAssetName checks name against the naming convention.
func ValidateAssetName(name string) error {
	if !assetName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Export is an allocated export target.
type Export struct {
	Kind     Kind   `json:"kind"`
	Type     string `json:"type"`
	Asset    string `json:"asset"`
	Dir      string `json:"dir"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Version  int    `json:"version"`
}

// Tree is a show root on a filesystem.
type Tree struct {
	fs       billy.Filesystem
	root     string
	resolver *version.Resolver
	logger   *slog.Logger
}

type Option func(*Tree)

// WithResolver sets the version resolver used for export allocation.
func WithResolver(r *version.Resolver) Option { return func(t *Tree) { t.resolver = r } }

func WithLogger(l *slog.Logger) Option { return func(t *Tree) { t.logger = l } }

// New returns a Tree rooted at root.
func New(fs billy.Filesystem, root string, opts ...Option) *Tree {
	t := &Tree{fs: fs, root: root, logger: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	if t.resolver == nil {
		t.resolver = version.NewResolver(fs, version.WithLogger(t.logger))
	}
	return t
}

// Root returns the show root.
func (t *Tree) Root() string { return t.root }

// SequencePath is the directory holding one subdirectory per episode.
func (t *Tree) SequencePath() string {
	return t.fs.Join(t.root, SequenceDir)
}

// Episodes lists episode directories in lexical order. A show without a
// sequence directory has no episodes.
func (t *Tree) Episodes() ([]string, error) {
	return t.subdirs(t.SequencePath())
}

// Shots lists the shots of episode in lexical order.
func (t *Tree) Shots(episode string) ([]string, error) {
	if err := checkSegment("episode", episode); err != nil {
		return nil, err
	}
	return t.subdirs(t.fs.Join(t.SequencePath(), episode))
}

// CacheDir returns the cache directory of scope. The directory is not
// required to exist.
func (t *Tree) CacheDir(scope api.Scope) (string, error) {
	if scope.Episode == "" || scope.Shot == "" {
		return "", ErrNoScope
	}
	if err := checkSegment("episode", scope.Episode); err != nil {
		return "", err
	}
	if err := checkSegment("shot", scope.Shot); err != nil {
		return "", err
	}
	return t.fs.Join(t.SequencePath(), scope.Episode, scope.Shot, CacheDir), nil
}

// ExportDir returns <root>/<area>/<type>/<asset>.
func (t *Tree) ExportDir(kind Kind, assetType, asset string) string {
	area := SaveDir
	if kind == KindPublish {
		area = PublishDir
	}
	return t.fs.Join(t.root, area, assetType, asset)
}

// NextExport computes the next versioned export path for asset without
// touching the filesystem. ext must be one of the resolver's extensions,
// otherwise the version probe could not see the file once written.
func (t *Tree) NextExport(kind Kind, assetType, asset, ext string) (Export, error) {
	if err := t.validate(kind, assetType, asset); err != nil {
		return Export{}, err
	}
	exts := t.resolver.Extensions()
	if !version.HasExtension("."+strings.TrimPrefix(ext, "."), exts) {
		return Export{}, fmt.Errorf("%w: %q (want one of %s)", ErrInvalidExt, ext, strings.Join(exts, ", "))
	}
	dir := t.ExportDir(kind, assetType, asset)
	v := t.resolver.Next(dir, asset)
	name := t.resolver.Codec().Format(asset, v, ext)
	return Export{
		Kind:     kind,
		Type:     assetType,
		Asset:    asset,
		Dir:      dir,
		Filename: name,
		Path:     t.fs.Join(dir, name),
		Version:  v,
	}, nil
}

// Allocate is NextExport plus creation of the export directory.
func (t *Tree) Allocate(kind Kind, assetType, asset, ext string) (Export, error) {
	exp, err := t.NextExport(kind, assetType, asset, ext)
	if err != nil {
		return Export{}, err
	}
	if err := t.fs.MkdirAll(exp.Dir, 0o755); err != nil {
		return Export{}, fmt.Errorf("layout: create %s: %w", exp.Dir, err)
	}
	t.logger.Info("layout: export allocated", "kind", kind, "path", exp.Path, "version", exp.Version)
	return exp, nil
}

// Exports lists the files already exported for every asset of kind,
// as paths relative to the area root (<type>/<asset>/<file>).
func (t *Tree) Exports(kind Kind) ([]string, error) {
	var out []string
	for _, typ := range AssetTypes[kind] {
		assets, err := t.subdirs(t.fs.Join(t.areaPath(kind), typ))
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			entries, err := t.fs.ReadDir(t.ExportDir(kind, typ, a))
			if err != nil {
				return nil, fmt.Errorf("layout: list %s/%s: %w", typ, a, err)
			}
			for _, e := range entries {
				if !e.IsDir() {
					out = append(out, typ+"/"+a+"/"+e.Name())
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *Tree) areaPath(kind Kind) string {
	if kind == KindPublish {
		return t.fs.Join(t.root, PublishDir)
	}
	return t.fs.Join(t.root, SaveDir)
}

func (t *Tree) validate(kind Kind, assetType, asset string) error {
	types, ok := AssetTypes[kind]
	if !ok {
		return fmt.Errorf("unknown export kind %q", kind)
	}
	if !slices.Contains(types, assetType) {
		return fmt.Errorf("%w: %q for %s (want one of %s)", ErrInvalidType, assetType, kind, strings.Join(types, ", "))
	}
	return ValidateAssetName(asset)
}

func (t *Tree) subdirs(dir string) ([]string, error) {
	entries, err := t.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("layout: list %s: %w", dir, err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func checkSegment(what, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid %s name %q", what, s)
	}
	return nil
}
