// Package catalog reduces a directory of versioned cache exports to the
// latest file per asset.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/cachesync/internal/version"
)

// Category is a coarse asset class.
type Category string

const (
	Character    Category = "character"
	Prop         Category = "prop"
	Camera       Category = "camera"
	Unclassified Category = "unclassified"
)

// Rule assigns Category to filenames containing any of Tokens.
type Rule struct {
	Category Category
	Tokens   []string
}

// DefaultRules mirror the export naming used by layout: _char, _prop, _cam.
var DefaultRules = []Rule{
	{Category: Character, Tokens: []string{"_char"}},
	{Category: Prop, Tokens: []string{"_prop"}},
	{Category: Camera, Tokens: []string{"_cam"}},
}

// Record is one cache file. Records are values and never mutated after a scan.
type Record struct {
	Filename string   `json:"filename"`
	Path     string   `json:"path"`
	Base     string   `json:"base"`
	Tag      string   `json:"tag,omitempty"`
	Version  int      `json:"version"`
	Ext      string   `json:"ext"`
	Category Category `json:"category"`
}

// Stem is the filename up to the version token: base plus tag.
func (r Record) Stem() string {
	return version.Name{Base: r.Base, Tag: r.Tag}.Stem()
}

// Catalog scans cache directories.
type Catalog struct {
	fs     billy.Filesystem
	codec  version.Codec
	exts   []string
	rules  []Rule
	logger *slog.Logger
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithCodec sets the filename codec. Default: version.DefaultCodec.
func WithCodec(c version.Codec) Option { return func(cat *Catalog) { cat.codec = c } }

// WithExtensions sets the recognized extensions. Default: version.DefaultExtensions.
func WithExtensions(exts ...string) Option {
	return func(c *Catalog) {
		if len(exts) > 0 {
			c.exts = exts
		}
	}
}

// WithRules replaces the category rules. Order is priority order.
func WithRules(rules ...Rule) Option {
	return func(c *Catalog) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Catalog) { c.logger = l } }

func New(fs billy.Filesystem, opts ...Option) *Catalog {
	c := &Catalog{
		fs:     fs,
		codec:  version.DefaultCodec,
		exts:   version.DefaultExtensions,
		rules:  DefaultRules,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Categories returns the bucket order: rule categories, then Unclassified.
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return append(out, Unclassified)
}

// Classify returns the category of filename. Tokens match case-insensitively
// anywhere in "_"+filename, so a leading "Prop_" counts as "_prop".
func (c *Catalog) Classify(filename string) Category {
	s := "_" + strings.ToLower(filename)
	for _, r := range c.rules {
		for _, tok := range r.Tokens {
			if tok != "" && strings.Contains(s, strings.ToLower(tok)) {
				return r.Category
			}
		}
	}
	return Unclassified
}

// ListLatest lists dir once and keeps, per (category, base), the record
// with the highest version. A missing directory yields an empty snapshot.
func (c *Catalog) ListLatest(dir string) (*Snapshot, error) {
	snap := newSnapshot(dir, c.Categories())

	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("catalog: directory missing", "dir", dir)
			return snap, nil
		}
		return nil, fmt.Errorf("catalog: list %s: %w", dir, err)
	}

	// Scan order is lexical so the tie-break below does not depend on
	// the filesystem implementation.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !version.HasExtension(name, c.exts) {
			continue
		}
		n, ok := c.codec.Parse(name)
		if !ok {
			snap.Skipped = append(snap.Skipped, name)
			c.logger.Debug("catalog: no version token", "file", name)
			continue
		}
		snap.offer(Record{
			Filename: name,
			Path:     c.fs.Join(dir, name),
			Base:     n.Base,
			Tag:      n.Tag,
			Version:  n.Version,
			Ext:      n.Ext,
			Category: c.Classify(name),
		})
	}

	c.logger.Debug("catalog: scanned", "dir", dir, "records", snap.Len(),
		"skipped", len(snap.Skipped), "shadowed", len(snap.Shadowed))
	return snap, nil
}
