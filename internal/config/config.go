// Package config loads cachesync.hcl and merges it with command-line
// overrides into the effective configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/version"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "cachesync.hcl"

// DefaultScene is the scene table file, relative to the working directory.
const DefaultScene = "scene.db"

const (
	ErrCodeNotFound = "config_not_found"
	ErrCodeInvalid  = "config_invalid"
)

// Error is a configuration failure carrying an error code.
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %q: %v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %q", e.Code, e.Path)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code of err, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Overrides are command-line values. Empty fields leave the file value alone.
type Overrides struct {
	Root      string
	Scene     string
	LoadDepth string
}

// Default returns the built-in configuration.
func Default() api.Config {
	cfg := api.Config{
		Extensions: append([]string(nil), version.DefaultExtensions...),
		LayoutTag:  version.DefaultTag,
		LoadDepth:  string(scene.DepthAll),
		Scene:      DefaultScene,
	}
	for _, r := range catalog.DefaultRules {
		cfg.Categories = append(cfg.Categories, api.Category{
			Name:   string(r.Category),
			Tokens: append([]string(nil), r.Tokens...),
		})
	}
	return cfg
}

// Load reads path, or DefaultFile in cwd when path is empty. A missing
// default file yields Default(); a missing explicit file is an error.
func Load(cwd, path string, ov Overrides) (api.Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return api.Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		if explicit {
			return api.Config{}, &Error{Code: ErrCodeNotFound, Path: path, Err: err}
		}
		cfg.Scene = resolve(cwd, cfg.Scene)
	} else {
		var fc api.Config
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return api.Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		cfg = merge(cfg, fc)
		// Paths in the file are relative to the file.
		dir := filepath.Dir(path)
		cfg.Root = resolve(dir, cfg.Root)
		cfg.Scene = resolve(dir, cfg.Scene)
	}

	if ov.Root != "" {
		cfg.Root = resolve(cwd, ov.Root)
	}
	if ov.Scene != "" {
		cfg.Scene = resolve(cwd, ov.Scene)
	}
	if ov.LoadDepth != "" {
		cfg.LoadDepth = ov.LoadDepth
	}

	if err := Validate(cfg); err != nil {
		return api.Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return cfg, nil
}

// Decode parses an HCL document held in memory. filename is used in
// diagnostics and must end in .hcl.
func Decode(filename string, src []byte) (api.Config, error) {
	var fc api.Config
	if err := hclsimple.Decode(filename, src, nil, &fc); err != nil {
		return api.Config{}, &Error{Code: ErrCodeInvalid, Path: filename, Err: err}
	}
	cfg := merge(Default(), fc)
	if err := Validate(cfg); err != nil {
		return api.Config{}, &Error{Code: ErrCodeInvalid, Path: filename, Err: err}
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func merge(cfg, fc api.Config) api.Config {
	if fc.Root != "" {
		cfg.Root = fc.Root
	}
	if len(fc.Extensions) > 0 {
		cfg.Extensions = fc.Extensions
	}
	if fc.LayoutTag != "" {
		cfg.LayoutTag = fc.LayoutTag
	}
	if fc.LoadDepth != "" {
		cfg.LoadDepth = fc.LoadDepth
	}
	if fc.Scene != "" {
		cfg.Scene = fc.Scene
	}
	// Categories replace the defaults as a whole so that priority order
	// is exactly what the file says.
	if len(fc.Categories) > 0 {
		cfg.Categories = fc.Categories
	}
	return cfg
}

// Validate checks field values.
func Validate(cfg api.Config) error {
	if _, err := scene.ParseDepth(cfg.LoadDepth); err != nil {
		return err
	}
	if strings.Contains(cfg.LayoutTag, version.Delimiter) {
		return fmt.Errorf("layout_tag %q must not contain %q", cfg.LayoutTag, version.Delimiter)
	}
	for _, e := range cfg.Extensions {
		if e == "" || strings.ContainsAny(e, `/\`) {
			return fmt.Errorf("invalid extension %q", e)
		}
	}
	seen := map[string]bool{}
	for _, c := range cfg.Categories {
		if c.Name == "" {
			return errors.New("category with empty name")
		}
		if c.Name == string(catalog.Unclassified) {
			return fmt.Errorf("category %q is reserved", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if len(c.Tokens) == 0 {
			return fmt.Errorf("category %q has no tokens", c.Name)
		}
	}
	return nil
}

// Rules converts the configured categories to catalog rules.
func Rules(cfg api.Config) []catalog.Rule {
	out := make([]catalog.Rule, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		out = append(out, catalog.Rule{Category: catalog.Category(c.Name), Tokens: c.Tokens})
	}
	return out
}

// Codec returns the filename codec for cfg.
func Codec(cfg api.Config) version.Codec {
	return version.Codec{Tag: cfg.LayoutTag}
}

// Extensions strips leading dots from the configured extensions.
func Extensions(cfg api.Config) []string {
	out := make([]string, 0, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		out = append(out, strings.TrimPrefix(e, "."))
	}
	return out
}
