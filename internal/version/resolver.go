// Package version allocates sequential version numbers for exported caches.
//
// Two discovery strategies exist. Latest reduces a single directory listing
// to the highest version present; Probe tests <base>_layout_v001, v002, ...
// until the first missing file and is only used when the directory cannot
// be listed. A directory that does not exist holds zero versions.
//
// Nothing here reserves a version: two processes asking for Next at the
// same time get the same number.
package version

import (
	"errors"
	"log/slog"
	"os"

	billy "github.com/go-git/go-billy/v5"
)

// Resolver answers latest/next version questions against a filesystem.
type Resolver struct {
	fs     billy.Filesystem
	codec  Codec
	exts   []string
	logger *slog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithCodec sets the filename codec. Default: DefaultCodec.
func WithCodec(c Codec) Option { return func(r *Resolver) { r.codec = c } }

// WithExtensions sets the recognized cache extensions. Default: DefaultExtensions.
func WithExtensions(exts ...string) Option {
	return func(r *Resolver) {
		if len(exts) > 0 {
			r.exts = exts
		}
	}
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

func NewResolver(fs billy.Filesystem, opts ...Option) *Resolver {
	r := &Resolver{
		fs:     fs,
		codec:  DefaultCodec,
		exts:   DefaultExtensions,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Codec returns the codec used to build filenames.
func (r *Resolver) Codec() Codec { return r.codec }

// Extensions returns the recognized cache extensions.
func (r *Resolver) Extensions() []string { return r.exts }

// Latest returns the highest version of base stored in dir, or 0.
func (r *Resolver) Latest(dir, base string) int {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0
		}
		r.logger.Debug("version: listing unavailable, probing", "dir", dir, "error", err)
		return r.Probe(dir, base)
	}

	latest := 0
	for _, e := range entries {
		if e.IsDir() || !HasExtension(e.Name(), r.exts) {
			continue
		}
		n, ok := r.codec.Parse(e.Name())
		if !ok || n.Base != base || n.Tag != r.codec.Tag {
			continue
		}
		if n.Version > latest {
			latest = n.Version
		}
	}
	return latest
}

// Next returns Latest + 1.
func (r *Resolver) Next(dir, base string) int {
	return r.Latest(dir, base) + 1
}

// Probe walks versions 1, 2, 3, ... and returns the last one for which a
// file exists under any recognized extension. Gaps end the walk.
func (r *Resolver) Probe(dir, base string) int {
	v := 1
	for r.exists(dir, base, v) {
		v++
	}
	return v - 1
}

func (r *Resolver) exists(dir, base string, v int) bool {
	for _, ext := range r.exts {
		fi, err := r.fs.Stat(r.fs.Join(dir, r.codec.Format(base, v, ext)))
		if err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}
