package version

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultTag is the fixed token between an asset name and its version.
	DefaultTag = "layout"
	// Width is the zero-padded width of the version number in filenames.
	Width = 3
	// Delimiter introduces the version number.
	Delimiter = "_v"
)

// DefaultExtensions are the cache formats exported by the pipeline.
var DefaultExtensions = []string{"abc", "fbx", "mb"}

// Name is a parsed versioned cache filename.
type Name struct {
	Base    string // asset base name, stable across versions
	Tag     string // "layout" when present, "" otherwise
	Version int
	Ext     string // without the dot, as written in the filename
}

// Stem is the filename without the version token and extension
// (e.g. "Prop_Chair_layout").
func (n Name) Stem() string {
	if n.Tag == "" {
		return n.Base
	}
	return n.Base + "_" + n.Tag
}

func (n Name) String() string {
	return fmt.Sprintf("%s%s%0*d.%s", n.Stem(), Delimiter, Width, n.Version, n.Ext)
}

// Codec formats and parses filenames following
// <base>_<tag>_v<NNN>.<ext>.
type Codec struct {
	Tag string
}

// DefaultCodec uses DefaultTag.
var DefaultCodec = Codec{Tag: DefaultTag}

// Format renders the filename for base at version v.
func (c Codec) Format(base string, v int, ext string) string {
	return Name{Base: base, Tag: c.Tag, Version: v, Ext: strings.TrimPrefix(ext, ".")}.String()
}

// Parse splits filename into its tokens. It reports false when the name
// has no extension or no positive version token after the last "_v".
func (c Codec) Parse(filename string) (Name, bool) {
	dot := strings.LastIndexByte(filename, '.')
	if dot <= 0 || dot == len(filename)-1 {
		return Name{}, false
	}
	stem, ext := filename[:dot], filename[dot+1:]

	i := strings.LastIndex(stem, Delimiter)
	if i <= 0 {
		return Name{}, false
	}
	digits := stem[i+len(Delimiter):]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return Name{}, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v <= 0 {
		return Name{}, false
	}

	n := Name{Base: stem[:i], Version: v, Ext: ext}
	if c.Tag != "" {
		if base, ok := strings.CutSuffix(n.Base, "_"+c.Tag); ok && base != "" {
			n.Base = base
			n.Tag = c.Tag
		}
	}
	return n, true
}

// Format renders a filename with DefaultCodec.
func Format(base string, v int, ext string) string {
	return DefaultCodec.Format(base, v, ext)
}

// Parse parses a filename with DefaultCodec.
func Parse(filename string) (Name, bool) {
	return DefaultCodec.Parse(filename)
}

// HasExtension reports whether filename ends in one of exts
// (case-insensitive, exts given without the dot).
func HasExtension(filename string, exts []string) bool {
	lower := strings.ToLower(filename)
	for _, e := range exts {
		if strings.HasSuffix(lower, "."+strings.ToLower(strings.TrimPrefix(e, "."))) {
			return true
		}
	}
	return false
}
