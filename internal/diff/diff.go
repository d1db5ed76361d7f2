// Package diff compares a catalog snapshot with the references loaded in
// a scene.
//
// A catalog record matches the first loaded filename that starts with its
// stem, the base name plus tag ("Prop_Chair_layout"). Prefix matching is
// what the pipeline has always done. Including the tag keeps
// "Prop_Chair" off "Prop_ChairSmall" files, but untagged names can still
// collide ("Chair" and "ChairSmall"). Such cases are listed in
// Result.Ambiguous and the match itself is left as is.
package diff

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/version"
)

// Pair binds a stale loaded reference to the cache file that supersedes it.
type Pair struct {
	Stale string `json:"stale"`
	Fresh string `json:"fresh"`
}

// Ambiguity flags a catalog record whose prefix match is not trustworthy.
type Ambiguity struct {
	Record     string   `json:"record"`
	Base       string   `json:"base"`
	Matched    string   `json:"matched"`
	Candidates []string `json:"candidates"`
	Reason     string   `json:"reason"`
}

const (
	ReasonPrefixCollision = "prefix_collision"
	ReasonMultipleLoaded  = "multiple_loaded"
)

// Result holds the four disjoint sequences of a diff. HigherAvailable[i]
// supersedes Replaceable[i].
type Result struct {
	HigherAvailable []string    `json:"higher_available"`
	Replaceable     []string    `json:"replaceable"`
	LowerThanScene  []string    `json:"lower_than_scene"`
	Unmatched       []string    `json:"unmatched"`
	Ambiguous       []Ambiguity `json:"ambiguous,omitempty"`

	pairs []Pair
}

// Pairs returns (stale, fresh) paths in HigherAvailable order.
func (r Result) Pairs() []Pair {
	return append([]Pair(nil), r.pairs...)
}

// UpToDate reports whether nothing needs replacing.
func (r Result) UpToDate() bool {
	return len(r.HigherAvailable) == 0
}

// String renders the pending replacements as "old>>>new" lines.
func (r Result) String() string {
	if r.UpToDate() {
		return "All references are up to date.\n"
	}
	var b strings.Builder
	b.WriteString("Need updated version:\n")
	for i, fresh := range r.HigherAvailable {
		fmt.Fprintf(&b, "%s>>>%s\n", r.Replaceable[i], fresh)
	}
	return b.String()
}

// Differ parses scene filenames with a codec.
type Differ struct {
	Codec version.Codec
}

// Diff compares snap with loaded reference files using version.DefaultCodec.
func Diff(snap *catalog.Snapshot, loaded []string) Result {
	return Differ{Codec: version.DefaultCodec}.Diff(snap, loaded)
}

// Diff classifies every snapshot record against loaded, which may hold
// full paths or bare filenames.
func (d Differ) Diff(snap *catalog.Snapshot, loaded []string) Result {
	res := Result{
		HigherAvailable: []string{},
		Replaceable:     []string{},
		LowerThanScene:  []string{},
		Unmatched:       []string{},
	}
	if snap == nil {
		return res
	}

	names := make([]string, len(loaded))
	for i, p := range loaded {
		names[i] = filepath.Base(p)
	}

	for _, rec := range snap.Records() {
		idx := indexesWithPrefix(names, rec.Stem())
		if len(idx) == 0 {
			res.Unmatched = append(res.Unmatched, rec.Filename)
			continue
		}
		first := idx[0]
		if a, ok := d.ambiguity(rec, names, idx); ok {
			res.Ambiguous = append(res.Ambiguous, a)
		}

		sceneName, ok := d.Codec.Parse(names[first])
		if !ok {
			continue
		}
		switch {
		case rec.Version > sceneName.Version:
			res.HigherAvailable = append(res.HigherAvailable, rec.Filename)
			res.Replaceable = append(res.Replaceable, names[first])
			res.pairs = append(res.pairs, Pair{Stale: loaded[first], Fresh: rec.Path})
		case rec.Version < sceneName.Version:
			res.LowerThanScene = append(res.LowerThanScene, names[first])
		}
	}
	return res
}

func indexesWithPrefix(names []string, prefix string) []int {
	var out []int
	for i, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, i)
		}
	}
	return out
}

func (d Differ) ambiguity(rec catalog.Record, names []string, idx []int) (Ambiguity, bool) {
	a := Ambiguity{Record: rec.Filename, Base: rec.Base, Matched: names[idx[0]]}

	distinct := map[string]bool{}
	for _, i := range idx {
		if !distinct[names[i]] {
			distinct[names[i]] = true
			a.Candidates = append(a.Candidates, names[i])
		}
	}

	for _, c := range a.Candidates {
		n, ok := d.Codec.Parse(c)
		if ok && n.Stem() != rec.Stem() {
			a.Reason = ReasonPrefixCollision
			return a, true
		}
	}
	if len(a.Candidates) > 1 {
		a.Reason = ReasonMultipleLoaded
		return a, true
	}
	return Ambiguity{}, false
}
