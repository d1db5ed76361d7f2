package api

// Config is the root configuration document of a cachesync project.
// It describes where the show lives on disk and how cache filenames
// are tokenized.
type Config struct {
	// Root of the show repository (contains asset_wips/ and asset_final/).
	Root string `hcl:"root,optional" json:"root"`
	// Extensions recognized as cache files, without the leading dot.
	Extensions []string `hcl:"extensions,optional" json:"extensions,omitempty"`
	// LayoutTag is the fixed token between the asset name and the version.
	LayoutTag string `hcl:"layout_tag,optional" json:"layout_tag,omitempty"`
	// LoadDepth used when new references are created by an import.
	LoadDepth string `hcl:"load_depth,optional" json:"load_depth,omitempty"`
	// Scene is the path of the SQLite scene table used by the CLI host.
	Scene string `hcl:"scene,optional" json:"scene,omitempty"`
	// Categories in priority order. The first category whose token matches wins.
	Categories []Category `hcl:"category,block" json:"categories,omitempty"`
}

// Category maps a coarse asset class to the reserved filename tokens
// that identify it.
type Category struct {
	Name   string   `hcl:"name,label" json:"name"`
	Tokens []string `hcl:"tokens" json:"tokens"`
}

// Scope selects one shot of one episode.
type Scope struct {
	Episode string `json:"episode"`
	Shot    string `json:"shot"`
}

// IsZero reports whether no shot is selected.
func (s Scope) IsZero() bool {
	return s.Episode == "" && s.Shot == ""
}

func (s Scope) String() string {
	if s.IsZero() {
		return "<none>"
	}
	return s.Episode + "/" + s.Shot
}
