// Package scene defines what cachesync needs from the host scene system
// and provides two stand-in hosts: an in-memory table and a SQLite-backed
// table used by the CLI.
package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// ErrNotFound is returned when no reference node is bound to a path.
var ErrNotFound = errors.New("reference not found")

// Depth is the load depth of a reference node.
type Depth string

const (
	DepthAll     Depth = "all"
	DepthTopOnly Depth = "topOnly"
	DepthNone    Depth = "none"
	DepthAsPrefs Depth = "asPrefs"
)

// ParseDepth validates s. The empty string means DepthAll.
func ParseDepth(s string) (Depth, error) {
	switch d := Depth(s); d {
	case "":
		return DepthAll, nil
	case DepthAll, DepthTopOnly, DepthNone, DepthAsPrefs:
		return d, nil
	default:
		return "", fmt.Errorf("invalid load depth %q", s)
	}
}

// Loads reports whether a node at this depth has its contents loaded.
func (d Depth) Loads() bool { return d != DepthNone }

// Reference is a read-only view of one row of the host's reference table.
type Reference struct {
	Node      string `json:"node"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
	Loaded    bool   `json:"loaded"`
	Depth     Depth  `json:"depth"`
}

// Host is the subset of the scene system the synchronizer relies on.
type Host interface {
	ListLoadedReferenceFiles() ([]string, error)
	IsReferenceLoaded(path string) (bool, error)
	// ResolveReferenceNode returns a node bound to path, preferring a
	// loaded one, or ErrNotFound.
	ResolveReferenceNode(path string) (Reference, error)
	// ReloadReferenceSource points the existing node at newPath. The node
	// keeps its name, namespace and loaded state.
	ReloadReferenceSource(node, newPath string, depth Depth) error
}

// Importer creates new reference nodes.
type Importer interface {
	CreateReference(path, namespace string, depth Depth) (Reference, error)
}

// Table exposes the full reference table and removal, used by tooling.
type Table interface {
	References() ([]Reference, error)
	RemoveReference(node string) error
}

// Editor changes nodes the way an artist would in the host's reference
// editor: loading, unloading or repathing without a reload.
type Editor interface {
	SetLoaded(node string, loaded bool) error
	Rename(node, newPath string) error
}

// Scene is a host that supports every operation.
type Scene interface {
	Host
	Importer
	Table
	Editor
}

func cleanPath(p string) string {
	return filepath.Clean(p)
}

// uniqueNamespace returns want, or want1, want2, ... when taken.
func uniqueNamespace(want string, taken func(string) (bool, error)) (string, error) {
	if want == "" {
		want = "ref"
	}
	ns := want
	for i := 1; ; i++ {
		t, err := taken(ns)
		if err != nil {
			return "", err
		}
		if !t {
			return ns, nil
		}
		ns = want + strconv.Itoa(i)
	}
}

// nodeName derives the reference node name from its namespace.
func nodeName(namespace string) string {
	return namespace + "RN"
}
