package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/layout"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/session"
	"github.com/agentic-research/cachesync/internal/version"
)

const cacheDir = "/show/asset_final/published/sequence/ep01/sh010/cache"

func newServer(t *testing.T, files ...string) (*Server, *scene.MemoryScene) {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll(cacheDir, 0o755))
	for _, f := range files {
		require.NoError(t, util.WriteFile(fs, fs.Join(cacheDir, f), []byte("x"), 0o644))
	}
	host := scene.NewMemoryScene()
	tree := layout.New(fs, "/show")
	sess := session.New(tree, catalog.New(fs), host, session.Options{})
	return New("cachesync-test", "0.0.0", sess, tree, version.NewResolver(fs), nil), host
}

func call(t *testing.T, s *Server, name string, h handler, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
	res, err := s.wrap(name, h)(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text, res.IsError
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(text), &v))
	return v
}

func TestNextVersion(t *testing.T) {
	s, _ := newServer(t, "Hero_layout_v001.abc", "Hero_layout_v002.abc")

	text, isErr := call(t, s, "next_version", s.nextVersion, map[string]any{"dir": cacheDir, "base": "Hero"})
	require.False(t, isErr, text)
	got := decode[map[string]any](t, text)
	assert.EqualValues(t, 2, got["latest"])
	assert.EqualValues(t, 3, got["next"])

	text, isErr = call(t, s, "next_version", s.nextVersion, map[string]any{"dir": cacheDir})
	assert.True(t, isErr)
	assert.Contains(t, text, "base")
}

func TestNextVersion_RelativeDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	fs := memfs.New()
	abs := filepath.Join(wd, "caches", "sh010")
	require.NoError(t, util.WriteFile(fs, filepath.Join(abs, "Hero_layout_v004.abc"), []byte("x"), 0o644))
	tree := layout.New(fs, "/show")
	sess := session.New(tree, catalog.New(fs), scene.NewMemoryScene(), session.Options{})
	s := New("cachesync-test", "0.0.0", sess, tree, version.NewResolver(fs), nil)

	text, isErr := call(t, s, "next_version", s.nextVersion, map[string]any{"dir": "caches/./sh010", "base": "Hero"})
	require.False(t, isErr, text)
	got := decode[map[string]any](t, text)
	assert.Equal(t, abs, got["dir"])
	assert.EqualValues(t, 4, got["latest"])
	assert.EqualValues(t, 5, got["next"])
}

func TestEpisodesShotsAndExportPath(t *testing.T) {
	s, _ := newServer(t)

	text, isErr := call(t, s, "list_episodes", s.listEpisodes, nil)
	require.False(t, isErr, text)
	assert.Equal(t, []string{"ep01"}, decode[[]string](t, text))

	text, isErr = call(t, s, "list_shots", s.listShots, map[string]any{"episode": "ep01"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"sh010"}, decode[[]string](t, text))

	text, isErr = call(t, s, "export_path", s.exportPath, map[string]any{
		"kind": "publish", "type": "layout", "asset": "PR_OldChair",
	})
	require.False(t, isErr, text)
	exp := decode[layout.Export](t, text)
	assert.Equal(t, "/show/asset_final/published/layout/PR_OldChair/PR_OldChair_layout_v001.abc", exp.Path)

	_, isErr = call(t, s, "export_path", s.exportPath, map[string]any{
		"kind": "publish", "type": "layout", "asset": "bad name",
	})
	assert.True(t, isErr)

	text, isErr = call(t, s, "export_path", s.exportPath, map[string]any{
		"kind": "publish", "type": "layout", "asset": "PR_OldChair", "ext": "obj",
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "unsupported cache extension")
}

func TestCatalogDiffSyncImport(t *testing.T) {
	s, host := newServer(t,
		"Prop_Chair_layout_v001.abc",
		"Prop_Chair_layout_v003.abc",
		"Hero_char_layout_v002.abc",
		"sh010_cam_layout_v001.abc",
	)
	shot := map[string]any{"episode": "ep01", "shot": "sh010"}

	text, isErr := call(t, s, "list_catalog", s.listCatalog, shot)
	require.False(t, isErr, text)
	view := decode[catalog.View](t, text)
	require.Len(t, view.Categories[catalog.Prop], 1)
	assert.Equal(t, 3, view.Categories[catalog.Prop][0].Version)
	assert.Empty(t, view.Categories[catalog.Unclassified])

	_, err := host.CreateReference(cacheDir+"/Prop_Chair_layout_v001.abc", "Prop_Chair", scene.DepthAll)
	require.NoError(t, err)

	text, isErr = call(t, s, "diff_references", s.diffReferences, shot)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Prop_Chair_layout_v001.abc>>>Prop_Chair_layout_v003.abc")
	assert.Contains(t, text, `"unmatched"`)

	text, isErr = call(t, s, "sync_references", s.syncReferences, shot)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Version updated successfully")
	ref, err := host.ResolveReferenceNode(cacheDir + "/Prop_Chair_layout_v003.abc")
	require.NoError(t, err)
	assert.Equal(t, "Prop_ChairRN", ref.Node)

	text, isErr = call(t, s, "import_references", s.importReferences, map[string]any{
		"episode": "ep01", "shot": "sh010", "mode": "selected",
		"category": "character", "names": []any{"Hero_char"},
	})
	require.False(t, isErr, text)
	refs := decode[[]scene.Reference](t, text)
	require.Len(t, refs, 1)
	assert.Equal(t, "Hero_char", refs[0].Namespace)

	text, isErr = call(t, s, "import_references", s.importReferences, map[string]any{
		"episode": "ep01", "shot": "sh010", "mode": "camera",
	})
	require.False(t, isErr, text)
	assert.Equal(t, "sh010_cam", decode[scene.Reference](t, text).Namespace)

	_, isErr = call(t, s, "import_references", s.importReferences, map[string]any{
		"episode": "ep01", "shot": "sh010", "mode": "sideways",
	})
	assert.True(t, isErr)
}
