package layout

import (
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/version"
)

func touch(t *testing.T, fs billy.Filesystem, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, util.WriteFile(fs, p, []byte("x"), 0o644))
	}
}

func TestTree_EpisodesAndShots(t *testing.T) {
	fs := memfs.New()
	seq := "/show/asset_final/published/sequence"
	require.NoError(t, fs.MkdirAll(seq+"/ep02/sh020/cache", 0o755))
	require.NoError(t, fs.MkdirAll(seq+"/ep01/sh010/cache", 0o755))
	require.NoError(t, fs.MkdirAll(seq+"/ep01/sh005", 0o755))
	require.NoError(t, fs.MkdirAll(seq+"/.trash", 0o755))
	touch(t, fs, seq+"/README.txt")

	tree := New(fs, "/show")

	eps, err := tree.Episodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"ep01", "ep02"}, eps)

	shots, err := tree.Shots("ep01")
	require.NoError(t, err)
	assert.Equal(t, []string{"sh005", "sh010"}, shots)

	shots, err = tree.Shots("ep99")
	require.NoError(t, err)
	assert.Empty(t, shots)

	_, err = tree.Shots("../etc")
	assert.Error(t, err)
}

func TestTree_EmptyShow(t *testing.T) {
	eps, err := New(memfs.New(), "/nowhere").Episodes()
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestTree_CacheDir(t *testing.T) {
	tree := New(memfs.New(), "/show")

	dir, err := tree.CacheDir(api.Scope{Episode: "ep01", Shot: "sh010"})
	require.NoError(t, err)
	assert.Equal(t, "/show/asset_final/published/sequence/ep01/sh010/cache", dir)

	_, err = tree.CacheDir(api.Scope{})
	assert.ErrorIs(t, err, ErrNoScope)

	_, err = tree.CacheDir(api.Scope{Episode: "ep01"})
	assert.ErrorIs(t, err, ErrNoScope)

	_, err = tree.CacheDir(api.Scope{Episode: "ep01", Shot: "a/b"})
	assert.Error(t, err)
}

func TestTree_NextExport(t *testing.T) {
	fs := memfs.New()
	dir := "/show/asset_final/published/layout/PR_OldChair"
	touch(t, fs,
		dir+"/PR_OldChair_layout_v001.abc",
		dir+"/PR_OldChair_layout_v002.fbx",
	)
	tree := New(fs, "/show")

	exp, err := tree.NextExport(KindPublish, "layout", "PR_OldChair", "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, exp.Version)
	assert.Equal(t, "PR_OldChair_layout_v003.abc", exp.Filename)
	assert.Equal(t, dir+"/PR_OldChair_layout_v003.abc", exp.Path)

	// Save area is independent of publish.
	exp, err = tree.NextExport(KindSave, "prop", "PR_OldChair", ".abc")
	require.NoError(t, err)
	assert.Equal(t, 1, exp.Version)
	assert.Equal(t, "/show/asset_wips/saved/prop/PR_OldChair/PR_OldChair_layout_v001.abc", exp.Path)

	_, err = fs.Stat(exp.Dir)
	assert.Error(t, err, "NextExport must not create directories")
}

func TestTree_AllocateCreatesDir(t *testing.T) {
	fs := memfs.New()
	tree := New(fs, "/show")

	exp, err := tree.Allocate(KindSave, "character", "CH_Hero", "mb")
	require.NoError(t, err)
	assert.Equal(t, 1, exp.Version)

	fi, err := fs.Stat(exp.Dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	touch(t, fs, exp.Path)
	next, err := tree.Allocate(KindSave, "character", "CH_Hero", "mb")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)

	files, err := tree.Exports(KindSave)
	require.NoError(t, err)
	assert.Equal(t, []string{"character/CH_Hero/CH_Hero_layout_v001.mb"}, files)
}

func TestTree_ExportValidation(t *testing.T) {
	tree := New(memfs.New(), "/show")

	_, err := tree.NextExport(KindSave, "layout", "PR_OldChair", "abc")
	assert.ErrorIs(t, err, ErrInvalidType, "layout is a publish-only type")

	_, err = tree.NextExport(KindPublish, "layout", "old_chair", "abc")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestTree_ExportRejectsUnknownExtension(t *testing.T) {
	fs := memfs.New()
	tree := New(fs, "/show")

	for _, ext := range []string{"obj", ".usd", "", "."} {
		_, err := tree.NextExport(KindPublish, "layout", "PR_OldChair", ext)
		assert.ErrorIs(t, err, ErrInvalidExt, ext)
	}
	_, err := tree.Allocate(KindPublish, "layout", "PR_OldChair", "obj")
	assert.ErrorIs(t, err, ErrInvalidExt)
	_, err = fs.Stat("/show/asset_final/published/layout/PR_OldChair")
	assert.Error(t, err, "nothing is created for a rejected extension")

	exp, err := tree.NextExport(KindPublish, "layout", "PR_OldChair", "FBX")
	require.NoError(t, err)
	assert.Equal(t, "PR_OldChair_layout_v001.FBX", exp.Filename)

	// A resolver with its own extension list decides what is allowed.
	custom := New(fs, "/show", WithResolver(version.NewResolver(fs, version.WithExtensions("usd"))))
	_, err = custom.NextExport(KindPublish, "layout", "PR_OldChair", "usd")
	assert.NoError(t, err)
	_, err = custom.NextExport(KindPublish, "layout", "PR_OldChair", "abc")
	assert.ErrorIs(t, err, ErrInvalidExt)
}

func TestValidateAssetName(t *testing.T) {
	for name, ok := range map[string]bool{
		"PR_OldChair": true,
		"C_Hero":      true,
		"SET_Kitchen": true,
		"PROP_Chair":  false,
		"PR_oldChair": false,
		"PR_OLDChair": false,
		"PR_":         false,
		"Chair":       false,
	} {
		err := ValidateAssetName(name)
		if ok {
			assert.NoError(t, err, name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidName, name)
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Publish")
	require.NoError(t, err)
	assert.Equal(t, KindPublish, k)

	_, err = ParseKind("archive")
	assert.Error(t, err)
}
