package diff

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/cachesync/internal/catalog"
)

func snapshot(t *testing.T, names ...string) *catalog.Snapshot {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))
	for _, n := range names {
		require.NoError(t, util.WriteFile(fs, "/cache/"+n, []byte("x"), 0o644))
	}
	snap, err := catalog.New(fs).ListLatest("/cache")
	require.NoError(t, err)
	return snap
}

func TestDiff_HigherAvailable(t *testing.T) {
	snap := snapshot(t, "Prop_Chair_layout_v001.abc", "Prop_Chair_layout_v003.abc")

	res := Diff(snap, []string{"/cache/Prop_Chair_layout_v001.abc"})
	assert.Equal(t, []string{"Prop_Chair_layout_v003.abc"}, res.HigherAvailable)
	assert.Equal(t, []string{"Prop_Chair_layout_v001.abc"}, res.Replaceable)
	assert.Empty(t, res.LowerThanScene)
	assert.Empty(t, res.Unmatched)
	assert.False(t, res.UpToDate())

	assert.Equal(t, []Pair{{
		Stale: "/cache/Prop_Chair_layout_v001.abc",
		Fresh: "/cache/Prop_Chair_layout_v003.abc",
	}}, res.Pairs())
}

func TestDiff_Unmatched(t *testing.T) {
	snap := snapshot(t, "Prop_Chair_layout_v003.abc", "Prop_Table_layout_v001.abc")

	res := Diff(snap, []string{"Prop_Chair_layout_v001.abc"})
	assert.Equal(t, []string{"Prop_Table_layout_v001.abc"}, res.Unmatched)
	assert.Equal(t, []string{"Prop_Chair_layout_v003.abc"}, res.HigherAvailable)
	assert.Equal(t, []string{"Prop_Chair_layout_v001.abc"}, res.Replaceable)
}

func TestDiff_LowerThanSceneAndEqual(t *testing.T) {
	snap := snapshot(t, "Hero_char_layout_v002.abc", "Tree_prop_layout_v004.abc")

	res := Diff(snap, []string{
		"/scene/refs/Hero_char_layout_v005.abc",
		"/cache/Tree_prop_layout_v004.abc",
	})
	assert.Equal(t, []string{"Hero_char_layout_v005.abc"}, res.LowerThanScene)
	assert.Empty(t, res.HigherAvailable)
	assert.Empty(t, res.Replaceable)
	assert.Empty(t, res.Unmatched)
	assert.True(t, res.UpToDate())
}

func TestDiff_PairingInvariant(t *testing.T) {
	snap := snapshot(t,
		"A_char_layout_v003.abc",
		"B_prop_layout_v002.abc",
		"C_cam_layout_v009.fbx",
		"D_layout_v001.abc",
		"E_prop_layout_v001.abc",
	)
	loaded := []string{
		"/x/C_cam_layout_v001.fbx",
		"/x/E_prop_layout_v002.abc",
		"/x/A_char_layout_v001.abc",
		"/x/B_prop_layout_v002.abc",
	}

	res := Diff(snap, loaded)
	require.Equal(t, len(res.HigherAvailable), len(res.Replaceable))
	require.Len(t, res.Pairs(), len(res.HigherAvailable))
	assert.Equal(t, []string{"A_char_layout_v003.abc", "C_cam_layout_v009.fbx"}, res.HigherAvailable)
	assert.Equal(t, []string{"A_char_layout_v001.abc", "C_cam_layout_v001.fbx"}, res.Replaceable)
	for i, p := range res.Pairs() {
		assert.Equal(t, "/x/"+res.Replaceable[i], p.Stale)
		assert.Equal(t, "/cache/"+res.HigherAvailable[i], p.Fresh)
	}
	assert.Equal(t, []string{"E_prop_layout_v002.abc"}, res.LowerThanScene)
	assert.Equal(t, []string{"D_layout_v001.abc"}, res.Unmatched)
}

func TestDiff_IdempotentAfterSync(t *testing.T) {
	snap := snapshot(t, "Prop_Chair_layout_v003.abc")

	first := Diff(snap, []string{"Prop_Chair_layout_v001.abc"})
	require.Len(t, first.Pairs(), 1)

	// Loaded set after the pair has been applied.
	second := Diff(snap, []string{first.Pairs()[0].Fresh})
	assert.Empty(t, second.HigherAvailable)
	assert.Empty(t, second.Replaceable)
	assert.Empty(t, second.Unmatched)
}

func TestDiff_TagKeepsLongerBaseApart(t *testing.T) {
	snap := snapshot(t, "Prop_Chair_layout_v003.abc")

	res := Diff(snap, []string{"/cache/Prop_ChairSmall_layout_v001.abc"})
	assert.Equal(t, []string{"Prop_Chair_layout_v003.abc"}, res.Unmatched)
	assert.Empty(t, res.HigherAvailable)
	assert.Empty(t, res.Replaceable)
	assert.Empty(t, res.Pairs())
	assert.Empty(t, res.Ambiguous)
}

func TestDiff_PrefixCollisionIsReported(t *testing.T) {
	snap := snapshot(t, "Chair_v002.abc")

	res := Diff(snap, []string{"ChairSmall_v001.abc"})
	// Untagged names still match by prefix ...
	assert.Equal(t, []string{"Chair_v002.abc"}, res.HigherAvailable)
	assert.Equal(t, []string{"ChairSmall_v001.abc"}, res.Replaceable)
	// ... but the match is called out.
	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, ReasonPrefixCollision, res.Ambiguous[0].Reason)
	assert.Equal(t, "ChairSmall_v001.abc", res.Ambiguous[0].Matched)
}

func TestDiff_MultipleLoadedVersions(t *testing.T) {
	snap := snapshot(t, "Hero_layout_v004.abc")

	res := Diff(snap, []string{"Hero_layout_v002.abc", "Hero_layout_v001.abc", "Hero_layout_v002.abc"})
	assert.Equal(t, []string{"Hero_layout_v002.abc"}, res.Replaceable, "first loaded match wins")
	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, ReasonMultipleLoaded, res.Ambiguous[0].Reason)
	assert.Equal(t, []string{"Hero_layout_v002.abc", "Hero_layout_v001.abc"}, res.Ambiguous[0].Candidates)
}

func TestDiff_SameFileLoadedTwiceIsNotAmbiguous(t *testing.T) {
	snap := snapshot(t, "Hero_layout_v004.abc")

	res := Diff(snap, []string{"/a/Hero_layout_v002.abc", "/a/Hero_layout_v002.abc"})
	assert.Empty(t, res.Ambiguous)
	assert.Len(t, res.Pairs(), 1)
}

func TestDiff_UnversionedSceneFileIsSkipped(t *testing.T) {
	snap := snapshot(t, "Hero_layout_v004.abc")

	res := Diff(snap, []string{"Hero_layout_final.abc"})
	assert.Empty(t, res.HigherAvailable)
	assert.Empty(t, res.LowerThanScene)
	assert.Empty(t, res.Unmatched)
}

func TestDiff_EmptyInputs(t *testing.T) {
	res := Diff(nil, []string{"Hero_layout_v001.abc"})
	assert.True(t, res.UpToDate())
	assert.NotNil(t, res.Unmatched)

	res = Diff(snapshot(t), nil)
	assert.True(t, res.UpToDate())
	assert.Empty(t, res.Pairs())
}

func TestResult_String(t *testing.T) {
	snap := snapshot(t, "Prop_Chair_layout_v003.abc", "Hero_char_layout_v002.abc")

	res := Diff(snap, []string{"/c/Prop_Chair_layout_v001.abc", "/c/Hero_char_layout_v001.abc"})
	msg := res.String()
	assert.Contains(t, msg, "Need updated version:\n")
	assert.Contains(t, msg, "Prop_Chair_layout_v001.abc>>>Prop_Chair_layout_v003.abc\n")
	assert.Contains(t, msg, "Hero_char_layout_v001.abc>>>Hero_char_layout_v002.abc\n")

	assert.Equal(t, "All references are up to date.\n", Diff(snap, nil).String())
}
