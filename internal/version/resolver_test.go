package version

import (
	"errors"
	"fmt"
	"os"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, fs billy.Filesystem, path string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte("x"), 0o644))
}

// unlistable hides directory listings to force the probing strategy.
type unlistable struct {
	billy.Filesystem
}

func (u unlistable) ReadDir(string) ([]os.FileInfo, error) {
	return nil, errors.New("permission denied")
}

func TestResolver_ContiguousVersions(t *testing.T) {
	for n := 0; n <= 12; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			fs := memfs.New()
			require.NoError(t, fs.MkdirAll("/cache", 0o755))
			for v := 1; v <= n; v++ {
				touch(t, fs, "/cache/"+Format("Hero", v, "abc"))
			}
			r := NewResolver(fs)
			assert.Equal(t, n, r.Latest("/cache", "Hero"))
			assert.Equal(t, n+1, r.Next("/cache", "Hero"))
			assert.Equal(t, n, r.Probe("/cache", "Hero"))
		})
	}
}

func TestResolver_NextAfterTwoVersions(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Hero_layout_v001.abc")
	touch(t, fs, "/cache/Hero_layout_v002.abc")

	r := NewResolver(fs)
	assert.Equal(t, 2, r.Latest("/cache", "Hero"))
	assert.Equal(t, 3, r.Next("/cache", "Hero"))
}

func TestResolver_MissingDirectory(t *testing.T) {
	r := NewResolver(memfs.New())
	assert.Equal(t, 0, r.Latest("/nope", "Hero"))
	assert.Equal(t, 1, r.Next("/nope", "Hero"))
	assert.Equal(t, 0, r.Probe("/nope", "Hero"))
}

func TestResolver_IgnoresOtherAssetsAndFormats(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Hero_layout_v001.abc")
	touch(t, fs, "/cache/HeroSidekick_layout_v007.abc")
	touch(t, fs, "/cache/Hero_layout_v009.txt")
	touch(t, fs, "/cache/Hero_v005.abc") // no layout tag
	require.NoError(t, fs.MkdirAll("/cache/Hero_layout_v004.abc", 0o755))

	r := NewResolver(fs)
	assert.Equal(t, 1, r.Latest("/cache", "Hero"))
	assert.Equal(t, 1, r.Probe("/cache", "Hero"))
}

func TestResolver_MixedExtensions(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Cam_layout_v001.fbx")
	touch(t, fs, "/cache/Cam_layout_v002.mb")
	touch(t, fs, "/cache/Cam_layout_v003.ABC")

	r := NewResolver(fs)
	assert.Equal(t, 3, r.Latest("/cache", "Cam"))
	// Probe builds lowercase names, so v003.ABC is not found on a
	// case-sensitive filesystem.
	assert.Equal(t, 2, r.Probe("/cache", "Cam"))
}

func TestResolver_GapStrategies(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Hero_layout_v001.abc")
	touch(t, fs, "/cache/Hero_layout_v003.abc")

	r := NewResolver(fs)
	assert.Equal(t, 3, r.Latest("/cache", "Hero"), "scan-and-reduce sees past gaps")
	assert.Equal(t, 1, r.Probe("/cache", "Hero"), "probing stops at the first gap")
}

func TestResolver_FallsBackToProbe(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Hero_layout_v001.abc")
	touch(t, fs, "/cache/Hero_layout_v002.abc")
	touch(t, fs, "/cache/Hero_layout_v004.abc")

	r := NewResolver(unlistable{fs})
	assert.Equal(t, 2, r.Latest("/cache", "Hero"))
	assert.Equal(t, 3, r.Next("/cache", "Hero"))
}

func TestResolver_Options(t *testing.T) {
	fs := memfs.New()
	touch(t, fs, "/cache/Hero_anim_v002.usd")

	r := NewResolver(fs, WithCodec(Codec{Tag: "anim"}), WithExtensions("usd"))
	assert.Equal(t, 2, r.Latest("/cache", "Hero"))
	assert.Equal(t, "Hero_anim_v003.usd", r.Codec().Format("Hero", r.Next("/cache", "Hero"), "usd"))
	assert.Equal(t, []string{"usd"}, r.Extensions())
}
