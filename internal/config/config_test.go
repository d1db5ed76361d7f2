package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/cachesync/internal/catalog"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cwd := t.TempDir()

	cfg, err := Load(cwd, "", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "fbx", "mb"}, cfg.Extensions)
	assert.Equal(t, "layout", cfg.LayoutTag)
	assert.Equal(t, "all", cfg.LoadDepth)
	assert.Equal(t, filepath.Join(cwd, DefaultScene), cfg.Scene)
	require.Len(t, cfg.Categories, 3)
	assert.Equal(t, "character", cfg.Categories[0].Name)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(t.TempDir(), "nope.hcl", Overrides{})
	assert.Equal(t, ErrCodeNotFound, Code(err))
}

func TestLoad_File(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "conf", "cachesync.hcl"), `
root       = "../show"
extensions = ["abc"]
load_depth = "topOnly"
scene      = "state/scene.db"

category "camera" {
  tokens = ["_cam", "_camera"]
}
category "character" {
  tokens = ["_char"]
}
`)

	cfg, err := Load(cwd, "conf/cachesync.hcl", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "show"), cfg.Root)
	assert.Equal(t, filepath.Join(cwd, "conf", "state", "scene.db"), cfg.Scene)
	assert.Equal(t, []string{"abc"}, cfg.Extensions)
	assert.Equal(t, "layout", cfg.LayoutTag, "unset fields keep defaults")
	assert.Equal(t, "topOnly", cfg.LoadDepth)

	rules := Rules(cfg)
	require.Len(t, rules, 2)
	assert.Equal(t, catalog.Camera, rules[0].Category)
	assert.Equal(t, []string{"_cam", "_camera"}, rules[0].Tokens)
}

func TestLoad_OverridesWin(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, DefaultFile), `
root       = "/mnt/show"
load_depth = "none"
`)

	cfg, err := Load(cwd, "", Overrides{Root: "other", Scene: ":memory:", LoadDepth: "all"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "other"), cfg.Root)
	assert.Equal(t, ":memory:", cfg.Scene)
	assert.Equal(t, "all", cfg.LoadDepth)
}

func TestLoad_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"syntax":        `root = `,
		"unknown attr":  `colour = "red"`,
		"bad depth":     `load_depth = "deep"`,
		"bad tag":       `layout_tag = "x_vy"`,
		"reserved name": "category \"unclassified\" {\n  tokens = [\"_x\"]\n}",
		"duplicate": "category \"prop\" {\n  tokens = [\"_p\"]\n}\n" +
			"category \"prop\" {\n  tokens = [\"_q\"]\n}",
		"no tokens": "category \"prop\" {\n  tokens = []\n}",
	} {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, DefaultFile), body)
			_, err := Load(cwd, "", Overrides{})
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalid, Code(err))
		})
	}
}

func TestDecode(t *testing.T) {
	cfg, err := Decode("inline.hcl", []byte(`extensions = [".abc", "mb"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "mb"}, Extensions(cfg))
	assert.Equal(t, "layout", Codec(cfg).Tag)

	_, err = Decode("inline.hcl", []byte(`load_depth = 3x`))
	assert.Equal(t, ErrCodeInvalid, Code(err))
}

func TestCode_NonConfigError(t *testing.T) {
	assert.Equal(t, "", Code(os.ErrNotExist))
	assert.Equal(t, "", Code(nil))
}
