package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/cachesync/internal/control"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/version"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Inspect and edit the scene reference table",
	Long: `The scene table stands in for a DCC host's reference editor. It is a
SQLite file (--scene, or scene in cachesync.hcl) holding one row per
reference node.`,
}

var sceneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reference nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScene(cmd, func(_ *app, sc *scene.SQLiteScene) error {
			refs, err := sc.References()
			if err != nil {
				return err
			}
			if refs == nil {
				refs = []scene.Reference{}
			}
			return emit(cmd, refs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, r := range refs {
					state := "unloaded"
					if r.Loaded {
						state = "loaded"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Node, r.Namespace, state, r.Path)
				}
				_ = tw.Flush()
			})
		})
	},
}

var (
	addNamespace string
	addDepth     string
)

var sceneAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Reference a file into the scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := absPath(args[0])
		if err != nil {
			return err
		}
		depth, err := scene.ParseDepth(addDepth)
		if err != nil {
			return err
		}
		return withScene(cmd, func(a *app, sc *scene.SQLiteScene) error {
			ns := addNamespace
			if ns == "" {
				ns = defaultNamespace(a.codec, path)
			}
			ref, err := sc.CreateReference(path, ns, depth)
			if err != nil {
				return err
			}
			return emit(cmd, ref, func(w io.Writer) { fmt.Fprintln(w, ref.Node) })
		})
	},
}

var sceneRemoveCmd = &cobra.Command{
	Use:   "remove [node]",
	Short: "Delete a reference node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScene(cmd, func(_ *app, sc *scene.SQLiteScene) error {
			return sc.RemoveReference(args[0])
		})
	},
}

var sceneRepathCmd = &cobra.Command{
	Use:   "repath [node] [path]",
	Short: "Point a reference node at another file without reloading it",
	Long: `repath rewrites the source path of a node as recorded in the scene, for
caches that were moved on disk. Load state and depth are unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := absPath(args[1])
		if err != nil {
			return err
		}
		return withScene(cmd, func(_ *app, sc *scene.SQLiteScene) error {
			return sc.Rename(args[0], path)
		})
	},
}

type sceneStatus struct {
	Scene      string `json:"scene"`
	Generation uint64 `json:"generation"`
	LastDir    string `json:"last_dir,omitempty"`
	SyncedAt   int64  `json:"synced_at,omitempty"`
}

var sceneStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Sync generation and last synced cache directory of the scene",
	Long: `status reads the control file next to the scene table without taking
its lock, so it works while another process is editing the scene.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if a.cfg.Scene == ":memory:" {
			return errors.New("an in-memory scene has no control file")
		}
		ctl, err := control.OpenOrCreate(control.PathFor(a.cfg.Scene))
		if err != nil {
			return err
		}
		defer func() { _ = ctl.Close() }()

		st := sceneStatus{
			Scene:      a.cfg.Scene,
			Generation: ctl.Generation(),
			LastDir:    ctl.LastDir(),
			SyncedAt:   ctl.SyncedAt(),
		}
		return emit(cmd, st, func(w io.Writer) {
			fmt.Fprintf(w, "generation %d\n", st.Generation)
			if st.LastDir != "" {
				fmt.Fprintf(w, "last sync  %s (%s)\n", st.LastDir, time.Unix(st.SyncedAt, 0).Format(time.RFC3339))
			}
		})
	},
}

func setLoadedCmd(use, short string, loaded bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [node]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScene(cmd, func(_ *app, sc *scene.SQLiteScene) error {
				return sc.SetLoaded(args[0], loaded)
			})
		},
	}
}

// defaultNamespace is the base name of a versioned cache file, or the
// file stem otherwise.
func defaultNamespace(codec version.Codec, path string) string {
	name := filepath.Base(path)
	if n, ok := codec.Parse(name); ok {
		return n.Base
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func withScene(cmd *cobra.Command, fn func(*app, *scene.SQLiteScene) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	sc, err := a.openScene()
	if err != nil {
		return err
	}
	defer a.closeScene(sc)
	return fn(a, sc)
}

func init() {
	sceneAddCmd.Flags().StringVar(&addNamespace, "namespace", "", "Namespace of the new node (default: asset base name)")
	sceneAddCmd.Flags().StringVar(&addDepth, "depth", string(scene.DepthAll), "Load depth: all, topOnly or none")
	sceneCmd.AddCommand(sceneListCmd, sceneAddCmd, sceneRemoveCmd, sceneRepathCmd, sceneStatusCmd,
		setLoadedCmd("load", "Load a reference node", true),
		setLoadedCmd("unload", "Unload a reference node, keeping its source", false),
	)
	rootCmd.AddCommand(sceneCmd)
}
