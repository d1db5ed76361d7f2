package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/diff"
	"github.com/agentic-research/cachesync/internal/refsync"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/session"
)

var catalogDir string

var catalogCmd = &cobra.Command{
	Use:   "catalog [episode] [shot]",
	Short: "Latest cache file per asset of a shot, by category",
	Args: func(cmd *cobra.Command, args []string) error {
		if catalogDir != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		var snap *catalog.Snapshot
		if catalogDir != "" {
			dir, err := absPath(catalogDir)
			if err != nil {
				return err
			}
			if snap, err = a.catalog.ListLatest(dir); err != nil {
				return err
			}
		} else {
			err = a.withShot(args[0], args[1], func(sess *session.Session, _ *scene.SQLiteScene) error {
				snap, err = sess.LoadCatalog(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
		}
		return emit(cmd, snap.View(), func(w io.Writer) { printCatalog(w, snap) })
	},
}

func printCatalog(w io.Writer, snap *catalog.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range snap.Categories() {
		recs := snap.ByCategory(c)
		if len(recs) == 0 {
			continue
		}
		fmt.Fprintf(tw, "[%s]\n", c)
		for _, r := range recs {
			fmt.Fprintf(tw, "  %s\tv%03d\t%s\n", r.Base, r.Version, r.Filename)
		}
	}
	_ = tw.Flush()
	for _, r := range snap.Shadowed {
		fmt.Fprintf(w, "shadowed: %s\n", r.Filename)
	}
}

type checkOutput struct {
	Diff    diff.Result `json:"diff"`
	Message string      `json:"message"`
}

var checkCmd = &cobra.Command{
	Use:   "check [episode] [shot]",
	Short: "Report scene references that have a newer cache version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		return a.withShot(args[0], args[1], func(sess *session.Session, _ *scene.SQLiteScene) error {
			res, err := sess.Check(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd, checkOutput{Diff: res, Message: res.String()}, func(w io.Writer) {
				printDiff(w, res)
			})
		})
	},
}

func printDiff(w io.Writer, res diff.Result) {
	fmt.Fprint(w, res.String())
	for _, f := range res.LowerThanScene {
		fmt.Fprintf(w, "newer in scene than in cache: %s\n", f)
	}
	for _, f := range res.Unmatched {
		fmt.Fprintf(w, "not in scene: %s\n", f)
	}
	for _, amb := range res.Ambiguous {
		fmt.Fprintf(w, "warning: %s matched %s (%s)\n", amb.Record, amb.Matched, amb.Reason)
	}
}

type updateOutput struct {
	Diff    diff.Result    `json:"diff"`
	Report  refsync.Report `json:"report"`
	Message string         `json:"message"`
}

var updateCmd = &cobra.Command{
	Use:   "update [episode] [shot]",
	Short: "Reload outdated scene references onto the newest cache files",
	Long: `Each outdated reference node is reloaded in place: its name, namespace
and load depth are kept. References that cannot be resolved any more are
reported and skipped; the rest of the batch still runs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		return a.withShot(args[0], args[1], func(sess *session.Session, _ *scene.SQLiteScene) error {
			res, rep, err := sess.Update(cmd.Context())
			if err != nil {
				return err
			}
			if err := emit(cmd, updateOutput{Diff: res, Report: rep, Message: rep.String()}, func(w io.Writer) {
				fmt.Fprint(w, rep.String())
			}); err != nil {
				return err
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d of %d references not updated", rep.Failed, len(rep.Outcomes))
			}
			return nil
		})
	},
}

var (
	importCamera   bool
	importCategory string
)

var importCmd = &cobra.Command{
	Use:   "import [episode] [shot] [names...]",
	Short: "Reference a shot's latest cache files into the scene",
	Long: `Without names or --camera every latest cache file is referenced. With
names, only those records of --category are referenced; a name is a base
name (Hero_char) or a filename (Hero_char_layout_v002.abc). Each new
reference is namespaced by the asset's base name.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		names := args[2:]
		if importCamera && len(names) > 0 {
			return errors.New("--camera takes no names")
		}
		if len(names) > 0 && importCategory == "" {
			return errors.New("--category is required when names are given")
		}

		return a.withShot(args[0], args[1], func(sess *session.Session, _ *scene.SQLiteScene) error {
			ctx := cmd.Context()
			if _, err := sess.LoadCatalog(ctx); err != nil {
				return err
			}
			refs, err := runImport(ctx, sess, names)
			if err != nil {
				return err
			}
			return emit(cmd, refs, func(w io.Writer) {
				for _, r := range refs {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Node, r.Namespace, r.Path)
				}
			})
		})
	},
}

func runImport(ctx context.Context, sess *session.Session, names []string) ([]scene.Reference, error) {
	switch {
	case importCamera:
		ref, err := sess.ImportCamera(ctx)
		if err != nil {
			return nil, err
		}
		return []scene.Reference{ref}, nil
	case len(names) > 0:
		return sess.ImportSelected(ctx, catalog.Category(importCategory), names...)
	default:
		return sess.ImportAll(ctx)
	}
}

func init() {
	catalogCmd.Flags().StringVar(&catalogDir, "dir", "", "Scan this directory instead of a shot's cache directory")
	importCmd.Flags().BoolVar(&importCamera, "camera", false, "Import the shot camera only")
	importCmd.Flags().StringVar(&importCategory, "category", "", "Category of the named records (character, prop, camera, unclassified)")
	rootCmd.AddCommand(catalogCmd, checkCmd, updateCmd, importCmd)
}
