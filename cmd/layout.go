package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentic-research/cachesync/internal/layout"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List episodes under <root>/" + layout.SequenceDir,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.requireRoot(); err != nil {
			return err
		}
		eps, err := a.tree.Episodes()
		if err != nil {
			return err
		}
		return emit(cmd, eps, lines(eps))
	},
}

var shotsCmd = &cobra.Command{
	Use:   "shots [episode]",
	Short: "List the shots of an episode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.requireRoot(); err != nil {
			return err
		}
		shots, err := a.tree.Shots(args[0])
		if err != nil {
			return err
		}
		return emit(cmd, shots, lines(shots))
	},
}

var exportCreate bool

var exportPathCmd = &cobra.Command{
	Use:   "export-path [save|publish] [type] [asset] [ext]",
	Short: "Next versioned path to export an asset to",
	Long: `Prints <root>/<area>/<type>/<asset>/<asset>_layout_v<NNN>.<ext> where NNN
is one past the highest version already exported. The version is not
reserved: two exports started at the same time get the same path.

Save types:    setPiece, set, prop, character
Publish types: setPiece, set, layout, animation`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.requireRoot(); err != nil {
			return err
		}
		kind, err := layout.ParseKind(args[0])
		if err != nil {
			return err
		}
		ext := "abc"
		if len(args) == 4 {
			ext = args[3]
		}

		alloc := a.tree.NextExport
		if exportCreate {
			alloc = a.tree.Allocate
		}
		exp, err := alloc(kind, args[1], args[2], ext)
		if err != nil {
			return err
		}
		return emit(cmd, exp, func(w io.Writer) { fmt.Fprintln(w, exp.Path) })
	},
}

var exportsCmd = &cobra.Command{
	Use:   "exports [save|publish]",
	Short: "List files already exported to the save or publish area",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.requireRoot(); err != nil {
			return err
		}
		kind, err := layout.ParseKind(args[0])
		if err != nil {
			return err
		}
		files, err := a.tree.Exports(kind)
		if err != nil {
			return err
		}
		if files == nil {
			files = []string{}
		}
		return emit(cmd, files, lines(files))
	},
}

func lines(ss []string) func(io.Writer) {
	return func(w io.Writer) {
		for _, s := range ss {
			fmt.Fprintln(w, s)
		}
	}
}

func init() {
	exportPathCmd.Flags().BoolVar(&exportCreate, "create", false, "Create the export directory")
	rootCmd.AddCommand(episodesCmd, shotsCmd, exportPathCmd, exportsCmd)
}
