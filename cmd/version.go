package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Dir    string `json:"dir"`
	Base   string `json:"base"`
	Latest int    `json:"latest"`
	Next   int    `json:"next"`
	File   string `json:"next_file"`
}

var versionExt string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version numbers of an asset's cache files",
}

var versionLatestCmd = &cobra.Command{
	Use:   "latest [dir] [base]",
	Short: "Highest existing version of base in dir (0 when none)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd, args, func(w io.Writer, vi versionInfo) { fmt.Fprintln(w, vi.Latest) })
	},
}

var versionNextCmd = &cobra.Command{
	Use:   "next [dir] [base]",
	Short: "Next version of base in dir, and the filename it maps to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd, args, func(w io.Writer, vi versionInfo) {
			fmt.Fprintf(w, "%d\t%s\n", vi.Next, vi.File)
		})
	},
}

func runVersion(cmd *cobra.Command, args []string, human func(io.Writer, versionInfo)) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	dir, err := absPath(args[0])
	if err != nil {
		return err
	}
	base := args[1]

	latest := a.resolver.Latest(dir, base)
	vi := versionInfo{
		Dir:    dir,
		Base:   base,
		Latest: latest,
		Next:   latest + 1,
		File:   a.codec.Format(base, latest+1, versionExt),
	}
	return emit(cmd, vi, func(w io.Writer) { human(w, vi) })
}

func init() {
	versionNextCmd.Flags().StringVar(&versionExt, "ext", "abc", "Extension of the next filename")
	versionCmd.AddCommand(versionLatestCmd, versionNextCmd)
	rootCmd.AddCommand(versionCmd)
}
