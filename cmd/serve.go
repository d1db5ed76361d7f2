package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/cachesync/internal/mcpserver"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cachesync tools over MCP on stdin/stdout",
	Long: `serve exposes the catalog, diff, sync and import operations as MCP
tools bound to one session over the scene table. The scene stays locked
while the server runs. Logs go to stderr; stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.requireRoot(); err != nil {
			return err
		}
		sc, err := a.openScene()
		if err != nil {
			return err
		}
		defer a.closeScene(sc)

		sess, err := a.session(sc)
		if err != nil {
			return err
		}
		srv := mcpserver.New("cachesync", Version, sess, a.tree, a.resolver, a.logger)
		a.logger.Info("mcp: serving on stdio", "root", a.cfg.Root, "scene", a.cfg.Scene)
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
