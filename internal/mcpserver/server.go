// Package mcpserver exposes cachesync operations as MCP tools so that a
// scene host or an agent can drive catalog scans and reference updates
// over stdio.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/layout"
	"github.com/agentic-research/cachesync/internal/session"
	"github.com/agentic-research/cachesync/internal/version"
)

// Server binds MCP tools to one session. Tool calls are serialized.
type Server struct {
	mcp      *server.MCPServer
	sess     *session.Session
	tree     *layout.Tree
	resolver *version.Resolver
	logger   *slog.Logger

	mu sync.Mutex
}

// New builds the server and registers every tool.
func New(name, ver string, sess *session.Session, tree *layout.Tree, resolver *version.Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(name, ver, server.WithToolCapabilities(false)),
		sess:     sess,
		tree:     tree,
		resolver: resolver,
		logger:   logger,
	}
	s.register()
	return s
}

// ServeStdio blocks serving MCP on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type handler func(ctx context.Context, req mcp.CallToolRequest) (any, error)

// wrap serializes the call and renders the result as indented JSON.
// Errors become tool errors, not protocol errors.
func (s *Server) wrap(name string, h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		out, err := h(ctx, req)
		if err != nil {
			s.logger.WarnContext(ctx, "mcp: tool failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}

func (s *Server) register() {
	shotArgs := []mcp.ToolOption{
		mcp.WithString("episode", mcp.Required(), mcp.Description("Episode directory name")),
		mcp.WithString("shot", mcp.Required(), mcp.Description("Shot directory name")),
	}
	withShot := func(opts ...mcp.ToolOption) []mcp.ToolOption {
		return append(append([]mcp.ToolOption(nil), shotArgs...), opts...)
	}

	s.mcp.AddTool(mcp.NewTool("next_version",
		mcp.WithDescription("Latest and next version number of an asset in a directory."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Directory holding the versioned files")),
		mcp.WithString("base", mcp.Required(), mcp.Description("Asset base name, without tag or version")),
	), s.wrap("next_version", s.nextVersion))

	s.mcp.AddTool(mcp.NewTool("export_path",
		mcp.WithDescription("Next versioned export path for an asset in the save or publish area."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(string(layout.KindSave), string(layout.KindPublish))),
		mcp.WithString("type", mcp.Required(), mcp.Description("Asset type, e.g. prop or layout")),
		mcp.WithString("asset", mcp.Required(), mcp.Description("Asset name, e.g. PR_OldChair")),
		mcp.WithString("ext", mcp.Description("File extension, default abc")),
	), s.wrap("export_path", s.exportPath))

	s.mcp.AddTool(mcp.NewTool("list_episodes",
		mcp.WithDescription("Episodes under the show's published sequence directory."),
	), s.wrap("list_episodes", s.listEpisodes))

	s.mcp.AddTool(mcp.NewTool("list_shots",
		mcp.WithDescription("Shots of one episode."),
		mcp.WithString("episode", mcp.Required()),
	), s.wrap("list_shots", s.listShots))

	s.mcp.AddTool(mcp.NewTool("list_catalog", withShot(
		mcp.WithDescription("Latest cache file per asset for a shot, grouped by category."),
	)...), s.wrap("list_catalog", s.listCatalog))

	s.mcp.AddTool(mcp.NewTool("diff_references", withShot(
		mcp.WithDescription("Compare the shot's latest caches with the references loaded in the scene."),
	)...), s.wrap("diff_references", s.diffReferences))

	s.mcp.AddTool(mcp.NewTool("sync_references", withShot(
		mcp.WithDescription("Reload every outdated scene reference onto its newest cache file."),
	)...), s.wrap("sync_references", s.syncReferences))

	s.mcp.AddTool(mcp.NewTool("import_references", withShot(
		mcp.WithDescription("Reference cache files of the shot into the scene."),
		mcp.WithString("mode", mcp.Enum("all", "camera", "selected"), mcp.Description("Default all")),
		mcp.WithString("category", mcp.Description("Category for mode=selected")),
		mcp.WithArray("names", mcp.WithStringItems(), mcp.Description("Base names or filenames for mode=selected")),
	)...), s.wrap("import_references", s.importReferences))
}

func (s *Server) nextVersion(_ context.Context, req mcp.CallToolRequest) (any, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return nil, err
	}
	base, err := req.RequireString("base")
	if err != nil {
		return nil, err
	}
	// Relative dirs resolve against the server's working directory, as on
	// the command line.
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, err
	}
	latest := s.resolver.Latest(dir, base)
	return map[string]any{"dir": dir, "base": base, "latest": latest, "next": latest + 1}, nil
}

func (s *Server) exportPath(_ context.Context, req mcp.CallToolRequest) (any, error) {
	kind, err := layout.ParseKind(req.GetString("kind", ""))
	if err != nil {
		return nil, err
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return nil, err
	}
	asset, err := req.RequireString("asset")
	if err != nil {
		return nil, err
	}
	return s.tree.NextExport(kind, typ, asset, req.GetString("ext", "abc"))
}

func (s *Server) listEpisodes(context.Context, mcp.CallToolRequest) (any, error) {
	return s.tree.Episodes()
}

func (s *Server) listShots(_ context.Context, req mcp.CallToolRequest) (any, error) {
	ep, err := req.RequireString("episode")
	if err != nil {
		return nil, err
	}
	return s.tree.Shots(ep)
}

func (s *Server) selectScope(req mcp.CallToolRequest) error {
	ep, err := req.RequireString("episode")
	if err != nil {
		return err
	}
	shot, err := req.RequireString("shot")
	if err != nil {
		return err
	}
	return s.sess.SelectScope(api.Scope{Episode: ep, Shot: shot})
}

func (s *Server) listCatalog(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if err := s.selectScope(req); err != nil {
		return nil, err
	}
	snap, err := s.sess.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return snap.View(), nil
}

func (s *Server) diffReferences(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if err := s.selectScope(req); err != nil {
		return nil, err
	}
	res, err := s.sess.Check(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"diff": res, "message": res.String()}, nil
}

func (s *Server) syncReferences(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if err := s.selectScope(req); err != nil {
		return nil, err
	}
	res, rep, err := s.sess.Update(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"diff": res, "report": rep, "message": rep.String()}, nil
}

func (s *Server) importReferences(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if err := s.selectScope(req); err != nil {
		return nil, err
	}
	if _, err := s.sess.LoadCatalog(ctx); err != nil {
		return nil, err
	}
	switch mode := req.GetString("mode", "all"); mode {
	case "all":
		return s.sess.ImportAll(ctx)
	case "camera":
		return s.sess.ImportCamera(ctx)
	case "selected":
		cat, err := req.RequireString("category")
		if err != nil {
			return nil, err
		}
		return s.sess.ImportSelected(ctx, catalog.Category(cat), req.GetStringSlice("names", nil)...)
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}
}
