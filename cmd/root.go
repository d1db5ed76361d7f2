package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agentic-research/cachesync/api"
	"github.com/agentic-research/cachesync/internal/catalog"
	"github.com/agentic-research/cachesync/internal/config"
	"github.com/agentic-research/cachesync/internal/control"
	"github.com/agentic-research/cachesync/internal/diff"
	"github.com/agentic-research/cachesync/internal/layout"
	"github.com/agentic-research/cachesync/internal/logging"
	"github.com/agentic-research/cachesync/internal/query"
	"github.com/agentic-research/cachesync/internal/refsync"
	"github.com/agentic-research/cachesync/internal/scene"
	"github.com/agentic-research/cachesync/internal/session"
	"github.com/agentic-research/cachesync/internal/version"
)

var (
	configPath string
	rootDir    string
	scenePath  string
	logLevel   string
	logFormat  string
	jsonOut    bool
	queryExpr  string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to cachesync.hcl (default: ./cachesync.hcl if present)")
	pf.StringVarP(&rootDir, "root", "r", "", "Show root containing asset_wips/ and asset_final/")
	pf.StringVar(&scenePath, "scene", "", "Scene reference table (SQLite file, or :memory:)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVar(&jsonOut, "json", false, "Force JSON output even on a terminal")
	pf.StringVarP(&queryExpr, "query", "q", "", "JSONPath applied to the JSON output")
}

var rootCmd = &cobra.Command{
	Use:   "cachesync",
	Short: "cachesync: versioned cache exports and scene reference synchronization",
	Long: `cachesync finds the newest versioned cache export of every asset in a
shot and rebinds the scene's references to them in place.

Cache files follow <base>_layout_v<NNN>.<ext> with ext in abc, fbx, mb.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a command needs, built from flags and config.
type app struct {
	cfg      api.Config
	logger   *slog.Logger
	fs       billy.Filesystem
	codec    version.Codec
	resolver *version.Resolver
	catalog  *catalog.Catalog
	tree     *layout.Tree

	// ctl is the scene's control file while the scene is open, nil for
	// an in-memory scene.
	ctl *control.Controller
}

func newApp(cmd *cobra.Command) (*app, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}
	cfg, err := config.Load(cwd, configPath, config.Overrides{Root: rootDir, Scene: scenePath})
	if err != nil {
		return nil, err
	}

	// Every path handed to fs is absolute.
	fs := osfs.New("/")
	codec := config.Codec(cfg)
	exts := config.Extensions(cfg)
	resolver := version.NewResolver(fs,
		version.WithCodec(codec),
		version.WithExtensions(exts...),
		version.WithLogger(logger),
	)
	a := &app{
		cfg:      cfg,
		logger:   logger,
		fs:       fs,
		codec:    codec,
		resolver: resolver,
		catalog: catalog.New(fs,
			catalog.WithCodec(codec),
			catalog.WithExtensions(exts...),
			catalog.WithRules(config.Rules(cfg)...),
			catalog.WithLogger(logger),
		),
		tree: layout.New(fs, cfg.Root, layout.WithResolver(resolver), layout.WithLogger(logger)),
	}
	logger.Debug("config loaded", "root", cfg.Root, "scene", cfg.Scene, "extensions", exts)
	return a, nil
}

var errNoRoot = errors.New("show root not set: pass --root or set root in cachesync.hcl")

func (a *app) requireRoot() error {
	if a.cfg.Root == "" {
		return errNoRoot
	}
	return nil
}

// openScene locks the scene's control file and opens the table. Callers
// release both with closeScene.
func (a *app) openScene() (*scene.SQLiteScene, error) {
	if a.cfg.Scene != ":memory:" {
		ctl, err := control.OpenOrCreate(control.PathFor(a.cfg.Scene))
		if err != nil {
			return nil, err
		}
		if err := ctl.TryLock(); err != nil {
			_ = ctl.Close()
			return nil, err
		}
		a.ctl = ctl
	}
	sc, err := scene.OpenSQLite(a.cfg.Scene)
	if err != nil {
		a.closeControl()
		return nil, err
	}
	return sc, nil
}

func (a *app) closeScene(sc *scene.SQLiteScene) {
	_ = sc.Close()
	a.closeControl()
}

func (a *app) closeControl() {
	if a.ctl != nil {
		_ = a.ctl.Close()
		a.ctl = nil
	}
}

func (a *app) session(host scene.Host) (*session.Session, error) {
	depth, err := scene.ParseDepth(a.cfg.LoadDepth)
	if err != nil {
		return nil, err
	}
	var dir string
	return session.New(a.tree, a.catalog, host, session.Options{
		LoadDepth: depth,
		Differ:    &diff.Differ{Codec: a.codec},
		Logger:    a.logger,
		Observer: session.Observer{
			OnCatalog: func(_ api.Scope, snap *catalog.Snapshot) { dir = snap.Dir },
			OnSync: func(rep refsync.Report) {
				if rep.Succeeded > 0 {
					a.noteSync(dir)
				}
			},
			OnImported: func(ref scene.Reference) { a.noteSync(filepath.Dir(ref.Path)) },
		},
	}), nil
}

// noteSync records a change of the scene's references in the control
// file. Failures are logged: the scene table is already committed.
func (a *app) noteSync(dir string) {
	if a.ctl == nil {
		return
	}
	gen, err := a.ctl.Record(dir, time.Now().Unix())
	if err != nil {
		a.logger.Warn("control: record sync", "dir", dir, "error", err)
		return
	}
	a.logger.Debug("control: generation bumped", "generation", gen, "dir", dir)
}

// withShot opens the scene table and a session scoped to <episode> <shot>.
func (a *app) withShot(episode, shot string, fn func(*session.Session, *scene.SQLiteScene) error) error {
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
	if err := sess.SelectScope(api.Scope{Episode: episode, Shot: shot}); err != nil {
		return err
	}
	return fn(sess, sc)
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

// emit writes v as JSON, or calls human when stdout is a terminal and
// neither --json nor --query is set.
func emit(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if !jsonOut && queryExpr == "" && human != nil && isTerminal(w) {
		human(w)
		return nil
	}
	if queryExpr != "" {
		q, err := query.Compile(queryExpr)
		if err != nil {
			return err
		}
		matches, err := q.Apply(v)
		if err != nil {
			return err
		}
		v = query.Result(matches)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
