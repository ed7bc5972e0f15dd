package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/backends/appimage"
	"github.com/glorpus-work/fluffpkg/pkg/backends/dotdeb"
	"github.com/glorpus-work/fluffpkg/pkg/backends/gharchive"
	"github.com/glorpus-work/fluffpkg/pkg/config"
	"github.com/glorpus-work/fluffpkg/pkg/desktop"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	"github.com/glorpus-work/fluffpkg/pkg/hooks"
	"github.com/glorpus-work/fluffpkg/pkg/lifecycle"
	"github.com/glorpus-work/fluffpkg/pkg/shell"
	"github.com/glorpus-work/fluffpkg/pkg/sources"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/glorpus-work/fluffpkg/pkg/store/jsonstore"
	"github.com/glorpus-work/fluffpkg/pkg/store/sqlitestore"
)

// LauncherDirName is the directory below the data directory holding the
// generated desktop entries.
const LauncherDirName = "launchers"

// App is one configured fluffpkg instance: the record store, the registered
// modules and the lifecycle engine on top of them.
type App struct {
	Config   *config.Config
	Store    store.Store
	Registry *backend.Registry
	Engine   *lifecycle.Engine
	Desktop  *desktop.Manager
	Sources  *sources.Importer

	Out io.Writer
	Err io.Writer
}

// NewApp opens the record store and registers the bundled modules.
func NewApp(cfg *config.Config, out, errOut io.Writer) (*App, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s := cfg.Settings
	userAgent := "fluffpkg/" + Version
	downloader := download.NewManager(s.HTTPTimeout, userAgent)
	authenticator := cfg.GitHub.Authenticator()
	client, err := github.NewClient(cfg.GitHub.APIURL, s.HTTPTimeout, authenticator, userAgent)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := backend.NewRegistry(Builtins())
	modules := []backend.Backend{
		appimage.New(filepath.Join(cfg.PackagesDir(), appimage.Name), client, downloader, authenticator),
		gharchive.New(filepath.Join(cfg.PackagesDir(), gharchive.Name), cfg.DownloadDir(), client, downloader, authenticator),
		dotdeb.New(filepath.Join(cfg.PackagesDir(), dotdeb.Name), cfg.DownloadDir(), downloader, shell.New()),
	}
	for _, m := range modules {
		if err := registry.Register(m); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	dt := desktop.New(filepath.Join(s.DataDir, LauncherDirName), s.ApplicationsDir, s.BinDir)
	engine := lifecycle.New(registry, st, dt, hooks.NewRunner(s.HooksDir), lifecycle.Hooks{OnEvent: logEvent})

	return &App{
		Config:   cfg,
		Store:    st,
		Registry: registry,
		Engine:   engine,
		Desktop:  dt,
		Sources: &sources.Importer{
			Store:       st,
			Downloader:  downloader,
			CacheDir:    cfg.SourcesDir(),
			Concurrency: s.MaxConcurrent,
		},
		Out: out,
		Err: errOut,
	}, nil
}

// Close releases the record store.
func (a *App) Close() error {
	return a.Store.Close()
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Settings.Store {
	case store.KindJSON:
		st, err := jsonstore.Open(filepath.Join(cfg.Settings.StateDir, jsonstore.DefaultFileName))
		if err != nil {
			return nil, err
		}
		return st, nil
	case store.KindSQLite:
		st, err := sqlitestore.Open(filepath.Join(cfg.Settings.StateDir, sqlitestore.DefaultFileName))
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.ErrUnsupportedStoreKindWithDetails(cfg.Settings.Store)
	}
}

func logEvent(e lifecycle.Event) {
	fields := logger.Fields{"phase": e.Phase, "package": e.Package}
	switch e.Phase {
	case lifecycle.PhaseSkipped:
		logger.Info(e.Msg, fields)
	case lifecycle.PhaseWarning:
		logger.Warn(e.Msg, fields)
	default:
		logger.Debug(e.Msg, fields)
	}
}

// RunGrammar loads the configuration and runs one grammar command line.
func RunGrammar(ctx context.Context, args []string, out, errOut io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, out, errOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to close the record store", logger.Fields{"error": err})
		}
	}()
	return app.Run(ctx, args)
}
