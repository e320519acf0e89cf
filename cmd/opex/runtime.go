package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/config"
	"github.com/kingrea/opex/internal/demoserver"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/logbook"
	"github.com/kingrea/opex/internal/logging"
	"github.com/kingrea/opex/internal/query"
	"github.com/kingrea/opex/internal/session"
	"github.com/kingrea/opex/internal/workflow"
)

// errSessionExpired replaces api.ErrUnauthorized in CLI output.
var errSessionExpired = errors.New("session expired, run `opex login`")

type setupOptions struct {
	// console sends debug logs to stderr instead of the log file.
	console bool
	// noBackend skips the api client and the embedded demo server.
	noBackend bool
}

// env is everything a command needs, wired from the loaded config.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	journal  *logbook.Logbook
	sessions *session.Store
	catalog  workflow.Catalog
	cache    *query.Cache
	client   *api.Client
	demo     *demoserver.Server
}

func setup(cmd *cobra.Command, opts *globalOptions, so setupOptions) (*env, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}
	overrides := config.Overrides{
		Environment: opts.env,
		LogLevel:    opts.logLevel,
	}
	if cmd.Flags().Changed("demo") {
		demo := opts.demo
		overrides.Demo = &demo
	}
	cfg, err := config.Load(opts.configDir, overrides)
	if err != nil {
		return nil, err
	}

	rt := &env{cfg: cfg}
	if so.console && cfg.File.Log.Level == "debug" {
		rt.log, err = logging.NewConsole(cmd.ErrOrStderr(), cfg.File.Log.Level)
	} else {
		rt.log, err = logging.New(cfg.LogPath(), cfg.File.Log.Level)
	}
	if err != nil {
		return nil, err
	}
	rt.journal, err = logbook.New(cfg.LogbookPath())
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.catalog, err = workflow.Load(cfg.File.Workflow.CatalogFile)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.sessions = session.NewStore(cfg.TokenPath())
	rt.cache = query.New(query.TTLs{
		Initiatives:  cfg.File.Cache.Initiatives,
		Initiative:   cfg.File.Cache.Initiative,
		Transactions: cfg.File.Cache.Transactions,
		Monitoring:   cfg.File.Cache.Monitoring,
		Users:        cfg.File.Cache.Users,
	})
	if so.noBackend {
		return rt, nil
	}

	origin, err := rt.origin(cmd.Context())
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.client = api.NewClient(origin,
		api.WithTimeout(cfg.File.API.Timeout),
		api.WithTokenSource(rt.sessions),
		api.WithLogger(rt.log.With("api")),
		api.WithRequestIDs(uuid.NewString),
	)
	rt.log.Zerolog().Debug().Str("origin", origin).Str("environment", cfg.Environment()).Msg("opex: backend")
	return rt, nil
}

// origin starts the demo server when demo mode is on, otherwise resolves the
// configured backend.
func (rt *env) origin(ctx context.Context) (string, error) {
	if !rt.cfg.DemoEnabled() {
		return api.ResolveOrigin(rt.cfg.File.API.BaseURL, rt.cfg.Environment())
	}
	srv, err := demoserver.NewServer(demoserver.SettingsFromConfig(rt.cfg),
		demoserver.WithCatalog(rt.catalog),
		demoserver.WithLogger(rt.log.With("demo")),
	)
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := srv.Start(ctx); err != nil {
		return "", err
	}
	rt.demo = srv
	rt.journal.Info("Demo backend at %s", srv.BaseURL())
	return srv.BaseURL(), nil
}

func (rt *env) close() {
	if rt.demo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rt.demo.Shutdown(ctx); err != nil {
			rt.log.Zerolog().Warn().Err(err).Msg("opex: demo shutdown")
		}
		cancel()
	}
	if rt.log != nil {
		_ = rt.log.Close()
	}
}

// identity returns the signed-in user or a hint to log in.
func (rt *env) identity() (domain.User, error) {
	identity, err := rt.sessions.Identity()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return domain.User{}, errors.New("not signed in, run `opex login`")
		}
		return domain.User{}, err
	}
	return identity.User, nil
}

// friendly rewrites backend errors for terminal output.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return errSessionExpired
	}
	if msg, ok := api.Message(err); ok {
		return errors.New(msg)
	}
	return err
}

func fprintf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
}
