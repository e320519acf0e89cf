package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/config"
	"github.com/kingrea/opex/internal/demoserver"
)

func demoCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the bundled demo backend",
	}
	cmd.AddCommand(demoServeCmd(opts))
	return cmd
}

func demoServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		persist bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true, noBackend: true})
			if err != nil {
				return err
			}
			defer rt.close()

			settings := demoserver.SettingsFromConfig(rt.cfg)
			if addr != "" {
				settings.Addr = addr
			}
			if persist {
				settings.StatePath = rt.cfg.DemoStatePath()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := demoserver.NewServer(settings,
				demoserver.WithCatalog(rt.catalog),
				demoserver.WithLogger(rt.log.With("demo")),
			)
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			rt.journal.Info("Demo backend at %s", srv.BaseURL())

			fprintf(cmd, "Demo API listening on %s\n", srv.BaseURL())
			fprintf(cmd, "Point clients at it with %s=%s\n\n", config.EnvAPIURL, srv.BaseURL())
			users := srv.Store().Users(api.UserFilter{})
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{u.Email, u.DisplayName(), u.Role.String(), u.Site})
			}
			fprintf(cmd, "%s\n", renderTable([]string{"Email", "Name", "Role", "Site"}, rows))
			fprintf(cmd, "Password for every account: %s\n", settings.Password)

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&persist, "persist", false, "Save demo state on shutdown and reload it on start")
	return cmd
}
