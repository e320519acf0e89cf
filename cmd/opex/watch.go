package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/watch"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for stages waiting on you and print a notice for each",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()
			user, err := rt.identity()
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = rt.cfg.File.Watch.Schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher := watch.New(rt.client, user,
				watch.WithCatalog(rt.catalog),
				watch.WithLogger(rt.log.With("watch")),
				watch.WithLogbook(rt.journal),
				watch.WithNotify(func(n watch.Notice) {
					fprintf(cmd, "[%s] %s\n", time.Now().Format("15:04:05"), n)
				}),
			)
			fprintf(cmd, "Watching as %s (%s), Ctrl+C to stop\n", user.DisplayName(), schedule)
			if err := watcher.Start(ctx, schedule, true); err != nil {
				return err
			}
			<-ctx.Done()
			watcher.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec or @every interval (default from config)")
	return cmd
}
