// cmd/opex/main.go
//
// Entry point for the opex CLI. With no subcommand it launches the terminal
// UI; the subcommands cover the same workflow for scripts and quick checks.
package main

import (
	"fmt"
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/tui"
)

// Set with -ldflags at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "opex"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configDir string
	demo      bool
	env       string
	logLevel  string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "OpEx initiative approval workflow",
		Long:          "opex tracks operational-excellence initiatives through their eleven approval stages.\nRun without a subcommand to open the terminal UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config", "", "Config directory (default $OPEX_HOME or ~/.opex)")
	flags.BoolVar(&opts.demo, "demo", false, "Run against the in-process demo backend")
	flags.StringVar(&opts.env, "env", "", "Deployment environment (local, production, pilot)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		stagesCmd(opts),
		initiativesCmd(opts),
		pendingCmd(opts),
		processCmd(opts),
		filesCmd(opts),
		exportCmd(opts),
		watchCmd(opts),
		demoCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func runTUI(cmd *cobra.Command, opts *globalOptions) error {
	rt, err := setup(cmd, opts, setupOptions{})
	if err != nil {
		return err
	}
	defer rt.close()

	app := tui.NewApp(rt.client, rt.sessions,
		tui.WithCatalog(rt.catalog),
		tui.WithCache(rt.cache),
		tui.WithLogger(rt.log.With("tui")),
		tui.WithLogbook(rt.journal),
		tui.WithRefreshInterval(rt.cfg.File.UI.RefreshInterval),
	)
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
