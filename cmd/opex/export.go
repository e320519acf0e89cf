package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/report"
)

func exportCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export <monitoring|timeline> <initiative-id>",
		Short:     "Export monitoring or timeline data to an xlsx workbook",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"monitoring", "timeline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if kind != "monitoring" && kind != "timeline" {
				return fmt.Errorf("unknown export %q, want monitoring or timeline", kind)
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			var write func(io.Writer) error
			var count int
			switch kind {
			case "monitoring":
				entries, err := rt.client.MonitoringEntries(cmd.Context(), id)
				if err != nil {
					return friendly(err)
				}
				count = len(entries)
				write = func(w io.Writer) error { return report.WriteMonitoring(w, entries) }
			case "timeline":
				entries, err := rt.client.TimelineEntries(cmd.Context(), id)
				if err != nil {
					return friendly(err)
				}
				count = len(entries)
				write = func(w io.Writer) error { return report.WriteTimeline(w, entries) }
			}

			if output == "" {
				output = fmt.Sprintf("initiative-%d-%s.xlsx", id, kind)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := write(f); err != nil {
				_ = f.Close()
				_ = os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			rt.journal.Info("Exported %d %s row(s) for initiative %d", count, kind, id)
			fprintf(cmd, "Wrote %d row(s) to %s\n", count, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Workbook path (default initiative-<id>-<kind>.xlsx)")
	return cmd
}
