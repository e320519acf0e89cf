package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
)

func filesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage initiative attachments",
	}
	cmd.AddCommand(
		filesListCmd(opts),
		filesUploadCmd(opts),
		filesDownloadCmd(opts),
		filesDeleteCmd(opts),
	)
	return cmd
}

func filesListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <initiative-id>",
		Short: "List attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			files, err := rt.client.ListFiles(cmd.Context(), id)
			if err != nil {
				return friendly(err)
			}
			if len(files) == 0 {
				fprintf(cmd, "No files\n")
				return nil
			}
			fprintf(cmd, "%s\n", renderTable([]string{"ID", "Name", "Type", "Size", "Uploaded by", "Uploaded"}, fileRows(files)))
			return nil
		},
	}
}

func fileRows(files []domain.InitiativeFile) [][]string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		uploaded := "-"
		if f.UploadedAt != nil && !f.UploadedAt.IsZero() {
			uploaded = f.UploadedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.FileName,
			firstNonEmpty(f.FileType, "-"),
			humanBytes(f.FileSize),
			firstNonEmpty(f.UploadedBy, "-"),
			uploaded,
		})
	}
	return rows
}

func filesUploadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <initiative-id> <path>...",
		Short: "Upload one or more documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			paths := args[1:]
			for _, path := range paths {
				if _, err := api.CheckUpload(path); err != nil {
					return err
				}
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			uploaded, err := rt.client.UploadFiles(cmd.Context(), id, paths...)
			if err != nil {
				rt.journal.Error("Upload to initiative %d failed: %v", id, err)
				return friendly(err)
			}
			rt.journal.Info("Uploaded %d file(s) to initiative %d", len(paths), id)
			if len(uploaded) > 0 {
				fprintf(cmd, "%s\n", renderTable([]string{"ID", "Name", "Type", "Size", "Uploaded by", "Uploaded"}, fileRows(uploaded)))
				return nil
			}
			fprintf(cmd, "Uploaded %d file(s)\n", len(paths))
			return nil
		},
	}
}

func filesDownloadCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			tempRoot := "."
			if output != "" {
				tempRoot = filepath.Dir(output)
			}
			dir, err := os.MkdirTemp(tempRoot, ".opex-download-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			tmp, err := os.Create(filepath.Join(dir, "part"))
			if err != nil {
				return err
			}
			name, err := rt.client.DownloadFile(cmd.Context(), id, tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return friendly(err)
			}

			target := output
			if target == "" {
				target = filepath.Base(name)
			}
			if err := os.Rename(tmp.Name(), target); err != nil {
				return fmt.Errorf("save %s: %w", target, err)
			}
			fprintf(cmd, "Saved %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default: the server's file name)")
	return cmd
}

func filesDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.client.DeleteFile(cmd.Context(), id); err != nil {
				return friendly(err)
			}
			rt.journal.Info("Deleted file %d", id)
			fprintf(cmd, "Deleted file %d\n", id)
			return nil
		},
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
