package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/persistence"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored meeting history",
		RunE: func(cmd *cobra.Command, args []string) error {
			exportFormat, err := history.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			content, err := exportHistory(cmd.Context(), cfg, store, key, exportFormat)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return writeOutput(cmd.OutOrStdout(), content)
			}
			if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported history to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(history.FormatJSON), "Export format: json, text, md or srt")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&key, "key", "", "Record key (default HISTORY_STORAGE_KEY)")

	return cmd
}

// exportHistory loads the record under key into a read-only manager and
// renders it.
func exportHistory(ctx context.Context, cfg *config.Config, store persistence.Store, key string, format history.ExportFormat) (string, error) {
	settings := cfg.History.Settings()
	if key != "" {
		settings.StorageKey = key
	}
	manager := history.NewManager(store, nil,
		history.WithSettings(settings),
		history.WithLocation(cfg.Location()),
	)
	defer func() {
		destroyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Destroy(destroyCtx)
	}()

	if !manager.LoadFromStorage(ctx) {
		return "", fmt.Errorf("no history stored under %q", settings.StorageKey)
	}
	return manager.ExportHistory(format)
}

func writeOutput(w io.Writer, content string) error {
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, err := io.WriteString(w, "\n")
		return err
	}
	return nil
}
