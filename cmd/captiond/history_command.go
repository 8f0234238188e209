package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/persistence"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored meeting history records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := renderRecordList(cmd.Context(), store, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [key]",
		Short: "Show the entries of a history record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			key := cfg.History.StorageKey
			if len(args) == 1 {
				key = args[0]
			}
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := readRecord(cmd.Context(), store, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEntries(rec.History, cfg.Location()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a history record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func readRecord(ctx context.Context, store persistence.Store, key string) (history.Record, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return history.Record{}, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return history.Record{}, fmt.Errorf("no history stored under %q", key)
	}
	var rec history.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return history.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func renderRecordList(ctx context.Context, store persistence.Store, now time.Time) (string, error) {
	records, err := store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		return "No history records stored", nil
	}

	rows := make([][]string, 0, len(records))
	for _, info := range records {
		entries := "?"
		version := "?"
		if rec, err := readRecord(ctx, store, info.Key); err == nil {
			entries = strconv.Itoa(len(rec.History))
			version = rec.Version
		}
		rows = append(rows, []string{
			info.Key,
			entries,
			humanize.Bytes(uint64(info.Size)),
			version,
			humanize.RelTime(info.UpdatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"Key", "Entries", "Size", "Version", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	), nil
}

func renderEntries(entries []history.Entry, loc *time.Location) string {
	if len(entries) == 0 {
		return "No entries"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.StartedAt().In(loc).Format("2006-01-02 15:04:05"),
			e.Speaker,
			strconv.Itoa(e.WordCount),
			e.Length().Round(time.Second).String(),
			truncate(e.Original, 60),
		})
	}
	return renderTable(
		[]string{"Time", "Speaker", "Words", "Duration", "Text"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
