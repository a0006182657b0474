package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/history"
	"github.com/opensource-finance/fraudguard/internal/repository"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the persisted fraud history",
	}
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyExportCmd())
	cmd.AddCommand(historyTopCmd())
	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [upiId]",
		Short: "Show the fraud history of a payment handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("no history for %s", args[0])
			}
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), args[0], rec, cfg.History.RecurringThreshold)
			return nil
		},
	}
}

func historyExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full history mapping as JSON",
		Long: `Export reads every record from the configured history backend and
writes it in the file backend's format. The output can be used as the
history file of a single-node deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Snapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			if err := writeSnapshot(cmd.OutOrStdout(), out, snap); err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d handles to %s\n", len(snap), out)
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file (- for stdout)")
	return cmd
}

func historyTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List handles with the most fraudulent verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Snapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			printTop(cmd.OutOrStdout(), snap, limit, cfg.History.RecurringThreshold)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "Maximum handles to list (0 = all)")
	return cmd
}

// openHistory opens the configured history backend read-write. SQL
// backends go through the repository with the matching driver.
func openHistory(cfg *domain.Config) (domain.HistoryStore, error) {
	switch cfg.History.Backend {
	case "sqlite", "postgres":
		repoCfg := cfg.Repository
		repoCfg.Driver = cfg.History.Backend
		repo, err := repository.New(repoCfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return history.New(cfg.History, nil)
	}
}

// writeSnapshot encodes snap to w when out is empty or "-", otherwise
// atomically replaces the file at out.
func writeSnapshot(w io.Writer, out string, snap map[string]domain.HistoryRecord) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	data = append(data, '\n')

	if out == "" || out == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := atomicwriter.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}

func printRecord(w io.Writer, handle string, rec *domain.HistoryRecord, threshold int64) {
	fmt.Fprintf(w, "UPI ID:      %s\n", handle)
	fmt.Fprintf(w, "Fraud count: %d\n", rec.FraudCount)
	if !rec.LastSeen.IsZero() {
		fmt.Fprintf(w, "Last seen:   %s\n", rec.LastSeen.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "Recurring:   %v\n", history.IsRecurring(rec.FraudCount, threshold))
}

func printTop(w io.Writer, snap map[string]domain.HistoryRecord, limit int, threshold int64) {
	handles := sortedHandles(snap)
	if limit > 0 && len(handles) > limit {
		handles = handles[:limit]
	}
	fmt.Fprintf(w, "%-32s %8s  %s\n", "UPI ID", "FRAUD", "RECURRING")
	for _, h := range handles {
		rec := snap[h]
		fmt.Fprintf(w, "%-32s %8d  %v\n", h, rec.FraudCount, history.IsRecurring(rec.FraudCount, threshold))
	}
}

// sortedHandles returns the handles of snap ordered by fraud count,
// highest first.
func sortedHandles(snap map[string]domain.HistoryRecord) []string {
	handles := make([]string, 0, len(snap))
	for h := range snap {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		a, b := snap[handles[i]], snap[handles[j]]
		if a.FraudCount != b.FraudCount {
			return a.FraudCount > b.FraudCount
		}
		return handles[i] < handles[j]
	})
	return handles
}
