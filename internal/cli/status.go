package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/boardharvest/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [board...]",
	Short: "Show record counts for stored boards",
	Long: `Status prints how many records each board holds and how many are still
waiting for enrichment. With no arguments every stored board is listed.
Only the record store is opened; no requests are made.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("backend", "", "record store backend (json, sqlite)")
	statusCmd.Flags().String("store-dir", "", "directory for per-board JSON documents")
	statusCmd.Flags().String("sqlite-path", "", "database file for the sqlite backend")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	boards := args
	if len(boards) == 0 {
		if boards, err = store.Boards(cmd.Context(), st); err != nil {
			return err
		}
	}
	if len(boards) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored boards")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOARD\tRECORDS\tENRICHED\tPENDING\tLAST SEQ")
	for _, board := range boards {
		status, err := store.Status(cmd.Context(), st, board)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", status.Board, status.Records, status.Enriched, status.Pending, status.LastSequence)
	}
	return tw.Flush()
}
