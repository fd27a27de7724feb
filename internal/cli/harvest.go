package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/pipeline"
	"github.com/ppiankov/boardharvest/internal/worker"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest [board...]",
	Short: "Page through board listings and store new items",
	Long: `Harvest walks the listing of each board from the newest page, appending
items that are not yet stored. A board stops on the last page or once the
configured number of old items has been seen.

Example:
  boardharvest harvest Stock NBA
  boardharvest harvest --boards-file boards.txt --parallel 4
  boardharvest harvest Stock --old-before 2024-01-01 --threshold 10`,
	RunE: runStage(pipeline.StageHarvest),
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [board...]",
	Short: "Fetch detail data for stored items that lack it",
	Long: `Enrich requests the detail endpoint of every stored item that has not been
enriched yet and records comment counts, reactions and optional body text.
Items that keep failing are left pending for the next run.

Example:
  boardharvest enrich Stock
  boardharvest enrich Stock --workers 8 --cache`,
	RunE: runStage(pipeline.StageEnrich),
}

var runCmd = &cobra.Command{
	Use:   "run [board...]",
	Short: "Harvest then enrich each board",
	Long: `Run performs harvest followed by enrich for each board. A board whose harvest
fails is not enriched; other boards continue.

Example:
  boardharvest run Stock NBA Gossiping --parallel 3`,
	RunE: runStage(pipeline.StageRun),
}

func init() {
	for _, cmd := range []*cobra.Command{harvestCmd, enrichCmd, runCmd} {
		addCommonFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{harvestCmd, runCmd} {
		addHarvestFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{enrichCmd, runCmd} {
		addEnrichFlags(cmd)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	d := model.DefaultConfig()
	cmd.Flags().String("boards-file", "", "file with one board name per line (# comments allowed)")
	cmd.Flags().String("api-key", "", "listing API key (prefer BOARDHARVEST_API_KEY)")
	cmd.Flags().String("listing-url", d.API.ListingURL, "listing endpoint")
	cmd.Flags().String("detail-url", d.API.DetailURL, "detail endpoint prefix")
	cmd.Flags().String("backend", d.Store.Backend, "record store backend (json, sqlite)")
	cmd.Flags().String("store-dir", d.Store.Dir, "directory for per-board JSON documents")
	cmd.Flags().String("sqlite-path", d.Store.SQLitePath, "database file for the sqlite backend")
	cmd.Flags().Int("parallel", d.Harvest.Parallel, "boards processed concurrently")
	cmd.Flags().Float64("rps", d.HTTP.RequestsPerSecond, "requests per second per host (0 = unlimited)")
	cmd.Flags().String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	cmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	cmd.Flags().Bool("respect-robots", false, "honour robots.txt of the API hosts")
}

func addHarvestFlags(cmd *cobra.Command) {
	d := model.DefaultConfig()
	cmd.Flags().Int("threshold", d.Harvest.StopThreshold, "old items seen before a board stops")
	cmd.Flags().String("old-prefix", d.Harvest.OldPrefix, "sort-time prefix marking an item as old")
	cmd.Flags().String("old-before", "", "cutoff date marking older items as old (overrides --old-prefix)")
	cmd.Flags().Int("checkpoint-pages", d.Harvest.CheckpointPages, "pages between store flushes")
}

func addEnrichFlags(cmd *cobra.Command) {
	d := model.DefaultConfig()
	cmd.Flags().Int("workers", d.Enrich.Workers, "concurrent detail requests per board")
	cmd.Flags().Int("checkpoint-every", d.Enrich.CheckpointEvery, "processed records between store flushes")
	cmd.Flags().Duration("detail-timeout", d.Enrich.Timeout, "timeout for one detail request")
	cmd.Flags().Bool("cache", false, "cache detail responses on disk")
}

func runStage(stage pipeline.Stage) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		boardsFile, _ := cmd.Flags().GetString("boards-file")
		boards, err := resolveBoards(args, boardsFile, cfg.Boards)
		if err != nil {
			return err
		}

		p, err := pipeline.NewPipeline(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		printHeader(os.Stderr, stage, boards, cfg)
		results := p.RunBoards(cmd.Context(), boards, stage)
		printResults(os.Stderr, stage, results)

		if failed := pipeline.Failed(results); failed > 0 {
			return fmt.Errorf("%d of %d boards failed", failed, len(results))
		}
		return cmd.Context().Err()
	}
}

// resolveBoards merges positional args, the boards file and configured boards
func resolveBoards(args []string, boardsFile string, configured []string) ([]string, error) {
	names := append([]string{}, args...)
	if boardsFile != "" {
		fromFile, err := worker.ReadTargetsFromFile(boardsFile)
		if err != nil {
			return nil, err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		names = append(names, configured...)
	}

	boards := worker.NormalizeTargets(names)
	if len(boards) == 0 {
		return nil, fmt.Errorf("no boards given (pass names, --boards-file, or set boards in the config file)")
	}
	return boards, nil
}
