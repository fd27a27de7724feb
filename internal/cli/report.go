package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/pipeline"
)

const rule = "═══════════════════════════════════════════════════════════"

func printHeader(w io.Writer, stage pipeline.Stage, boards []string, cfg *model.Config) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  boardharvest %s\n", stage)
	fmt.Fprintf(w, "%s\n\n", rule)
	fmt.Fprintf(w, "  Boards:     %s\n", strings.Join(boards, ", "))
	fmt.Fprintf(w, "  Parallel:   %d\n", cfg.Harvest.Parallel)
	if cfg.Store.Backend == model.BackendSQLite {
		fmt.Fprintf(w, "  Store:      sqlite %s\n", cfg.Store.SQLitePath)
	} else {
		fmt.Fprintf(w, "  Store:      json %s\n", cfg.Store.Dir)
	}
	if stage != pipeline.StageEnrich {
		old := "prefix " + cfg.Harvest.OldPrefix
		if cfg.Harvest.OldBefore != "" {
			old = "before " + cfg.Harvest.OldBefore
		}
		fmt.Fprintf(w, "  Stop:       %d old items (%s)\n", cfg.Harvest.StopThreshold, old)
	}
	if stage != pipeline.StageHarvest {
		fmt.Fprintf(w, "  Workers:    %d\n", cfg.Enrich.Workers)
	}
	fmt.Fprintln(w)
}

func printResults(w io.Writer, stage pipeline.Stage, results []pipeline.BoardResult) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", r.Board, r.Err)
		} else {
			fmt.Fprintf(w, "✓ %s\n", r.Board)
		}
		if h := r.Harvest; h != nil {
			fmt.Fprintf(w, "    harvest: %d pages, %d new, %d duplicate, %d invalid, %d total (%s, %s)\n",
				h.Pages, h.New, h.Duplicates, h.Invalid, h.Total, h.StopReason, h.Duration.Round(time.Millisecond))
		}
		if e := r.Enrich; e != nil {
			fmt.Fprintf(w, "    enrich:  %d enriched, %d skipped, %d pending of %d (%s)\n",
				e.Enriched, e.Skipped, e.Pending, e.Total, e.Duration.Round(time.Millisecond))
			if len(e.SkipReasons) > 0 {
				fmt.Fprintf(w, "    skipped: %s\n", formatReasons(e.SkipReasons))
			}
		}
	}

	failed := pipeline.Failed(results)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  %s complete\n", strings.ToUpper(string(stage[:1]))+string(stage[1:]))
	fmt.Fprintf(w, "%s\n\n", rule)
	fmt.Fprintf(w, "  Boards:    %d\n", len(results))
	fmt.Fprintf(w, "  Success:   %d\n", len(results)-failed)
	fmt.Fprintf(w, "  Failures:  %d\n\n", failed)
}

// formatReasons renders skip counts in a stable order
func formatReasons(reasons map[string]int) string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, reasons[k])
	}
	return strings.Join(parts, ", ")
}
