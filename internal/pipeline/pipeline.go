// Package pipeline wires configuration into the harvest and enrich stages and runs them per board.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/boardharvest/internal/api"
	"github.com/ppiankov/boardharvest/internal/cache"
	"github.com/ppiankov/boardharvest/internal/enrich"
	"github.com/ppiankov/boardharvest/internal/harvest"
	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/store"
	"github.com/ppiankov/boardharvest/internal/worker"
)

// Stage selects what RunBoards does for each board
type Stage string

const (
	StageHarvest Stage = "harvest"
	StageEnrich  Stage = "enrich"
	StageRun     Stage = "run" // harvest, then enrich
)

// Pipeline orchestrates the harvest and enrich stages
type Pipeline struct {
	config    *model.Config
	client    *api.Client
	store     store.Store
	harvester *harvest.Harvester
	enricher  *enrich.Enricher
	logger    *slog.Logger
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg *model.Config, logger *slog.Logger, opts ...api.Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Cache.Enabled {
		detailCache := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.TTL)
		opts = append([]api.Option{api.WithCache(detailCache, cfg.Cache.TTL)}, opts...)
	}

	client, err := api.NewClient(cfg.API, cfg.HTTP, cfg.Enrich.Timeout, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	harvestOpts, err := harvest.OptionsFromConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("harvest options: %w", err)
	}

	return &Pipeline{
		config:    cfg,
		client:    client,
		store:     st,
		harvester: harvest.New(client, st, harvestOpts, logger),
		enricher:  enrich.New(client, st, enrich.OptionsFromConfig(cfg), logger),
		logger:    logger.With("component", "pipeline"),
	}, nil
}

// BoardResult contains the outcome of one board
type BoardResult struct {
	Board   string
	Harvest *model.HarvestSummary
	Enrich  *model.EnrichSummary
	Err     error
}

// HarvestBoard loads the board and runs the listing stage
func (p *Pipeline) HarvestBoard(ctx context.Context, board string) (*model.HarvestSummary, error) {
	c, err := p.store.Load(ctx, board)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", board, err)
	}
	return p.harvester.Harvest(ctx, c)
}

// EnrichBoard loads the board and runs the detail stage
func (p *Pipeline) EnrichBoard(ctx context.Context, board string) (*model.EnrichSummary, error) {
	c, err := p.store.Load(ctx, board)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", board, err)
	}
	return p.enricher.Enrich(ctx, c)
}

// RunBoard harvests then enriches one board. Enrichment is skipped when the harvest failed.
func (p *Pipeline) RunBoard(ctx context.Context, board string) BoardResult {
	result := BoardResult{Board: board}

	c, err := p.store.Load(ctx, board)
	if err != nil {
		result.Err = fmt.Errorf("load %s: %w", board, err)
		return result
	}

	result.Harvest, err = p.harvester.Harvest(ctx, c)
	if err != nil {
		result.Err = fmt.Errorf("harvest %s: %w", board, err)
		return result
	}

	result.Enrich, err = p.enricher.Enrich(ctx, c)
	if err != nil {
		result.Err = fmt.Errorf("enrich %s: %w", board, err)
	}
	return result
}

// RunBoards runs stage over boards, up to harvest.parallel boards at a time.
// Results keep the input order; one board failing never stops the others.
func (p *Pipeline) RunBoards(ctx context.Context, boards []string, stage Stage) []BoardResult {
	parallel := p.config.Harvest.Parallel
	if parallel < 1 {
		parallel = 1
	}

	targets := worker.RunTargets(ctx, boards, parallel, func(ctx context.Context, board string) (BoardResult, error) {
		var res BoardResult
		switch stage {
		case StageHarvest:
			summary, err := p.HarvestBoard(ctx, board)
			res = BoardResult{Board: board, Harvest: summary, Err: err}
		case StageEnrich:
			summary, err := p.EnrichBoard(ctx, board)
			res = BoardResult{Board: board, Enrich: summary, Err: err}
		default:
			res = p.RunBoard(ctx, board)
		}
		if res.Err != nil {
			p.logger.Warn("board failed", "board", board, "stage", string(stage), "error", res.Err)
		}
		return res, res.Err
	})

	results := make([]BoardResult, len(targets))
	for i, t := range targets {
		results[i] = t.Value
		results[i].Board = t.Target
		if results[i].Err == nil {
			results[i].Err = t.Error
		}
	}
	return results
}

// Close releases the store
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Failed counts results with an error
func Failed(results []BoardResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
