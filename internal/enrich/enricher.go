// Package enrich fetches per-item detail data for records the harvester stored.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/boardharvest/internal/api"
	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/retry"
	"github.com/ppiankov/boardharvest/internal/store"
	"github.com/ppiankov/boardharvest/internal/worker"
)

// Fetcher fetches one detail response
type Fetcher interface {
	FetchDetail(ctx context.Context, endpoint string) (*api.Detail, error)
}

// Saver persists a collection
type Saver interface {
	Save(ctx context.Context, c *store.Collection) error
}

// Options tunes an Enricher
type Options struct {
	DetailBase      string // Prefix of detail endpoints
	CommentFields   model.FieldSet
	Policy          retry.Policy
	CheckpointEvery int // Processed records between flushes
	Workers         int
}

// OptionsFromConfig builds enricher options from configuration
func OptionsFromConfig(cfg *model.Config) Options {
	fields := cfg.Fields.Comment
	if fields == nil {
		fields = model.DefaultCommentFields()
	}
	return Options{
		DetailBase:      cfg.API.DetailURL,
		CommentFields:   fields.Clone(),
		Policy:          retry.NewPolicy(cfg.Enrich.MaxAttempts, cfg.Enrich.RetryDelay),
		CheckpointEvery: cfg.Enrich.CheckpointEvery,
		Workers:         cfg.Enrich.Workers,
	}
}

// Enricher runs the detail stage over a collection
type Enricher struct {
	fetcher Fetcher
	saver   Saver
	opts    Options
	logger  *slog.Logger
}

// New creates an enricher
func New(fetcher Fetcher, saver Saver, opts Options, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 100
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CommentFields == nil {
		opts.CommentFields = model.DefaultCommentFields()
	}
	if opts.Policy.MaxAttempts < 1 {
		opts.Policy = retry.NewPolicy(3, time.Second)
	}

	return &Enricher{
		fetcher: fetcher,
		saver:   saver,
		opts:    opts,
		logger:  logger.With("component", "enrich"),
	}
}

// outcome is the result of one enrichment job
type outcome struct {
	record     model.Record
	enrichment *model.Enrichment
	attempts   int
	err        error
}

func (o *outcome) GetError() error {
	return o.err
}

// enrichJob fetches the detail of one record
type enrichJob struct {
	e      *Enricher
	record model.Record
}

func (j *enrichJob) Execute(ctx context.Context) worker.Result {
	out := &outcome{record: j.record}

	endpoint, err := api.DetailEndpoint(j.e.opts.DetailBase, j.record.URL)
	if err != nil {
		out.err = err
		return out
	}

	var detail *api.Detail
	out.attempts, out.err = j.e.opts.Policy.Do(ctx, func(ctx context.Context) error {
		d, err := j.e.fetcher.FetchDetail(ctx, endpoint)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	if out.err == nil {
		out.enrichment = Extract(detail, j.e.opts.CommentFields)
	}
	return out
}

// Enrich fetches details for every record lacking enrichment, in sequence order.
// Failed records stay pending and are counted as skipped; cancellation is not a skip.
// The collection is flushed every CheckpointEvery processed records and always before returning.
func (e *Enricher) Enrich(ctx context.Context, c *store.Collection) (*model.EnrichSummary, error) {
	if c == nil {
		return nil, errors.New("enrich: nil collection")
	}

	board := c.Board()
	started := time.Now()
	logger := e.logger.With("board", board)
	pending := c.Pending()

	summary := &model.EnrichSummary{
		Board:       board,
		Candidates:  len(pending),
		SkipReasons: make(map[string]int),
	}

	logger.Info("enrich started", "pending", len(pending), "workers", e.opts.Workers)

	var runErr error
	if len(pending) > 0 {
		runErr = e.process(ctx, c, pending, summary, logger)
	}

	if err := e.saver.Save(ctx, c); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("final save %s: %w", board, err))
	} else {
		summary.Checkpoints++
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	status := c.Status()
	summary.Total = status.Records
	summary.Pending = status.Pending
	summary.Duration = time.Since(started)

	logger.Info("enrich finished",
		"enriched", summary.Enriched,
		"skipped", summary.Skipped,
		"pending", summary.Pending,
		"attempts", summary.Attempts)

	return summary, runErr
}

// process fans records out to the pool; this goroutine alone mutates the collection
func (e *Enricher) process(ctx context.Context, c *store.Collection, pending []model.Record, summary *model.EnrichSummary, logger *slog.Logger) error {
	pool := worker.NewPool(ctx, e.opts.Workers)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		defer pool.Close()
		for _, rec := range pending {
			if !pool.Submit(&enrichJob{e: e, record: rec}) {
				return
			}
		}
	}()

	processed := 0
	for res := range pool.Results() {
		out := res.(*outcome)
		summary.Attempts += out.attempts

		if out.err != nil {
			class := retry.Classify(out.err)
			if class == retry.ClassCanceled || ctx.Err() != nil {
				continue
			}
			summary.Skipped++
			summary.SkipReasons[class.String()]++
			logger.Warn("record skipped",
				"id", out.record.ID,
				"url", out.record.URL,
				"attempts", out.attempts,
				"class", class.String(),
				"error", out.err)
		} else if err := c.Attach(out.record.ID, out.enrichment); err != nil {
			summary.Skipped++
			summary.SkipReasons["attach"]++
			logger.Warn("attach failed", "id", out.record.ID, "error", err)
		} else {
			summary.Enriched++
		}

		processed++
		if processed%e.opts.CheckpointEvery == 0 {
			if err := e.saver.Save(ctx, c); err != nil {
				return fmt.Errorf("checkpoint %s: %w", c.Board(), err)
			}
			summary.Checkpoints++
			logger.Info("checkpoint",
				"processed", processed,
				"enriched", summary.Enriched,
				"skipped", summary.Skipped)
		}
	}

	return nil
}
