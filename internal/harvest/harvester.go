// Package harvest pages through a board listing and appends unseen items to the store.
package harvest

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
)

// Lister fetches one listing page
type Lister interface {
	FetchPage(ctx context.Context, board, cursor string) (*api.Page, error)
}

// Saver persists a collection
type Saver interface {
	Save(ctx context.Context, c *store.Collection) error
}

// Options tunes a Harvester
type Options struct {
	PostFields      model.FieldSet
	Old             OldPredicate
	StopThreshold   int // Old items observed before paging stops
	CheckpointPages int // Pages between flushes
	Policy          retry.Policy
}

// OptionsFromConfig builds harvester options from configuration
func OptionsFromConfig(cfg *model.Config) (Options, error) {
	old, err := PredicateFromConfig(cfg.Harvest)
	if err != nil {
		return Options{}, err
	}
	fields := cfg.Fields.Post
	if fields == nil {
		fields = model.DefaultPostFields()
	}
	return Options{
		PostFields:      fields.Clone(),
		Old:             old,
		StopThreshold:   cfg.Harvest.StopThreshold,
		CheckpointPages: cfg.Harvest.CheckpointPages,
		Policy:          retry.NewPolicy(cfg.Harvest.MaxAttempts, cfg.Harvest.RetryDelay),
	}, nil
}

// Harvester runs the listing stage for one board at a time
type Harvester struct {
	lister Lister
	saver  Saver
	opts   Options
	logger *slog.Logger
}

// New creates a harvester
func New(lister Lister, saver Saver, opts Options, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StopThreshold < 1 {
		opts.StopThreshold = 5
	}
	if opts.CheckpointPages < 1 {
		opts.CheckpointPages = 100
	}
	if opts.Old == nil {
		opts.Old = PrefixPredicate{Prefix: "2023-12"}
	}
	if opts.PostFields == nil {
		opts.PostFields = model.DefaultPostFields()
	}
	if opts.Policy.MaxAttempts < 1 {
		opts.Policy = retry.NoRetry()
	}

	return &Harvester{
		lister: lister,
		saver:  saver,
		opts:   opts,
		logger: logger.With("component", "harvest"),
	}
}

// Harvest pages through the listing of c's board, appending unseen items.
// Paging ends on the last page, when the stop threshold of old items is reached, on a
// request failure, or on cancellation. The collection is flushed every CheckpointPages
// pages and always before returning.
func (h *Harvester) Harvest(ctx context.Context, c *store.Collection) (*model.HarvestSummary, error) {
	if c == nil {
		return nil, errors.New("harvest: nil collection")
	}

	board := c.Board()
	started := time.Now()
	summary := &model.HarvestSummary{Board: board}
	logger := h.logger.With("board", board)

	oldCount := c.CountOld(h.opts.Old.IsOld)
	cursor := ""
	var runErr error

	logger.Info("harvest started", "stored", c.Len(), "old_stored", oldCount)

	for {
		if err := ctx.Err(); err != nil {
			summary.StopReason = model.StopReasonCancelled
			runErr = err
			break
		}

		var page *api.Page
		attempts, err := h.opts.Policy.Do(ctx, func(ctx context.Context) error {
			p, err := h.lister.FetchPage(ctx, board, cursor)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			class := retry.Classify(err)
			if class == retry.ClassCanceled {
				summary.StopReason = model.StopReasonCancelled
			} else {
				summary.StopReason = model.StopReasonFailed
				logger.Warn("listing request failed",
					"page", summary.Pages+1,
					"attempts", attempts,
					"class", class.String(),
					"error", err)
			}
			runErr = fmt.Errorf("fetch page %d of %s: %w", summary.Pages+1, board, err)
			break
		}

		summary.Pages++
		stopped := h.absorb(c, page, summary, &oldCount)

		logger.Debug("page processed",
			"page", summary.Pages,
			"items", len(page.Items),
			"new", summary.New,
			"old_seen", oldCount)

		if summary.Pages%h.opts.CheckpointPages == 0 {
			if err := h.saver.Save(ctx, c); err != nil {
				summary.StopReason = model.StopReasonFailed
				runErr = fmt.Errorf("checkpoint %s: %w", board, err)
				break
			}
			summary.Checkpoints++
			logger.Info("checkpoint", "page", summary.Pages, "total", c.Len())
		}

		if stopped {
			summary.StopReason = model.StopReasonOldItems
			break
		}
		if page.Next == "" {
			summary.StopReason = model.StopReasonLastPage
			break
		}
		cursor = page.Next
	}

	if err := h.saver.Save(ctx, c); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("final save %s: %w", board, err))
	} else {
		summary.Checkpoints++
	}

	summary.OldSeen = oldCount
	summary.Total = c.Len()
	summary.Duration = time.Since(started)

	logger.Info("harvest finished",
		"pages", summary.Pages,
		"new", summary.New,
		"duplicates", summary.Duplicates,
		"stop_reason", string(summary.StopReason),
		"total", summary.Total)

	return summary, runErr
}

// absorb applies one page to the collection and reports whether the stop threshold was reached.
// Items after the triggering one are discarded.
func (h *Harvester) absorb(c *store.Collection, page *api.Page, summary *model.HarvestSummary, oldCount *int) bool {
	for _, item := range page.Items {
		summary.Fetched++
		if item.ID == "" {
			summary.Invalid++
			continue
		}

		rec := Normalize(item, h.opts.PostFields)
		old := rec.HasSortTime() && h.opts.Old.IsOld(rec.SortTime)
		if old {
			*oldCount++
		}

		if _, added := c.Append(rec); added {
			summary.New++
		} else {
			summary.Duplicates++
		}

		if old && *oldCount >= h.opts.StopThreshold {
			return true
		}
	}
	return false
}
