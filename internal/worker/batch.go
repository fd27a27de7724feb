package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// TargetFunc processes a single named target (a board)
type TargetFunc[T any] func(ctx context.Context, target string) (T, error)

// TargetResult represents the result of processing one target
type TargetResult[T any] struct {
	Target string
	Value  T
	Error  error
}

// GetError returns the error from the target result
func (r *TargetResult[T]) GetError() error {
	return r.Error
}

type targetJob[T any] struct {
	target string
	fn     TargetFunc[T]
}

func (j *targetJob[T]) Execute(ctx context.Context) Result {
	value, err := j.fn(ctx, j.target)
	return &TargetResult[T]{Target: j.target, Value: value, Error: err}
}

// RunTargets processes targets concurrently and returns results in input order.
// A failing target never affects the others. Targets not started before ctx is
// cancelled are reported with the context error.
func RunTargets[T any](ctx context.Context, targets []string, concurrency int, fn TargetFunc[T]) []*TargetResult[T] {
	if len(targets) == 0 {
		return []*TargetResult[T]{}
	}

	pool := NewPool(ctx, concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for _, target := range targets {
			if !pool.Submit(&targetJob[T]{target: target, fn: fn}) {
				return
			}
		}
	}()

	byTarget := make(map[string]*TargetResult[T], len(targets))
	for res := range pool.Results() {
		tr := res.(*TargetResult[T])
		byTarget[tr.Target] = tr
	}

	results := make([]*TargetResult[T], 0, len(targets))
	for _, target := range targets {
		if tr, ok := byTarget[target]; ok {
			results = append(results, tr)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("target %s was not processed", target)
		}
		results = append(results, &TargetResult[T]{Target: target, Error: err})
	}

	return results
}

// ReadTargetsFromFile reads target names from a file (one per line)
func ReadTargetsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return NormalizeTargets(lines), nil
}

// NormalizeTargets trims names, drops blanks and comments, and removes duplicates
func NormalizeTargets(names []string) []string {
	var targets []string
	seen := make(map[string]bool)

	for _, name := range names {
		name = strings.TrimSpace(name)

		// Skip empty lines and comments
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}

		if !seen[name] {
			seen[name] = true
			targets = append(targets, name)
		}
	}

	return targets
}
