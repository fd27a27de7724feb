package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunTargets_OrderAndValues(t *testing.T) {
	targets := []string{"Baseball", "Stock", "NBA"}

	results := RunTargets(context.Background(), targets, 2, func(ctx context.Context, target string) (int, error) {
		time.Sleep(5 * time.Millisecond) // Simulate work
		return len(target), nil
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Target != targets[i] {
			t.Errorf("expected target %s at index %d, got %s", targets[i], i, res.Target)
		}
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Target, res.Error)
		}
		if res.Value != len(targets[i]) {
			t.Errorf("expected value %d for %s, got %d", len(targets[i]), res.Target, res.Value)
		}
	}
}

func TestRunTargets_ErrorIsolated(t *testing.T) {
	targets := []string{"ok1", "bad", "ok2"}

	results := RunTargets(context.Background(), targets, 3, func(ctx context.Context, target string) (string, error) {
		if target == "bad" {
			return "", errors.New("harvest failed")
		}
		return "done", nil
	})

	if results[1].GetError() == nil {
		t.Error("expected error for bad target")
	}
	if results[0].GetError() != nil || results[2].GetError() != nil {
		t.Error("failure of one target must not affect the others")
	}
}

func TestRunTargets_ConcurrencyCap(t *testing.T) {
	var current, peak int32
	targets := []string{"a", "b", "c", "d", "e", "f"}

	RunTargets(context.Background(), targets, 2, func(ctx context.Context, target string) (struct{}, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return struct{}{}, nil
	})

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent targets, got %d", peak)
	}
}

func TestRunTargets_Empty(t *testing.T) {
	results := RunTargets(context.Background(), nil, 2, func(ctx context.Context, target string) (int, error) {
		t.Error("fn must not be called")
		return 0, nil
	})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestRunTargets_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunTargets(ctx, []string{"a", "b"}, 1, func(ctx context.Context, target string) (int, error) {
		return 1, nil
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if !errors.Is(res.Error, context.Canceled) {
			t.Errorf("expected context.Canceled for %s, got %v", res.Target, res.Error)
		}
	}
}

func TestReadTargetsFromFile(t *testing.T) {
	content := `Baseball
# comment
Stock

NBA   `

	tmpfile, err := os.CreateTemp("", "boards")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	targets, err := ReadTargetsFromFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ReadTargetsFromFile failed: %v", err)
	}

	expected := []string{"Baseball", "Stock", "NBA"}
	if len(targets) != len(expected) {
		t.Fatalf("expected %d targets, got %d", len(expected), len(targets))
	}

	for i, target := range targets {
		if target != expected[i] {
			t.Errorf("expected target %s at index %d, got %s", expected[i], i, target)
		}
	}
}

func TestReadTargetsFromFile_NonExistent(t *testing.T) {
	_, err := ReadTargetsFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestNormalizeTargets_Deduplication(t *testing.T) {
	targets := NormalizeTargets([]string{"Stock", " Stock ", "#NBA", "", "LoL"})
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets after deduplication, got %d", len(targets))
	}
	if targets[0] != "Stock" || targets[1] != "LoL" {
		t.Errorf("unexpected targets: %v", targets)
	}
}
