package model

import "time"

// StopReason explains why a harvest ended
type StopReason string

const (
	StopReasonLastPage  StopReason = "last_page" // listing returned no next-page descriptor
	StopReasonOldItems  StopReason = "old_items" // stop threshold of old items reached
	StopReasonFailed    StopReason = "failed"    // request-level failure aborted the board
	StopReasonCancelled StopReason = "cancelled" // context cancelled between fetches
)

// HarvestSummary reports the outcome of one harvest run for a board
type HarvestSummary struct {
	Board       string        `json:"board"`
	Pages       int           `json:"pages"`       // Pages fetched successfully
	Fetched     int           `json:"fetched"`     // Items seen across all pages
	New         int           `json:"new"`         // Items appended to the store
	Duplicates  int           `json:"duplicates"`  // Items already present
	Invalid     int           `json:"invalid"`     // Items without a usable id
	OldSeen     int           `json:"old_seen"`    // Final value of the old-item counter
	Total       int           `json:"total"`       // Store size after the run
	Checkpoints int           `json:"checkpoints"` // Successful flushes
	StopReason  StopReason    `json:"stop_reason"`
	Duration    time.Duration `json:"duration"`
}

// EnrichSummary reports the outcome of one enrichment run for a board
type EnrichSummary struct {
	Board       string         `json:"board"`
	Total       int            `json:"total"`       // Records in the store
	Candidates  int            `json:"candidates"`  // Records lacking enrichment at start
	Enriched    int            `json:"enriched"`    // Newly enriched in this run
	Skipped     int            `json:"skipped"`     // Left unenriched after failure
	Attempts    int            `json:"attempts"`    // Detail requests issued
	Pending     int            `json:"pending"`     // Still unenriched after the run
	Checkpoints int            `json:"checkpoints"` // Successful flushes
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// BoardStatus is a read-only snapshot of a stored board
type BoardStatus struct {
	Board        string `json:"board"`
	Records      int    `json:"records"`
	Enriched     int    `json:"enriched"`
	Pending      int    `json:"pending"`
	LastSequence int64  `json:"last_sequence"`
}
