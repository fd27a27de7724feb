// Package store keeps the per-board record collection and persists it durably.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/boardharvest/internal/model"
)

// Collection is the ordered, id-indexed record set of one board.
// The harvester only appends unknown ids; the enricher only attaches enrichment.
type Collection struct {
	mu      sync.RWMutex
	board   string
	records []*model.Record
	index   map[string]int
	maxSeq  int64

	renumbered int
}

// NewCollection builds a collection from loaded records.
// Duplicate ids keep their first occurrence. Sequences must rise strictly in load order; a record
// whose sequence is missing or does not exceed its predecessor's is renumbered to predecessor+1.
func NewCollection(board string, records []model.Record) *Collection {
	c := &Collection{
		board: board,
		index: make(map[string]int, len(records)),
	}

	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, dup := c.index[rec.ID]; dup {
			continue
		}
		r := rec
		if r.Sequence <= c.maxSeq {
			r.Sequence = c.maxSeq + 1
			c.renumbered++
		}
		c.maxSeq = r.Sequence
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, &r)
	}

	return c
}

// Renumbered reports how many loaded records needed a new sequence
func (c *Collection) Renumbered() int {
	return c.renumbered
}

// Board returns the board name
func (c *Collection) Board() string {
	return c.board
}

// Len returns the number of records
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Has reports whether id is already stored
func (c *Collection) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Get returns a copy of the record with the given id
func (c *Collection) Get(id string) (model.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return model.Record{}, false
	}
	return *c.records[i], true
}

// Records returns a snapshot of all records in insertion order
func (c *Collection) Records() []model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Record, len(c.records))
	for i, r := range c.records {
		out[i] = *r
	}
	return out
}

// NextSequence returns the sequence the next appended record will receive
func (c *Collection) NextSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxSeq + 1
}

// Append adds a record with an unknown id and assigns its sequence.
// A number field, when present, mirrors the assigned sequence.
// It returns false without modifying the collection if the id is empty or known.
func (c *Collection) Append(rec model.Record) (model.Record, bool) {
	if rec.ID == "" {
		return model.Record{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[rec.ID]; ok {
		return model.Record{}, false
	}

	c.maxSeq++
	rec.Sequence = c.maxSeq
	rec.Enriched = false
	rec.Enrichment = nil
	if _, ok := rec.Fields[model.PostFieldNumber]; ok {
		rec.Fields[model.PostFieldNumber] = rec.Sequence
	}

	c.index[rec.ID] = len(c.records)
	c.records = append(c.records, &rec)

	return rec, true
}

// Pending returns the records still lacking enrichment, in sequence order
func (c *Collection) Pending() []model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Record
	for _, r := range c.records {
		if !r.Enriched {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Attach stores enrichment on a record and marks it enriched
func (c *Collection) Attach(id string, enr *model.Enrichment) error {
	if enr == nil {
		return fmt.Errorf("attach %s: nil enrichment", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("attach %s: unknown record", id)
	}
	r := c.records[i]
	if r.Enriched {
		return fmt.Errorf("attach %s: already enriched", id)
	}
	r.Enrichment = enr
	r.Enriched = true
	return nil
}

// CountOld returns how many stored records have a sort time accepted by isOld
func (c *Collection) CountOld(isOld func(sortTime string) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, r := range c.records {
		if r.HasSortTime() && isOld(r.SortTime) {
			n++
		}
	}
	return n
}

// Status summarizes the collection
func (c *Collection) Status() model.BoardStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := model.BoardStatus{
		Board:        c.board,
		Records:      len(c.records),
		LastSequence: c.maxSeq,
	}
	for _, r := range c.records {
		if r.Enriched {
			st.Enriched++
		}
	}
	st.Pending = st.Records - st.Enriched
	return st
}
