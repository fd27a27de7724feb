package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/boardharvest/internal/model"
)

// OldPredicate decides whether an item's sort time counts toward the stop threshold
type OldPredicate interface {
	IsOld(sortTime string) bool
}

// PrefixPredicate marks sort times starting with Prefix as old
type PrefixPredicate struct {
	Prefix string
}

func (p PrefixPredicate) IsOld(sortTime string) bool {
	return p.Prefix != "" && strings.HasPrefix(sortTime, p.Prefix)
}

func (p PrefixPredicate) String() string {
	return fmt.Sprintf("prefix %q", p.Prefix)
}

// BeforePredicate marks sort times strictly before Cutoff as old.
// Unparseable sort times are never old.
type BeforePredicate struct {
	Cutoff time.Time
}

func (p BeforePredicate) IsOld(sortTime string) bool {
	t, err := model.ParseTimestamp(sortTime)
	if err != nil {
		return false
	}
	return t.Before(p.Cutoff)
}

func (p BeforePredicate) String() string {
	return "before " + p.Cutoff.Format(time.RFC3339)
}

// PredicateFromConfig picks the cutoff predicate when old_before is set, the prefix one otherwise
func PredicateFromConfig(cfg model.HarvestConfig) (OldPredicate, error) {
	if cfg.OldBefore != "" {
		cutoff, err := model.ParseTimestamp(cfg.OldBefore)
		if err != nil {
			return nil, fmt.Errorf("old_before: %w", err)
		}
		return BeforePredicate{Cutoff: cutoff}, nil
	}
	if cfg.OldPrefix == "" {
		return nil, fmt.Errorf("no old-item predicate configured")
	}
	return PrefixPredicate{Prefix: cfg.OldPrefix}, nil
}
