package ledger

import (
	"context"
	"fmt"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// Counter reports how many records exist for a visit date.
type Counter interface {
	CountByDate(ctx context.Context, visitDate string) (int, error)
}

// Assigner hands out the daily ordinal ("tartib") for a new check-in.
//
// The count is read before the record is written and nothing locks the
// date in between, so two clients submitting at the same moment can both
// receive the same number. Callers must not treat the ordinal as a key;
// use the record id and created_at for identity and ordering.
type Assigner struct {
	counter Counter
}

// NewAssigner creates an Assigner backed by a bounded count query.
func NewAssigner(counter Counter) *Assigner {
	return &Assigner{counter: counter}
}

// Next returns count(records on visitDate) + 1.
func (a *Assigner) Next(ctx context.Context, visitDate string) (int, error) {
	n, err := a.counter.CountByDate(ctx, visitDate)
	if err != nil {
		return 0, fmt.Errorf("reading today's count: %w", err)
	}
	return n + 1, nil
}

// NextFromSnapshot computes the same ordinal from an already loaded record set.
func NextFromSnapshot(records []visit.Record, visitDate string) int {
	n := 0
	for i := range records {
		if records[i].VisitDate == visitDate {
			n++
		}
	}
	return n + 1
}
