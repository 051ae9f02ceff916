// Package budget bounds the wall-clock time a single query may spend in the
// index. A Budget is immutable after construction and is polled between
// expensive steps; it never interrupts work on its own.
package budget

import (
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

// MaxLimit is the hard ceiling for any query budget.
const MaxLimit = 10 * time.Second

type Budget struct {
	deadline time.Time
	limit    time.Duration
	now      func() time.Time
}

// New returns a budget expiring limitMs milliseconds from now, clamped to
// [0, MaxLimit].
func New(limitMs int64) *Budget {
	return newWithClock(limitMs, time.Now)
}

func newWithClock(limitMs int64, now func() time.Time) *Budget {
	limit := time.Duration(limitMs) * time.Millisecond
	if limitMs < 0 {
		limit = 0
	}
	if limitMs > int64(MaxLimit/time.Millisecond) {
		limit = MaxLimit
	}
	return &Budget{
		deadline: now().Add(limit),
		limit:    limit,
		now:      now,
	}
}

// Unlimited returns a budget with the maximum limit, for offline callers.
func Unlimited() *Budget {
	return New(int64(MaxLimit / time.Millisecond))
}

func (b *Budget) HasTimeLeft() bool {
	return b.now().Before(b.deadline)
}

// TimeLeft is never negative.
func (b *Budget) TimeLeft() time.Duration {
	left := b.deadline.Sub(b.now())
	if left < 0 {
		return 0
	}
	return left
}

func (b *Budget) Limit() time.Duration {
	return b.limit
}

// Check returns a wrapped ErrTimeout once the budget is exhausted.
func (b *Budget) Check() error {
	if b.HasTimeLeft() {
		return nil
	}
	return fmt.Errorf("%w after %s", apperrors.ErrTimeout, b.limit)
}
