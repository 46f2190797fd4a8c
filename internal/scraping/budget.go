package scraping

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Budget is the politeness budget shared across a whole run. Every outbound
// request acquires a slot first and releases it on completion or failure; no
// component bypasses it.
type Budget interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// SlotBudget caps in-flight requests with a weighted semaphore.
type SlotBudget struct {
	sem *semaphore.Weighted
}

// NewSlotBudget builds a budget with the given number of concurrent slots.
func NewSlotBudget(slots int) *SlotBudget {
	if slots <= 0 {
		slots = 1
	}
	return &SlotBudget{sem: semaphore.NewWeighted(int64(slots))}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (b *SlotBudget) Acquire(ctx context.Context) (func(), error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { b.sem.Release(1) }, nil
}

// unlimitedBudget never blocks. Used by tests and one-shot CLI commands.
type unlimitedBudget struct{}

func (unlimitedBudget) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// Unlimited returns a budget that never throttles.
func Unlimited() Budget { return unlimitedBudget{} }
