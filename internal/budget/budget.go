// Package budget implements a byte ceiling shared by concurrent downloads. Enforcement is approximate: a reservation
// is granted whenever the ceiling has not yet been reached, so in-flight downloads may overshoot it.
package budget

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/alanbriolat/lecture-archiver/generic"
	sync_ "github.com/alanbriolat/lecture-archiver/internal/sync"
)

type Budget struct {
	name   string
	limit  generic.Option[int64]
	parent *Budget
	used   *sync_.Mutexed[int64]
}

// New creates a budget with an optional ceiling. Reservations against a budget with a parent must also be granted by
// the parent.
func New(name string, limit generic.Option[int64], parent *Budget) *Budget {
	return &Budget{
		name:   name,
		limit:  limit,
		parent: parent,
		used:   sync_.NewMutexed[int64](0),
	}
}

func Unlimited(name string) *Budget {
	return New(name, generic.None[int64](), nil)
}

func Limited(name string, limit int64) *Budget {
	return New(name, generic.Some(limit), nil)
}

func (b *Budget) Name() string {
	return b.name
}

func (b *Budget) Limit() generic.Option[int64] {
	return b.limit
}

func (b *Budget) Parent() *Budget {
	return b.parent
}

func (b *Budget) Used() int64 {
	return b.used.Get()
}

func (b *Budget) reached(used int64) bool {
	limit, ok := b.limit.Get()
	return ok && used >= limit
}

// Exhausted reports whether this budget or any ancestor has reached its ceiling.
func (b *Budget) Exhausted() bool {
	if b.reached(b.Used()) {
		return true
	}
	return b.parent != nil && b.parent.Exhausted()
}

// TryReserve atomically checks that no budget in the chain has reached its ceiling and, if so, adds n to all of
// them. It returns false without changing anything otherwise.
func (b *Budget) TryReserve(n int64) bool {
	granted := false
	// Locks are always taken child first, so chains cannot deadlock
	_ = b.used.Locked(func(used *int64) error {
		if b.reached(*used) {
			return nil
		}
		if b.parent != nil && !b.parent.TryReserve(n) {
			return nil
		}
		*used += n
		granted = true
		return nil
	})
	return granted
}

// Settle replaces an earlier reservation with the number of bytes actually downloaded, in this budget and every
// ancestor.
func (b *Budget) Settle(reserved int64, actual int64) {
	delta := actual - reserved
	for budget := b; budget != nil; budget = budget.parent {
		_ = budget.used.Locked(func(used *int64) error {
			*used += delta
			return nil
		})
	}
}

// Observe replaces this budget's running total with a value measured elsewhere, e.g. the size of a course folder on
// disk plus any reservations still in flight. Ancestors are left alone; they follow Settle.
func (b *Budget) Observe(total int64) {
	_ = b.used.Locked(func(used *int64) error {
		*used = total
		return nil
	})
}

// Remaining is the number of bytes left before the ceiling, or None when unlimited.
func (b *Budget) Remaining() generic.Option[int64] {
	limit, ok := b.limit.Get()
	if !ok {
		return generic.None[int64]()
	}
	remaining := limit - b.Used()
	if remaining < 0 {
		remaining = 0
	}
	return generic.Some(remaining)
}

func (b *Budget) String() string {
	limit := "unlimited"
	if l, ok := b.limit.Get(); ok {
		limit = humanize.IBytes(uint64(l))
	}
	return fmt.Sprintf("%s: %s of %s", b.name, humanize.IBytes(uint64(max(b.Used(), 0))), limit)
}
