package protocol

import "sync/atomic"

// Budget accounts for owned bytes. Reserve must be paired with exactly one
// Release of the same size.
type Budget interface {
	Reserve(n int) bool
	Release(n int)
}

// MemoryBudget is a Budget with an optional hard limit. Counters are atomic so
// they can be read off the event loop.
type MemoryBudget struct {
	limit    int64
	inUse    atomic.Int64
	peak     atomic.Int64
	failures atomic.Uint64
}

// NewMemoryBudget returns a budget capped at limit bytes; limit <= 0 means
// unlimited.
func NewMemoryBudget(limit int) *MemoryBudget {
	if limit < 0 {
		limit = 0
	}
	return &MemoryBudget{limit: int64(limit)}
}

func (b *MemoryBudget) Reserve(n int) bool {
	if n < 0 {
		return false
	}
	for {
		cur := b.inUse.Load()
		next := cur + int64(n)
		if b.limit > 0 && next > b.limit {
			b.failures.Add(1)
			return false
		}
		if b.inUse.CompareAndSwap(cur, next) {
			for {
				peak := b.peak.Load()
				if next <= peak || b.peak.CompareAndSwap(peak, next) {
					break
				}
			}
			return true
		}
	}
}

func (b *MemoryBudget) Release(n int) {
	if b.inUse.Add(-int64(n)) < 0 {
		panic("protocol: budget released more than reserved")
	}
}

func (b *MemoryBudget) InUse() int64     { return b.inUse.Load() }
func (b *MemoryBudget) Peak() int64      { return b.peak.Load() }
func (b *MemoryBudget) Limit() int64     { return b.limit }
func (b *MemoryBudget) Failures() uint64 { return b.failures.Load() }

// reserveBuffer reserves n bytes and returns an empty slice with capacity n.
func reserveBuffer(b Budget, n int) ([]byte, error) {
	if b != nil && !b.Reserve(n) {
		return nil, ErrBudgetExhausted
	}
	return make([]byte, 0, n), nil
}
