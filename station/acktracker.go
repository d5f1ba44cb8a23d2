package station

import (
	"sort"
	"sync"

	"github.com/seisnet/cd11streams/cd11"
)

// maxRanges bounds the received ranges kept per tracker. Beyond it the
// oldest range is forgotten and the lowest sequence advances.
const maxRanges = 256

type seqRange struct{ lo, hi int64 }

// AckTracker records the sequence numbers of received data frames and
// reports them as an acknack. It is safe for concurrent use.
type AckTracker struct {
	mu       sync.Mutex
	frameset string
	ranges   []seqRange
}

// NewAckTracker creates a tracker for frameset, the creator:destination
// name the acknack is reported under.
func NewAckTracker(frameset string) *AckTracker {
	return &AckTracker{frameset: frameset}
}

// Observe records seq as received. Negative sequence numbers are not valid
// CD-1.1 sequences; they are ignored and Observe reports false.
func (t *AckTracker) Observe(seq int64) bool {
	if seq < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// All stored bounds are >= 0, so lo-1 cannot underflow and the
	// comparisons never compute seq+1 or hi+1.
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].hi >= seq-1 })
	switch {
	case i < len(t.ranges) && t.ranges[i].lo-1 <= seq:
		r := &t.ranges[i]
		r.lo = min(r.lo, seq)
		r.hi = max(r.hi, seq)
		if i+1 < len(t.ranges) && t.ranges[i+1].lo-1 <= r.hi {
			r.hi = max(r.hi, t.ranges[i+1].hi)
			t.ranges = append(t.ranges[:i+1], t.ranges[i+2:]...)
		}
	default:
		t.ranges = append(t.ranges, seqRange{})
		copy(t.ranges[i+1:], t.ranges[i:])
		t.ranges[i] = seqRange{lo: seq, hi: seq}
	}
	if len(t.ranges) > maxRanges {
		t.ranges = t.ranges[1:]
	}
	return true
}

// Acknack returns the current state. With nothing observed both bounds
// are zero and there are no gaps.
func (t *AckTracker) Acknack() *cd11.Acknack {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := &cd11.Acknack{Frameset: t.frameset}
	if len(t.ranges) == 0 {
		return a
	}
	a.LowestSequence = t.ranges[0].lo
	a.HighestSequence = t.ranges[len(t.ranges)-1].hi
	for i := 1; i < len(t.ranges); i++ {
		a.Gaps = append(a.Gaps, cd11.Gap{Start: t.ranges[i-1].hi + 1, End: t.ranges[i].lo - 1})
	}
	return a
}
