package station

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seisnet/cd11streams/cd11"
)

func TestAckTrackerGaps(t *testing.T) {
	tr := NewAckTracker("AAK:IDC")
	assert.Equal(t, &cd11.Acknack{Frameset: "AAK:IDC"}, tr.Acknack())

	for _, seq := range []int64{1, 2, 3, 5, 9, 8, 7, 3} {
		tr.Observe(seq)
	}
	a := tr.Acknack()
	assert.Equal(t, int64(1), a.LowestSequence)
	assert.Equal(t, int64(9), a.HighestSequence)
	assert.Equal(t, []cd11.Gap{{Start: 4, End: 4}, {Start: 6, End: 6}}, a.Gaps)

	tr.Observe(4)
	tr.Observe(6)
	a = tr.Acknack()
	assert.Empty(t, a.Gaps)
	assert.Equal(t, int64(9), a.HighestSequence)
}

func TestAckTrackerBelowLowest(t *testing.T) {
	tr := NewAckTracker("x")
	tr.Observe(10)
	tr.Observe(4)
	a := tr.Acknack()
	assert.Equal(t, int64(4), a.LowestSequence)
	assert.Equal(t, []cd11.Gap{{Start: 5, End: 9}}, a.Gaps)
}

func TestAckTrackerForgetsOldestRanges(t *testing.T) {
	tr := NewAckTracker("x")
	for i := range int64(maxRanges + 10) {
		tr.Observe(i * 2)
	}
	a := tr.Acknack()
	assert.Len(t, a.Gaps, maxRanges-1)
	assert.Equal(t, int64(20), a.LowestSequence)
}

func TestAckTrackerSequenceExtremes(t *testing.T) {
	tr := NewAckTracker("x")
	assert.True(t, tr.Observe(5))
	assert.False(t, tr.Observe(math.MinInt64))
	assert.False(t, tr.Observe(-1))

	a := tr.Acknack()
	assert.Equal(t, int64(5), a.LowestSequence)
	assert.Equal(t, int64(5), a.HighestSequence)
	assert.Empty(t, a.Gaps)

	assert.True(t, tr.Observe(math.MaxInt64))
	assert.True(t, tr.Observe(math.MaxInt64-1))
	assert.True(t, tr.Observe(0))
	a = tr.Acknack()
	assert.Equal(t, int64(0), a.LowestSequence)
	assert.Equal(t, int64(math.MaxInt64), a.HighestSequence)
	assert.Equal(t, []cd11.Gap{{Start: 1, End: 4}, {Start: 6, End: math.MaxInt64 - 2}}, a.Gaps)
}
