package soh

import (
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/errors"
)

var t0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func issue(channel string, typ IssueType, start, end time.Duration, status bool) EnvironmentalIssueBoolean {
	return EnvironmentalIssueBoolean{
		ID:          channel + string(typ),
		ChannelName: channel,
		Type:        typ,
		Start:       t0.Add(start),
		End:         t0.Add(end),
		Status:      status,
	}
}

func TestCanMergeMetadataAndStatusShortCircuit(t *testing.T) {
	var lookups atomic.Int32
	m := NewMergeChecker(func(string) time.Duration {
		lookups.Add(1)
		return time.Hour
	})

	base := issue("AAK.BHZ", ClockLocked, 0, 2*time.Second, true)
	cases := map[string]EnvironmentalIssueBoolean{
		"channel": issue("AAK.BHN", ClockLocked, 0, 2*time.Second, true),
		"type":    issue("AAK.BHZ", VaultDoorOpened, 0, 2*time.Second, true),
		"status":  issue("AAK.BHZ", ClockLocked, 0, 2*time.Second, false),
	}
	for name, other := range cases {
		t.Run(name, func(t *testing.T) {
			// identical, overlapping and touching intervals all stay unmergeable
			assert.False(t, m.CanMerge(base, other))
			assert.False(t, m.CanMerge(other, base))
		})
	}
	assert.Zero(t, lookups.Load(), "tolerance is only resolved once metadata and status match")
}

func TestCanMergeBoundaries(t *testing.T) {
	const T = 500 * time.Millisecond
	m := NewMergeChecker(FixedTolerance(T))

	a := issue("AAK.BHZ", ClockLocked, 0, 2*time.Second, true)

	tests := []struct {
		name  string
		b     EnvironmentalIssueBoolean
		merge bool
	}{
		{"overlapping", issue("AAK.BHZ", ClockLocked, time.Second, 3*time.Second, true), true},
		{"touching", issue("AAK.BHZ", ClockLocked, 2*time.Second, 3*time.Second, true), true},
		{"gap exactly T after", issue("AAK.BHZ", ClockLocked, 2*time.Second+T, 4*time.Second, true), true},
		{"gap T plus 1ns after", issue("AAK.BHZ", ClockLocked, 2*time.Second+T+1, 4*time.Second, true), false},
		{"gap exactly T before", issue("AAK.BHZ", ClockLocked, -2*time.Second, -T, true), true},
		{"gap T plus 1ns before", issue("AAK.BHZ", ClockLocked, -2*time.Second, -T-1, true), false},
		{"contained", issue("AAK.BHZ", ClockLocked, time.Second, time.Second, true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.merge, m.CanMerge(a, tt.b))
			assert.Equal(t, tt.merge, m.CanMerge(tt.b, a))
		})
	}
}

func TestCanMergeAardvarkExample(t *testing.T) {
	a := issue("AARDVARK", ClockLocked, 0, 2*time.Second, true)
	b := issue("AARDVARK", ClockLocked, 4*time.Second, 6*time.Second, true)

	// gap of 2s: padded b reaches back to 4s - T
	assert.False(t, NewMergeChecker(FixedTolerance(500*time.Millisecond)).CanMerge(a, b))
	assert.False(t, NewMergeChecker(FixedTolerance(1025*time.Millisecond)).CanMerge(a, b))
	assert.False(t, NewMergeChecker(FixedTolerance(2*time.Second-time.Nanosecond)).CanMerge(a, b))
	assert.True(t, NewMergeChecker(FixedTolerance(2*time.Second)).CanMerge(a, b))
}

func TestToleranceResolvedFromFirstArgument(t *testing.T) {
	var seen []string
	m := NewMergeChecker(func(ch string) time.Duration {
		seen = append(seen, ch)
		return 0
	})
	a := issue("AAK.BHZ", ClockLocked, 0, time.Second, true)
	b := issue("AAK.BHZ", ClockLocked, time.Second, 2*time.Second, true)
	require.True(t, m.CanMerge(a, b))
	assert.Equal(t, []string{"AAK.BHZ"}, seen)
}

func TestNilResolverMeansZeroTolerance(t *testing.T) {
	m := NewMergeChecker(nil)
	a := issue("X", ClockLocked, 0, time.Second, true)
	assert.True(t, m.CanMerge(a, issue("X", ClockLocked, time.Second, 2*time.Second, true)))
	assert.False(t, m.CanMerge(a, issue("X", ClockLocked, time.Second+1, 2*time.Second, true)))
}

func TestMerge(t *testing.T) {
	m := NewMergeChecker(FixedTolerance(time.Second))
	a := issue("AAK.BHZ", ClockLocked, 2*time.Second, 3*time.Second, true)
	b := issue("AAK.BHZ", ClockLocked, 0, 1500*time.Millisecond, true)
	b.ID = "other"

	out, err := m.Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, a.ID, out.ID)
	assert.Equal(t, t0, out.Start)
	assert.Equal(t, t0.Add(3*time.Second), out.End)

	_, err = m.Merge(a, issue("AAK.BHZ", ClockLocked, 10*time.Second, 11*time.Second, true))
	assert.True(t, errors.IsInvalid(err))
}

func TestNewBooleanValidates(t *testing.T) {
	b, err := NewBoolean("AAK.BHZ", ClockLocked, t0, t0.Add(time.Second), true)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)

	_, err = NewBoolean("AAK.BHZ", ClockLocked, t0.Add(time.Second), t0, true)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewAnalog("", ClockDifferentialInMicroseconds, t0, t0, 1)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestCoalesce(t *testing.T) {
	m := NewMergeChecker(FixedTolerance(time.Second))
	in := []EnvironmentalIssueBoolean{
		issue("AAK.BHZ", ClockLocked, 20*time.Second, 30*time.Second, true),
		issue("AAK.BHZ", ClockLocked, 0, 10*time.Second, true),
		issue("AAK.BHZ", ClockLocked, 10*time.Second, 20*time.Second, true),
		issue("AAK.BHZ", ClockLocked, 45*time.Second, 50*time.Second, true),
		issue("AAK.BHZ", ClockLocked, 30*time.Second, 40*time.Second, false),
		issue("AAK.BHN", ClockLocked, 0, 10*time.Second, true),
	}
	orig := slices.Clone(in)

	out := m.Coalesce(in)
	assert.Equal(t, orig, in)
	require.Len(t, out, 4)

	assert.Equal(t, "AAK.BHN", out[0].ChannelName)
	assert.False(t, out[1].Status)
	assert.Equal(t, t0, out[2].Start)
	assert.Equal(t, t0.Add(30*time.Second), out[2].End)
	assert.Equal(t, t0.Add(45*time.Second), out[3].Start)
}
