package soh

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/seisnet/cd11streams/errors"
)

// ToleranceResolver returns the merge tolerance for a channel. It must be
// safe for concurrent use and free of side effects.
type ToleranceResolver func(channelName string) time.Duration

// FixedTolerance resolves every channel to d.
func FixedTolerance(d time.Duration) ToleranceResolver {
	return func(string) time.Duration { return d }
}

// MergeChecker decides whether two boolean observations describe one
// continuous condition.
type MergeChecker struct {
	tolerance ToleranceResolver
}

// NewMergeChecker creates a checker. A nil resolver means zero tolerance.
func NewMergeChecker(resolver ToleranceResolver) *MergeChecker {
	if resolver == nil {
		resolver = FixedTolerance(0)
	}
	return &MergeChecker{tolerance: resolver}
}

// CanMerge reports whether a and b share channel, type and status and
// their intervals touch once b is widened by the tolerance on both sides.
//
// The tolerance is resolved for a's channel. Callers pass observations of
// one channel; with different channels the result is false before the
// tolerance is looked up.
func (m *MergeChecker) CanMerge(a, b EnvironmentalIssueBoolean) bool {
	if a.ChannelName != b.ChannelName || a.Type != b.Type {
		return false
	}
	if a.Status != b.Status {
		return false
	}
	t := m.tolerance(a.ChannelName)
	return !a.Start.After(b.End.Add(t)) && !b.Start.Add(-t).After(a.End)
}

// Merge coalesces b into a. The result keeps a's ID and covers both
// intervals. It fails when CanMerge is false.
func (m *MergeChecker) Merge(a, b EnvironmentalIssueBoolean) (EnvironmentalIssueBoolean, error) {
	if !m.CanMerge(a, b) {
		return EnvironmentalIssueBoolean{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s %s and %s %s do not connect", errors.ErrInvalidData, a.ChannelName, a.Type, b.ChannelName, b.Type),
			"MergeChecker", "Merge", "merge issues")
	}
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if b.End.After(out.End) {
		out.End = b.End
	}
	return out, nil
}

// Coalesce merges every mergeable pair in issues and returns the result
// ordered by channel, type, status and start time. The input is not modified.
func (m *MergeChecker) Coalesce(issues []EnvironmentalIssueBoolean) []EnvironmentalIssueBoolean {
	sorted := slices.Clone(issues)
	slices.SortStableFunc(sorted, func(a, b EnvironmentalIssueBoolean) int {
		return cmp.Or(
			cmp.Compare(a.ChannelName, b.ChannelName),
			cmp.Compare(a.Type, b.Type),
			compareBool(a.Status, b.Status),
			a.Start.Compare(b.Start),
		)
	})

	out := make([]EnvironmentalIssueBoolean, 0, len(sorted))
	for _, issue := range sorted {
		if n := len(out); n > 0 && m.CanMerge(out[n-1], issue) {
			// CanMerge was just checked
			out[n-1], _ = m.Merge(out[n-1], issue)
			continue
		}
		out = append(out, issue)
	}
	return out
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
