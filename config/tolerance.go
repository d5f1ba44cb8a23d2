package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/soh"
)

// ParseISODuration parses an ISO-8601 duration such as PT0.5S. Negative
// durations are rejected.
func ParseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", errors.ErrInvalidConfig)
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %w", errors.ErrInvalidConfig, s, err)
	}
	td := d.ToTimeDuration()
	if td < 0 {
		return 0, fmt.Errorf("%w: negative duration %q", errors.ErrInvalidConfig, s)
	}
	return td, nil
}

// ToleranceTable maps channels to merge tolerances. Lookups try the full
// channel name, then its site (the part before the first dot), then the
// default.
type ToleranceTable struct {
	def      time.Duration
	channels map[string]time.Duration
}

// NewToleranceTable parses every duration in cfg. An empty default means zero.
func NewToleranceTable(cfg ToleranceConfig) (*ToleranceTable, error) {
	t := &ToleranceTable{channels: make(map[string]time.Duration, len(cfg.Channels))}
	if cfg.Default != "" {
		d, err := ParseISODuration(cfg.Default)
		if err != nil {
			return nil, fmt.Errorf("soh.merge-tolerance.default: %w", err)
		}
		t.def = d
	}
	for ch, v := range cfg.Channels {
		d, err := ParseISODuration(v)
		if err != nil {
			return nil, fmt.Errorf("soh.merge-tolerance.channels[%s]: %w", ch, err)
		}
		t.channels[ch] = d
	}
	return t, nil
}

// Lookup returns the tolerance for channel.
func (t *ToleranceTable) Lookup(channel string) time.Duration {
	if d, ok := t.channels[channel]; ok {
		return d
	}
	if site, _, found := strings.Cut(channel, "."); found {
		if d, ok := t.channels[site]; ok {
			return d
		}
	}
	return t.def
}

// Resolver returns the table as a soh.ToleranceResolver. The table is not
// modified after NewToleranceTable, so the resolver is safe for concurrent use.
func (t *ToleranceTable) Resolver() soh.ToleranceResolver {
	return t.Lookup
}
