package health

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seisnet/cd11streams/errors"
)

// Probe reports a component's health on demand; nil means healthy.
type Probe func() error

// Monitor combines pushed statuses with probes evaluated on each check.
// It is safe for concurrent use.
type Monitor struct {
	name string

	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates a monitor reporting under name.
func NewMonitor(name string) *Monitor {
	return &Monitor{
		name:     name,
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update records the pushed status of a component.
func (m *Monitor) Update(component string, state State, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[component] = NewStatus(component, state, message)
}

// Register adds a probe. A later registration under the same name wins.
func (m *Monitor) Register(component string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[component] = probe
}

// Check evaluates every probe and aggregates them with the pushed
// statuses, ordered by component name.
func (m *Monitor) Check() Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses)+len(m.probes))
	for _, s := range m.statuses {
		subs = append(subs, s)
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, p := range m.probes {
		probes[name] = p
	}
	m.mu.RUnlock()

	for name, p := range probes {
		subs = append(subs, FromError(name, p()))
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Component < subs[j].Component })
	return Aggregate(m.name, subs)
}

// Err returns nil when the aggregate is healthy or degraded. It has the
// shape of metric.HealthFunc.
func (m *Monitor) Err() error {
	s := m.Check()
	if s.State != Unhealthy {
		return nil
	}
	return fmt.Errorf("%w: %s", errors.ErrNoConnection, s.Message)
}
