// Package health tracks the state of the daemon's long running parts and
// folds them into one answer for the /health endpoint.
package health

import (
	"regexp"
	"strings"
	"time"
)

// State is the health of one component.
type State string

// Health states. Unhealthy outranks degraded, which outranks healthy.
const (
	Healthy   State = "healthy"
	Degraded  State = "degraded"
	Unhealthy State = "unhealthy"
)

func (s State) rank() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|tls|wss?)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{1,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of a component, or of the whole process when
// Components is set.
type Status struct {
	Component  string    `json:"component"`
	State      State     `json:"state"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Components []Status  `json:"components,omitempty"`
}

// IsHealthy reports whether the state is healthy.
func (s Status) IsHealthy() bool { return s.State == Healthy }

// NewStatus builds a status stamped now. Messages are sanitized.
func NewStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		State:     state,
		Message:   sanitize(message),
		Timestamp: time.Now(),
	}
}

// FromError maps nil to healthy and anything else to unhealthy with the
// sanitized error text.
func FromError(component string, err error) Status {
	if err == nil {
		return NewStatus(component, Healthy, "")
	}
	return NewStatus(component, Unhealthy, err.Error())
}

// Aggregate takes the worst state of subs. No subs is healthy.
func Aggregate(component string, subs []Status) Status {
	worst := Healthy
	var bad []string
	for _, s := range subs {
		if s.State.rank() > worst.rank() {
			worst = s.State
		}
		if !s.IsHealthy() {
			bad = append(bad, s.Component)
		}
	}
	out := NewStatus(component, worst, "")
	if len(bad) > 0 {
		out.Message = string(worst) + ": " + strings.Join(bad, ", ")
	}
	out.Components = append([]Status(nil), subs...)
	return out
}

// sanitize strips addresses and credentials from messages that may be
// served to unauthenticated callers.
func sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	return credentialRegex.ReplaceAllString(msg, "${1}=[REDACTED]")
}
