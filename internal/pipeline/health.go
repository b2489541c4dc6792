package pipeline

import (
	"time"
)

// Health is the liveness report served by /healthz. It never includes the
// credential itself.
type Health struct {
	OK       bool      `json:"ok"`
	HasKey   bool      `json:"has_key"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Circuit  string    `json:"circuit,omitempty"`
	Failures int       `json:"consecutive_failures,omitempty"`
	Time     time.Time `json:"time"`
}

// Health reports whether an extraction client is configured and the circuit state.
func (p *Pipeline) Health() Health {
	h := Health{
		OK:       p.guard != nil,
		HasKey:   p.guard != nil,
		Provider: p.provider,
		Model:    p.model,
		Time:     p.now().UTC(),
	}
	if p.guard != nil {
		failures, state := p.guard.Breaker().Counters()
		h.Circuit = state.String()
		h.Failures = failures
	}
	return h
}
