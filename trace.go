package modstate

import (
	"encoding/json"
	"time"
)

// UpdateTrace records one applied envelope: the namespace slice it touched
// before and after the update.
type UpdateTrace struct {
	EnvelopeID string    `json:"envelope_id"`
	Namespace  Namespace `json:"namespace"`
	Path       string    `json:"path"`
	Previous   any       `json:"previous,omitempty"`
	Next       any       `json:"next,omitempty"`
	Changed    []string  `json:"changed,omitempty"`
	At         time.Time `json:"at"`
}

// NewUpdateTrace captures the effect of env given the root states before and
// after it was reduced.
func NewUpdateTrace(env Envelope, before, after State, at time.Time) UpdateTrace {
	trace := UpdateTrace{
		EnvelopeID: env.ID,
		Path:       env.Payload.Path.String(),
		At:         at,
	}
	if len(env.Payload.Path) == 0 {
		return trace
	}
	root := env.Payload.Path[0]
	trace.Namespace = Namespace(root)
	trace.Previous = before[root]
	trace.Next = after[root]
	trace.Changed = Diff(trace.Previous, trace.Next)
	return trace
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t UpdateTrace) ToJSON() ([]byte, error) {
	type alias UpdateTrace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (UpdateTrace, error) {
	type alias UpdateTrace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return UpdateTrace{}, err
	}
	return UpdateTrace(trace), nil
}
