package modstate

import "github.com/google/uuid"

// CallbackKind is the reserved action kind carried by every Envelope.
const CallbackKind = "@CALLBACK"

// Envelope is the self-contained description of one state update. Its Apply
// closure captures the target path and value; applying the same envelope to
// two different states yields two independent results.
type Envelope struct {
	ID      string
	Kind    string
	Payload EnvelopePayload
}

// EnvelopePayload holds the update closure and the data it captured.
type EnvelopePayload struct {
	Path  Path
	Value any
	Apply func(State) State
}

// NewEnvelope builds an Envelope that merges or replaces value at path.
func NewEnvelope(path Path, value any, opts ...UpdateOption) (Envelope, error) {
	if len(path) == 0 {
		return Envelope{}, ErrMalformedPath
	}
	target := path.Append()
	captured := append([]UpdateOption(nil), opts...)

	apply := func(state State) State {
		next, err := Update(state, target, value, captured...)
		if err != nil {
			return state
		}
		return next
	}

	return Envelope{
		ID:   uuid.NewString(),
		Kind: CallbackKind,
		Payload: EnvelopePayload{
			Path:  target,
			Value: value,
			Apply: apply,
		},
	}, nil
}

// AsEnvelope reports whether action is an applicable Envelope.
func AsEnvelope(action any) (Envelope, bool) {
	var env Envelope
	switch typed := action.(type) {
	case Envelope:
		env = typed
	case *Envelope:
		if typed == nil {
			return Envelope{}, false
		}
		env = *typed
	default:
		return Envelope{}, false
	}
	if env.Kind != CallbackKind || env.Payload.Apply == nil {
		return Envelope{}, false
	}
	return env, true
}

// Reducer turns the current state and an action into the next state.
type Reducer func(state State, action any) State

// Reduce is the only place an Envelope is applied to state. Actions that are
// not envelopes pass through untouched. A nil state is treated as empty.
func Reduce(state State, action any) State {
	if state == nil {
		state = State{}
	}
	env, ok := AsEnvelope(action)
	if !ok {
		return state
	}
	return env.Payload.Apply(state)
}

// ChainReducers runs reducers in order, each receiving the previous result.
func ChainReducers(reducers ...Reducer) Reducer {
	chain := make([]Reducer, 0, len(reducers))
	for _, r := range reducers {
		if r != nil {
			chain = append(chain, r)
		}
	}
	return func(state State, action any) State {
		for _, r := range chain {
			state = r(state, action)
		}
		return state
	}
}

// Dispatcher routes actions to whatever owns the canonical state.
type Dispatcher interface {
	Dispatch(action any) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(action any) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(action any) error {
	if f == nil {
		return ErrDispatcherRequired
	}
	return f(action)
}
