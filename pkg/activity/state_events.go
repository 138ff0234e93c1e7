package activity

import (
	"strings"
	"time"
)

// Object types carried by state events.
const (
	ObjectTypeSlice = "state.slice"
)

// StateEventInput describes the common fields for state change events.
type StateEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	Namespace      string
	Path           string
	EnvelopeID     string
	Changed        []string
	OldValue       any
	NewValue       any
	OccurredAt     time.Time
}

// BuildStateSeededEvent constructs a normalized activity event for a module
// slice written for the first time.
func BuildStateSeededEvent(input StateEventInput) Event {
	return buildStateEvent("state.seeded", input)
}

// BuildStateUpdatedEvent constructs a normalized activity event for an update
// applied to an existing module slice.
func BuildStateUpdatedEvent(input StateEventInput) Event {
	return buildStateEvent("state.updated", input)
}

func buildStateEvent(verb string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	namespace := strings.TrimSpace(input.Namespace)
	path := strings.TrimSpace(input.Path)
	objectID := namespace
	if objectID == "" {
		objectID = path
	}
	if objectID == "" {
		objectID = ObjectTypeSlice
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     ObjectTypeSlice,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     cloneStrings(input.Recipients),
		Namespace:      namespace,
		Path:           path,
		EnvelopeID:     strings.TrimSpace(input.EnvelopeID),
		Changed:        cloneStrings(input.Changed),
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
