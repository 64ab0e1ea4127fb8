package workflow

import (
	"context"
	"fmt"

	"requestline/internal/domain"
	"requestline/internal/identity"
	"requestline/internal/resolver"
)

// FieldSpec describes one payload field accepted alongside an action or a
// request creation. The schema layer on top of the reference slots is
// deliberately small: type tag plus required flag.
type FieldSpec struct {
	Type     string // "string", "number" or "bool"
	Required bool
}

// RequestType is the immutable descriptor of one kind of request. ID is
// globally unique and stable across releases; changing it orphans persisted
// requests of this type.
type RequestType struct {
	ID   string
	Name string

	// Statuses defines every legal status value and its classification.
	// The first entry is the status reported before any write.
	Statuses []Status

	// Actions maps action names to their transition descriptors.
	Actions map[string]Action

	CreatorCanBeNone  bool
	ReceiverCanBeNone bool
	TopicCanBeNone    bool

	AllowedCreatorRefKinds  []string
	AllowedReceiverRefKinds []string
	AllowedTopicRefKinds    []string

	// NeedsContext is passed opaquely to resolvers when computing entity
	// needs for this type.
	NeedsContext map[string]any

	// PayloadFields is the per-type schema hook for create/action payloads.
	PayloadFields map[string]FieldSpec

	statusKinds map[string]StatusKind // memoized by Validate
}

func (t *RequestType) TypeID() string   { return t.ID }
func (t *RequestType) TypeName() string { return t.Name }

// Validate checks the descriptor's internal invariants and memoizes the
// status index. It must be called (via registration) before use.
func (t *RequestType) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("request type id required")
	}
	if len(t.Statuses) == 0 {
		return fmt.Errorf("request type %s declares no statuses", t.ID)
	}
	kinds := make(map[string]StatusKind, len(t.Statuses))
	for _, s := range t.Statuses {
		if s.Name == "" {
			return fmt.Errorf("request type %s has an unnamed status", t.ID)
		}
		kinds[s.Name] = s.Kind
	}
	for name, a := range t.Actions {
		if a.To == "" {
			return fmt.Errorf("action %s of type %s has no target status", name, t.ID)
		}
		if _, ok := kinds[a.To]; !ok {
			return fmt.Errorf("action %s of type %s targets unknown status %s", name, t.ID, a.To)
		}
		for _, from := range a.From {
			if _, ok := kinds[from]; !ok {
				return fmt.Errorf("action %s of type %s accepts unknown status %s", name, t.ID, from)
			}
		}
	}
	for field, spec := range t.PayloadFields {
		switch spec.Type {
		case "string", "number", "bool":
		default:
			return fmt.Errorf("payload field %s of type %s has unknown kind %s", field, t.ID, spec.Type)
		}
	}
	t.statusKinds = kinds
	return nil
}

func (t *RequestType) statusKind(status string) (StatusKind, bool) {
	if t.statusKinds != nil {
		k, ok := t.statusKinds[status]
		return k, ok
	}
	for _, s := range t.Statuses {
		if s.Name == status {
			return s.Kind, true
		}
	}
	return Undefined, false
}

// ValidStatus reports whether status is a legal value for this type.
func (t *RequestType) ValidStatus(status string) bool {
	_, ok := t.statusKind(status)
	return ok
}

// DefaultStatus is the first declared status, reported before any write.
func (t *RequestType) DefaultStatus() string {
	return t.Statuses[0].Name
}

func (t *RequestType) IsOpen(status string) bool {
	k, ok := t.statusKind(status)
	return ok && k == Open
}

func (t *RequestType) IsClosed(status string) bool {
	k, ok := t.statusKind(status)
	return ok && k == Closed
}

// EntityNeeds returns the needs an identity must present at least one of to
// act as the referenced entity. A nil entity yields no needs.
func (t *RequestType) EntityNeeds(ctx context.Context, resolvers *resolver.Registry, ref domain.Ref) ([]identity.Need, error) {
	if len(ref) == 0 {
		return nil, nil
	}
	return resolvers.EntityNeeds(ctx, ref, t.NeedsContext)
}

// ValidateRefs checks the three reference slots against the type's allowed
// kinds and optionality at request-creation time.
func (t *RequestType) ValidateRefs(createdBy, receiver, topic domain.Ref) error {
	if err := t.validateSlot("created_by", createdBy, t.CreatorCanBeNone, t.AllowedCreatorRefKinds); err != nil {
		return err
	}
	if err := t.validateSlot("receiver", receiver, t.ReceiverCanBeNone, t.AllowedReceiverRefKinds); err != nil {
		return err
	}
	return t.validateSlot("topic", topic, t.TopicCanBeNone, t.AllowedTopicRefKinds)
}

func (t *RequestType) validateSlot(slot string, ref domain.Ref, canBeNone bool, allowed []string) error {
	if len(ref) == 0 {
		if canBeNone {
			return nil
		}
		return ValidationError{Field: slot, Message: "reference required"}
	}
	if !ref.Valid() {
		return ValidationError{Field: slot, Message: "reference must hold exactly one kind and id"}
	}
	kind := ref.Kind()
	for _, k := range allowed {
		if k == kind {
			return nil
		}
	}
	return ValidationError{Field: slot, Message: fmt.Sprintf("reference kind %s not allowed", kind)}
}

// ValidatePayload applies the type's payload schema and returns the cleaned
// data. Unknown fields are rejected so typos fail loudly.
func (t *RequestType) ValidatePayload(payload map[string]any) (map[string]any, error) {
	clean := map[string]any{}
	for field, value := range payload {
		spec, ok := t.PayloadFields[field]
		if !ok {
			return nil, ValidationError{Field: field, Message: "unknown payload field"}
		}
		switch spec.Type {
		case "string":
			if _, ok := value.(string); !ok {
				return nil, ValidationError{Field: field, Message: "must be a string"}
			}
		case "number":
			switch value.(type) {
			case float64, int, int64:
			default:
				return nil, ValidationError{Field: field, Message: "must be a number"}
			}
		case "bool":
			if _, ok := value.(bool); !ok {
				return nil, ValidationError{Field: field, Message: "must be a bool"}
			}
		}
		clean[field] = value
	}
	for field, spec := range t.PayloadFields {
		if spec.Required {
			if _, ok := clean[field]; !ok {
				return nil, ValidationError{Field: field, Message: "required"}
			}
		}
	}
	return clean, nil
}
