package workflow

import (
	"context"
	"database/sql"

	"requestline/internal/domain"
	"requestline/internal/identity"
)

// GuardFunc is an extra prerequisite checked by CanExecute on top of the
// status window, e.g. "only the creator" or "only the system identity".
type GuardFunc func(ctx context.Context, t *RequestType, r *domain.Request, id identity.Identity) (bool, error)

// Action is a transition descriptor: the acceptable source statuses, the
// target status, an optional event type and an optional guard. Descriptors
// are plain values constructed at registration time.
type Action struct {
	// FromUnset makes the action fire only while the request has no status
	// yet (not yet created). It is a distinct state from any named status.
	FromUnset bool
	// From is the set of acceptable current statuses. Ignored when the
	// status is unset.
	From []string
	// To is the status assigned on success.
	To string
	// EventType, when non-empty, names the timeline event logged with this
	// transition. The orchestrator writes it before the mutation; Execute
	// appends a second log event tagged with the resulting status.
	EventType string
	// Guard, when set, must also pass for CanExecute to be true.
	Guard GuardFunc
}

func (a Action) acceptsStatus(status string) bool {
	if status == "" {
		return a.FromUnset
	}
	for _, s := range a.From {
		if s == status {
			return true
		}
	}
	return false
}

// EventAppender is the timeline collaborator: events appended inside the
// caller's unit of work, ordered by creation time.
type EventAppender interface {
	Append(ctx context.Context, tx *sql.Tx, eventType, requestID, actorID string, payload map[string]any) error
}

// BoundAction is a short-lived action instance bound to exactly one request.
// It holds no state beyond the binding and is never persisted.
type BoundAction struct {
	Name    string
	Action  Action
	Type    *RequestType
	Request *domain.Request
	Events  EventAppender
}

// CanExecute reports whether the action may fire given the request's current
// status and the identity.
func (b *BoundAction) CanExecute(ctx context.Context, id identity.Identity) (bool, error) {
	if !b.Action.acceptsStatus(b.Request.Status) {
		return false, nil
	}
	if b.Action.Guard != nil {
		return b.Action.Guard(ctx, b.Type, b.Request, id)
	}
	return true, nil
}

// Execute re-checks CanExecute and mutates the request's status, appending
// the status log event inside the caller's transaction. It refuses with
// CannotExecuteActionError rather than silently transitioning; the caller
// owns the transaction and therefore the atomicity of status plus events.
func (b *BoundAction) Execute(ctx context.Context, tx *sql.Tx, id identity.Identity) error {
	ok, err := b.CanExecute(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return CannotExecuteActionError{Action: b.Name, Status: b.Request.Status}
	}
	if !b.Type.ValidStatus(b.Action.To) {
		return ValidationError{Field: "status", Message: "unknown status " + b.Action.To}
	}
	b.Request.Status = b.Action.To
	if b.Action.EventType != "" && b.Events != nil {
		err := b.Events.Append(ctx, tx, "request.status", b.Request.ID, id.ActorID(), map[string]any{
			"status": b.Request.Status,
			"action": b.Name,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
