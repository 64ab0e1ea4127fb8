package workflow

import (
	"context"

	"requestline/internal/domain"
	"requestline/internal/identity"
	"requestline/internal/resolver"
)

// GenericTypeID identifies the built-in request type. Stable across
// releases; persisted requests reference it.
const GenericTypeID = "generic-request"

const (
	StatusCreated   = "created"
	StatusSubmitted = "submitted"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
	StatusDeleted   = "deleted"
)

// CreatorGuard passes only for identities presenting a need of the
// request's creator slot.
func CreatorGuard(resolvers *resolver.Registry) GuardFunc {
	return func(ctx context.Context, t *RequestType, r *domain.Request, id identity.Identity) (bool, error) {
		if id.System {
			return true, nil
		}
		needs, err := t.EntityNeeds(ctx, resolvers, r.CreatedBy)
		if err != nil {
			return false, err
		}
		if len(needs) == 0 {
			return false, nil
		}
		return id.HasAny(needs), nil
	}
}

// SystemGuard passes only for the system identity while the request is
// still classified open.
func SystemGuard() GuardFunc {
	return func(_ context.Context, t *RequestType, r *domain.Request, id identity.Identity) (bool, error) {
		return id.System && t.IsOpen(r.Status), nil
	}
}

// DefaultStatuses is the canonical status vocabulary. "created" and
// "deleted" are deliberately neither open nor closed: a created request is
// not yet in anyone's queue and a deleted one is gone.
func DefaultStatuses() []Status {
	return []Status{
		{Name: StatusCreated, Kind: Undefined},
		{Name: StatusSubmitted, Kind: Open},
		{Name: StatusAccepted, Kind: Closed},
		{Name: StatusDeclined, Kind: Closed},
		{Name: StatusCancelled, Kind: Closed},
		{Name: StatusExpired, Kind: Closed},
		{Name: StatusDeleted, Kind: Undefined},
	}
}

// DefaultActions is the canonical transition table. A concrete request type
// may redefine all of it.
func DefaultActions(resolvers *resolver.Registry) map[string]Action {
	return map[string]Action{
		"create": {
			FromUnset: true,
			To:        StatusCreated,
			EventType: "request.create",
		},
		"submit": {
			FromUnset: true,
			From:      []string{StatusCreated},
			To:        StatusSubmitted,
			EventType: "request.submit",
		},
		"delete": {
			From:      []string{StatusCreated},
			To:        StatusDeleted,
			EventType: "request.delete",
		},
		"accept": {
			From:      []string{StatusSubmitted},
			To:        StatusAccepted,
			EventType: "request.accept",
		},
		"decline": {
			From:      []string{StatusSubmitted},
			To:        StatusDeclined,
			EventType: "request.decline",
		},
		"cancel": {
			From:      []string{StatusSubmitted},
			To:        StatusCancelled,
			EventType: "request.cancel",
			Guard:     CreatorGuard(resolvers),
		},
		"expire": {
			From:      []string{StatusSubmitted},
			To:        StatusExpired,
			EventType: "request.expire",
			Guard:     SystemGuard(),
		},
	}
}

// NewGenericType builds the built-in request type: user-created requests
// addressed to a user or group, optionally about a record or another
// request.
func NewGenericType(resolvers *resolver.Registry) *RequestType {
	return &RequestType{
		ID:                      GenericTypeID,
		Name:                    "generic",
		Statuses:                DefaultStatuses(),
		Actions:                 DefaultActions(resolvers),
		TopicCanBeNone:          true,
		AllowedCreatorRefKinds:  []string{resolver.KindUser},
		AllowedReceiverRefKinds: []string{resolver.KindUser, resolver.KindGroup},
		AllowedTopicRefKinds:    []string{resolver.KindRecord, resolver.KindRequest},
		PayloadFields: map[string]FieldSpec{
			"comment": {Type: "string"},
		},
	}
}
