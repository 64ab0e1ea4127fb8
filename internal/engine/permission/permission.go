package permission

import (
	"context"
	"fmt"

	"requestline/internal/domain"
	"requestline/internal/identity"
	"requestline/internal/repo"
	"requestline/internal/resolver"
	"requestline/internal/workflow"
)

// DeniedError indicates the policy denied an action. Terminal and
// non-retryable for the invocation.
type DeniedError struct {
	Action string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("permission action_%s denied", e.Action)
}

// Policy decides whether an identity may run an action on a request. Each
// action is gated by the needs of one of the request's entity slots:
// accept/decline belong to the receiver, submit/cancel/delete to the
// creator, create to any authenticated identity and expire to the system
// identity alone.
type Policy struct {
	Repo      repo.Repo
	Resolvers *resolver.Registry
}

// IdentityFor assembles the needs a user presents: their own user need plus
// one group need per membership.
func (p Policy) IdentityFor(ctx context.Context, userID string) (identity.Identity, error) {
	groups, err := p.Repo.GroupsForUser(ctx, userID)
	if err != nil {
		return identity.Identity{}, err
	}
	needs := make([]identity.Need, 0, len(groups))
	for _, g := range groups {
		needs = append(needs, identity.GroupNeed(g))
	}
	return identity.User(userID, needs...), nil
}

// Allows evaluates the policy for action on r. A deny is reported as false
// with no error; callers turn it into DeniedError.
func (p Policy) Allows(ctx context.Context, id identity.Identity, action string, r *domain.Request, t *workflow.RequestType) (bool, error) {
	if id.System {
		return true, nil
	}
	var slot domain.Ref
	switch action {
	case "create":
		return id.UserID != "", nil
	case "expire":
		return false, nil
	case "accept", "decline":
		slot = r.Receiver
	case "submit", "cancel", "delete":
		slot = r.CreatedBy
	default:
		// Custom actions default to the creator slot.
		slot = r.CreatedBy
	}
	needs, err := t.EntityNeeds(ctx, p.Resolvers, slot)
	if err != nil {
		return false, err
	}
	if len(needs) == 0 {
		// Absent slot: nothing gates the action beyond authentication.
		return id.UserID != "", nil
	}
	return id.HasAny(needs), nil
}
