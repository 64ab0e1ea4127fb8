package resolver

import (
	"context"

	"requestline/internal/domain"
	"requestline/internal/identity"
)

// Entity sources are narrow lookup interfaces implemented by the repo layer.
// Resolvers depend on them instead of storage so reference dicts stay the
// only persisted coupling between requests and the entities they point at.

type UserSource interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type GroupSource interface {
	GetGroup(ctx context.Context, id string) (domain.Group, error)
}

type RecordSource interface {
	GetRecord(ctx context.Context, id string) (domain.Record, error)
}

type RequestSource interface {
	GetRequest(ctx context.Context, id string) (domain.Request, error)
}

const (
	KindUser    = "user"
	KindGroup   = "group"
	KindRecord  = "record"
	KindRequest = "request"
)

// UserResolver resolves {"user": id} references.
type UserResolver struct {
	Users UserSource
}

func (r UserResolver) RefKind() string                 { return KindUser }
func (r UserResolver) MatchesRef(ref domain.Ref) bool  { return ref.Kind() == KindUser }
func (r UserResolver) MatchesEntity(entity any) bool   { _, ok := entity.(domain.User); return ok }
func (r UserResolver) Ref(entity any) domain.Ref {
	u := entity.(domain.User)
	return domain.Ref{KindUser: u.ID}
}

func (r UserResolver) Resolve(ctx context.Context, ref domain.Ref) (any, error) {
	return r.Users.GetUser(ctx, ref.ID())
}

func (r UserResolver) Needs(ctx context.Context, entity any, _ map[string]any) ([]identity.Need, error) {
	if entity == nil {
		return nil, nil
	}
	u := entity.(domain.User)
	return []identity.Need{identity.UserNeed(u.ID)}, nil
}

// GroupResolver resolves {"group": id} references. Any member of the group
// is treated as equivalent to it.
type GroupResolver struct {
	Groups GroupSource
}

func (r GroupResolver) RefKind() string                { return KindGroup }
func (r GroupResolver) MatchesRef(ref domain.Ref) bool { return ref.Kind() == KindGroup }
func (r GroupResolver) MatchesEntity(entity any) bool  { _, ok := entity.(domain.Group); return ok }
func (r GroupResolver) Ref(entity any) domain.Ref {
	g := entity.(domain.Group)
	return domain.Ref{KindGroup: g.ID}
}

func (r GroupResolver) Resolve(ctx context.Context, ref domain.Ref) (any, error) {
	return r.Groups.GetGroup(ctx, ref.ID())
}

func (r GroupResolver) Needs(ctx context.Context, entity any, _ map[string]any) ([]identity.Need, error) {
	if entity == nil {
		return nil, nil
	}
	g := entity.(domain.Group)
	return []identity.Need{identity.GroupNeed(g.ID)}, nil
}

// RecordResolver resolves {"record": id} references. A record's needs are
// its owner's, so the owner acts for the record in permission checks.
type RecordResolver struct {
	Records RecordSource
}

func (r RecordResolver) RefKind() string                { return KindRecord }
func (r RecordResolver) MatchesRef(ref domain.Ref) bool { return ref.Kind() == KindRecord }
func (r RecordResolver) MatchesEntity(entity any) bool  { _, ok := entity.(domain.Record); return ok }
func (r RecordResolver) Ref(entity any) domain.Ref {
	rec := entity.(domain.Record)
	return domain.Ref{KindRecord: rec.ID}
}

func (r RecordResolver) Resolve(ctx context.Context, ref domain.Ref) (any, error) {
	return r.Records.GetRecord(ctx, ref.ID())
}

func (r RecordResolver) Needs(ctx context.Context, entity any, _ map[string]any) ([]identity.Need, error) {
	if entity == nil {
		return nil, nil
	}
	rec := entity.(domain.Record)
	if rec.OwnerID == "" {
		return nil, nil
	}
	return []identity.Need{identity.UserNeed(rec.OwnerID)}, nil
}

// RequestResolver resolves {"request": id} references, letting a request's
// topic point at another request. The referenced request never becomes an
// owned object graph: only the small ref is stored, resolution is on demand.
type RequestResolver struct {
	Requests RequestSource
}

func (r RequestResolver) RefKind() string                { return KindRequest }
func (r RequestResolver) MatchesRef(ref domain.Ref) bool { return ref.Kind() == KindRequest }
func (r RequestResolver) MatchesEntity(entity any) bool {
	_, ok := entity.(domain.Request)
	return ok
}

func (r RequestResolver) Ref(entity any) domain.Ref {
	req := entity.(domain.Request)
	return domain.Ref{KindRequest: req.ID}
}

func (r RequestResolver) Resolve(ctx context.Context, ref domain.Ref) (any, error) {
	return r.Requests.GetRequest(ctx, ref.ID())
}

// Needs of a referenced request are its creator slot's, without a further
// resolution hop.
func (r RequestResolver) Needs(ctx context.Context, entity any, _ map[string]any) ([]identity.Need, error) {
	if entity == nil {
		return nil, nil
	}
	req := entity.(domain.Request)
	if !req.CreatedBy.Valid() {
		return nil, nil
	}
	return []identity.Need{{Kind: req.CreatedBy.Kind(), Value: req.CreatedBy.ID()}}, nil
}
