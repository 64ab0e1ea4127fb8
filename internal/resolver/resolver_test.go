package resolver_test

import (
	"context"
	"errors"
	"testing"

	"requestline/internal/domain"
	"requestline/internal/identity"
	"requestline/internal/resolver"
)

var errNoEntity = errors.New("no such entity")

type fakeUsers map[string]domain.User

func (f fakeUsers) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := f[id]
	if !ok {
		return domain.User{}, errNoEntity
	}
	return u, nil
}

type fakeGroups map[string]domain.Group

func (f fakeGroups) GetGroup(_ context.Context, id string) (domain.Group, error) {
	g, ok := f[id]
	if !ok {
		return domain.Group{}, errNoEntity
	}
	return g, nil
}

type fakeRecords map[string]domain.Record

func (f fakeRecords) GetRecord(_ context.Context, id string) (domain.Record, error) {
	r, ok := f[id]
	if !ok {
		return domain.Record{}, errNoEntity
	}
	return r, nil
}

type fakeRequests map[string]domain.Request

func (f fakeRequests) GetRequest(_ context.Context, id string) (domain.Request, error) {
	r, ok := f[id]
	if !ok {
		return domain.Request{}, errNoEntity
	}
	return r, nil
}

func newTestRegistry() *resolver.Registry {
	return resolver.NewRegistry(
		resolver.UserResolver{Users: fakeUsers{"alice": {ID: "alice"}}},
		resolver.GroupResolver{Groups: fakeGroups{"curators": {ID: "curators"}}},
		resolver.RecordResolver{Records: fakeRecords{"doc-1": {ID: "doc-1", OwnerID: "bob"}}},
		resolver.RequestResolver{Requests: fakeRequests{
			"req-1": {ID: "req-1", CreatedBy: domain.Ref{"user": "alice"}},
		}},
	)
}

func TestResolveEntity(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	entity, err := reg.ResolveEntity(ctx, domain.Ref{"user": "alice"}, true)
	if err != nil {
		t.Fatalf("resolve user: %v", err)
	}
	u, ok := entity.(domain.User)
	if !ok || u.ID != "alice" {
		t.Fatalf("expected user alice, got %#v", entity)
	}

	if _, err := reg.ResolveEntity(ctx, domain.Ref{"user": "ghost"}, true); !errors.Is(err, errNoEntity) {
		t.Fatalf("expected source miss to surface, got %v", err)
	}
}

func TestResolveEntityUnknownKind(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	_, err := reg.ResolveEntity(ctx, domain.Ref{"community": "c-1"}, true)
	var nm resolver.NoMatchingResolverError
	if !errors.As(err, &nm) || nm.Kind != "community" {
		t.Fatalf("expected NoMatchingResolverError for community, got %v", err)
	}

	entity, err := reg.ResolveEntity(ctx, domain.Ref{"community": "c-1"}, false)
	if err != nil || entity != nil {
		t.Fatalf("non-strict miss should be nil,nil; got %v %v", entity, err)
	}
}

func TestReferenceEntityRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	ref := domain.Ref{"record": "doc-1"}
	entity, err := reg.ResolveEntity(ctx, ref, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	back, err := reg.ReferenceEntity(entity, true)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if back.Kind() != "record" || back.ID() != "doc-1" {
		t.Fatalf("round trip mismatch: %v", back)
	}
}

func TestReferenceEntityUnknown(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.ReferenceEntity(struct{ X int }{1}, true)
	var nm resolver.NoMatchingResolverError
	if !errors.As(err, &nm) {
		t.Fatalf("expected NoMatchingResolverError, got %v", err)
	}
}

func TestEntityNeeds(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	needs, err := reg.EntityNeeds(ctx, domain.Ref{"user": "alice"}, nil)
	if err != nil {
		t.Fatalf("user needs: %v", err)
	}
	if len(needs) != 1 || needs[0] != identity.UserNeed("alice") {
		t.Fatalf("expected user need for alice, got %v", needs)
	}

	// A record's needs are its owner's.
	needs, err = reg.EntityNeeds(ctx, domain.Ref{"record": "doc-1"}, nil)
	if err != nil {
		t.Fatalf("record needs: %v", err)
	}
	if len(needs) != 1 || needs[0] != identity.UserNeed("bob") {
		t.Fatalf("expected owner need for bob, got %v", needs)
	}

	// A referenced request's needs come from its creator slot.
	needs, err = reg.EntityNeeds(ctx, domain.Ref{"request": "req-1"}, nil)
	if err != nil {
		t.Fatalf("request needs: %v", err)
	}
	if len(needs) != 1 || needs[0] != (identity.Need{Kind: "user", Value: "alice"}) {
		t.Fatalf("expected creator need, got %v", needs)
	}

	needs, err = reg.EntityNeeds(ctx, nil, nil)
	if err != nil || needs != nil {
		t.Fatalf("absent ref should yield no needs, got %v %v", needs, err)
	}
}

func TestIdentityHasAny(t *testing.T) {
	alice := identity.User("alice", identity.GroupNeed("curators"))
	if !alice.HasAny([]identity.Need{identity.UserNeed("alice")}) {
		t.Fatal("user need should match")
	}
	if !alice.HasAny([]identity.Need{identity.GroupNeed("curators")}) {
		t.Fatal("group need should match")
	}
	if alice.HasAny([]identity.Need{identity.UserNeed("bob")}) {
		t.Fatal("foreign need must not match")
	}
	if !identity.SystemIdentity().HasAny([]identity.Need{identity.UserNeed("anyone")}) {
		t.Fatal("system identity matches everything")
	}
}
