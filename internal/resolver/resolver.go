package resolver

import (
	"context"
	"fmt"

	"requestline/internal/domain"
	"requestline/internal/identity"
)

// NoMatchingResolverError indicates that no registered resolver answers for
// a reference dict or entity. Only surfaced in strict mode.
type NoMatchingResolverError struct {
	Kind string
}

func (e NoMatchingResolverError) Error() string {
	if e.Kind == "" {
		return "no matching resolver for entity"
	}
	return fmt.Sprintf("no matching resolver for kind %s", e.Kind)
}

// EntityResolver translates between reference dicts and live entities of one
// kind. Implementations are stateless; entity loading is deferred to the
// sources they wrap.
type EntityResolver interface {
	// RefKind is the kind tag this resolver answers to.
	RefKind() string
	// MatchesRef reports whether the ref's single key equals RefKind.
	MatchesRef(ref domain.Ref) bool
	// Resolve dereferences the ref. Undefined when MatchesRef is false.
	Resolve(ctx context.Context, ref domain.Ref) (any, error)
	// MatchesEntity reports whether the entity belongs to this resolver.
	MatchesEntity(entity any) bool
	// Ref produces the reference dict for a matched entity.
	Ref(entity any) domain.Ref
	// Needs returns the capability tokens an identity must present at least
	// one of to count as equivalent to the entity. needsCtx is the opaque
	// needs context of the request type.
	Needs(ctx context.Context, entity any, needsCtx map[string]any) ([]identity.Need, error)
}

// Registry is an ordered resolver chain, consulted first-match-wins in both
// directions. Populated at startup, read-only afterwards.
type Registry struct {
	resolvers []EntityResolver
}

func NewRegistry(resolvers ...EntityResolver) *Registry {
	return &Registry{resolvers: resolvers}
}

func (r *Registry) Add(res EntityResolver) {
	r.resolvers = append(r.resolvers, res)
}

// ResolveEntity dereferences ref through the first matching resolver. With
// strict a miss fails with NoMatchingResolverError; otherwise it returns nil.
func (r *Registry) ResolveEntity(ctx context.Context, ref domain.Ref, strict bool) (any, error) {
	if len(ref) == 0 {
		return nil, nil
	}
	for _, res := range r.resolvers {
		if res.MatchesRef(ref) {
			return res.Resolve(ctx, ref)
		}
	}
	if strict {
		return nil, NoMatchingResolverError{Kind: ref.Kind()}
	}
	return nil, nil
}

// ReferenceEntity is the inverse direction, by MatchesEntity.
func (r *Registry) ReferenceEntity(entity any, strict bool) (domain.Ref, error) {
	if entity == nil {
		return nil, nil
	}
	for _, res := range r.resolvers {
		if res.MatchesEntity(entity) {
			return res.Ref(entity), nil
		}
	}
	if strict {
		return nil, NoMatchingResolverError{}
	}
	return nil, nil
}

// EntityNeeds resolves ref and returns the matched resolver's needs for it.
// An absent ref yields no needs.
func (r *Registry) EntityNeeds(ctx context.Context, ref domain.Ref, needsCtx map[string]any) ([]identity.Need, error) {
	if len(ref) == 0 {
		return nil, nil
	}
	for _, res := range r.resolvers {
		if res.MatchesRef(ref) {
			entity, err := res.Resolve(ctx, ref)
			if err != nil {
				return nil, err
			}
			return res.Needs(ctx, entity, needsCtx)
		}
	}
	return nil, nil
}
