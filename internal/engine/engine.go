package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"requestline/internal/config"
	"requestline/internal/domain"
	"requestline/internal/engine/permission"
	"requestline/internal/events"
	"requestline/internal/identity"
	"requestline/internal/registry"
	"requestline/internal/repo"
	"requestline/internal/resolver"
	"requestline/internal/workflow"
)

// Notifier is the fire-and-forget notification hook invoked after a
// comment-kind event is created. Delivery is not awaited.
type Notifier interface {
	Notify(ctx context.Context, evt domain.Event)
}

// Engine is the requests service: it owns the unit-of-work boundary tying
// permission checks, event logging, transitions and persistence together.
type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Types      *registry.Registry
	Resolvers  *resolver.Registry
	Dispatcher workflow.Dispatcher
	Policy     permission.Policy
	Config     *config.Config
	Notifier   Notifier
	Logger     *log.Logger
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config, types *registry.Registry, resolvers *resolver.Registry) Engine {
	r := repo.Repo{DB: db}
	w := events.Writer{DB: db}
	return Engine{
		DB:         db,
		Repo:       r,
		Events:     w,
		Types:      types,
		Resolvers:  resolvers,
		Dispatcher: workflow.Dispatcher{Types: types, Events: w},
		Policy:     permission.Policy{Repo: r, Resolvers: resolvers},
		Config:     cfg,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// RequestView is a request plus its derived, never-stored fields.
type RequestView struct {
	domain.Request
	IsOpen    bool   `json:"is_open"`
	IsClosed  bool   `json:"is_closed"`
	IsExpired bool   `json:"is_expired"`
	TypeName  string `json:"type_name,omitempty"`
}

// Expand computes the derived fields of a request from its type.
func (e Engine) Expand(r domain.Request) (RequestView, error) {
	t, err := e.typeOf(r.TypeID)
	if err != nil {
		return RequestView{}, err
	}
	view := RequestView{
		Request:  r,
		IsOpen:   t.IsOpen(r.Status),
		IsClosed: t.IsClosed(r.Status),
		TypeName: t.Name,
	}
	if r.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *r.ExpiresAt)
		if err != nil {
			e.logger().Printf("request %s has malformed expires_at %q: %v", r.ID, *r.ExpiresAt, err)
		} else {
			view.IsExpired = exp.Before(e.now())
		}
	}
	return view, nil
}

func (e Engine) typeOf(typeID string) (*workflow.RequestType, error) {
	t, err := e.Types.Lookup(typeID, false, nil)
	if err != nil {
		return nil, err
	}
	return t.(*workflow.RequestType), nil
}

// RequestTypes returns all registered request types in registration order.
func (e Engine) RequestTypes() []*workflow.RequestType {
	all := e.Types.All()
	out := make([]*workflow.RequestType, 0, len(all))
	for _, t := range all {
		out = append(out, t.(*workflow.RequestType))
	}
	return out
}

// RequestCreateOptions are parameters for creating a request.
type RequestCreateOptions struct {
	TypeID    string
	Title     string
	CreatedBy domain.Ref
	Receiver  domain.Ref
	Topic     domain.Ref
	ExpiresAt *time.Time
	Payload   map[string]any
	// Submit runs the submit action in the same unit of work.
	Submit bool
}

// CreateRequest builds a new aggregate and drives it through the create
// action (and optionally submit) inside one transaction. The external
// number is assigned here and never changes afterwards.
func (e Engine) CreateRequest(ctx context.Context, id identity.Identity, opts RequestCreateOptions) (domain.Request, error) {
	if opts.TypeID == "" {
		opts.TypeID = workflow.GenericTypeID
	}
	t, err := e.typeOf(opts.TypeID)
	if err != nil {
		return domain.Request{}, err
	}
	if len(opts.CreatedBy) == 0 && !id.System && id.UserID != "" {
		opts.CreatedBy = domain.Ref{resolver.KindUser: id.UserID}
	}
	if err := t.ValidateRefs(opts.CreatedBy, opts.Receiver, opts.Topic); err != nil {
		return domain.Request{}, err
	}
	if _, err := t.ValidatePayload(opts.Payload); err != nil {
		return domain.Request{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	r := domain.Request{
		ID:        uuid.New().String(),
		TypeID:    t.ID,
		Title:     opts.Title,
		CreatedBy: opts.CreatedBy,
		Receiver:  opts.Receiver,
		Topic:     opts.Topic,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.ExpiresAt != nil {
		v := opts.ExpiresAt.UTC().Format(time.RFC3339)
		r.ExpiresAt = &v
	}
	ok, err := e.Policy.Allows(ctx, id, "create", &r, t)
	if err != nil {
		return domain.Request{}, err
	}
	if !ok {
		return domain.Request{}, permission.DeniedError{Action: "create"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	number, err := e.assignNumber(ctx, tx)
	if err != nil {
		return domain.Request{}, err
	}
	r.Number = number

	if err := e.runAction(ctx, tx, id, &r, t, "create"); err != nil {
		return domain.Request{}, err
	}
	if opts.Submit {
		if err := e.runAction(ctx, tx, id, &r, t, "submit"); err != nil {
			return domain.Request{}, err
		}
	}
	if err := e.Repo.InsertRequestTx(ctx, tx, r); err != nil {
		return domain.Request{}, fmt.Errorf("insert request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	e.index(ctx, r, t)
	return r, nil
}

// runAction fires the named action against an in-memory aggregate during
// creation, before the row exists.
func (e Engine) runAction(ctx context.Context, tx *sql.Tx, id identity.Identity, r *domain.Request, t *workflow.RequestType, name string) error {
	a, ok := t.Actions[name]
	if !ok {
		return workflow.NoSuchActionError{Action: name}
	}
	bound := &workflow.BoundAction{
		Name:    name,
		Action:  a,
		Type:    t,
		Request: r,
		Events:  e.Events,
	}
	if a.EventType != "" {
		err := e.Events.Append(ctx, tx, a.EventType, r.ID, id.ActorID(), map[string]any{"status": r.Status})
		if err != nil {
			return err
		}
	}
	return bound.Execute(ctx, tx, id)
}

func (e Engine) assignNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	if e.Config.NumberPolicy() == "random" {
		return strings.ToUpper(uuid.New().String()[:8]), nil
	}
	n, err := e.Repo.NextNumberTx(ctx, tx, "requests")
	if err != nil {
		return "", fmt.Errorf("assign number: %w", err)
	}
	return fmt.Sprintf("%d", n), nil
}

// ExecuteAction is the single protocol for mutating a request: load,
// dispatch, permission check, pre-transition event, transition and commit
// run as one unit of work, all or nothing.
func (e Engine) ExecuteAction(ctx context.Context, id identity.Identity, requestID, actionName string, data map[string]any) (domain.Request, error) {
	r, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	// Action existence is checked before permission; an unknown action is
	// surfaced identically regardless of authorization.
	bound, err := e.Dispatcher.For(&r, actionName)
	if err != nil {
		return domain.Request{}, err
	}
	t := bound.Type
	ok, err := e.Policy.Allows(ctx, id, actionName, &r, t)
	if err != nil {
		return domain.Request{}, err
	}
	if !ok {
		return domain.Request{}, permission.DeniedError{Action: actionName}
	}
	clean, err := t.ValidatePayload(data)
	if err != nil {
		return domain.Request{}, err
	}

	expectedRevision := r.Revision
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	// The action's event is logged before the mutation so it reflects
	// pre-transition context; Execute appends the post-transition log.
	if bound.Action.EventType != "" {
		err := e.Events.Append(ctx, tx, bound.Action.EventType, r.ID, id.ActorID(), map[string]any{"status": r.Status})
		if err != nil {
			return domain.Request{}, err
		}
	}
	if err := bound.Execute(ctx, tx, id); err != nil {
		return domain.Request{}, err
	}
	if !t.ValidStatus(r.Status) {
		return domain.Request{}, workflow.ValidationError{Field: "status", Message: "unknown status " + r.Status}
	}
	r.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateRequestTx(ctx, tx, &r, expectedRevision); err != nil {
		return domain.Request{}, err
	}

	var comment *domain.Event
	if content, ok := clean["comment"].(string); ok && content != "" {
		err := e.Events.Append(ctx, tx, "request.comment", r.ID, id.ActorID(), map[string]any{"content": content})
		if err != nil {
			return domain.Request{}, err
		}
		comment = &domain.Event{Type: "request.comment", RequestID: r.ID, ActorID: id.ActorID()}
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	e.index(ctx, r, t)
	if comment != nil {
		e.notify(ctx, *comment)
	}
	return r, nil
}

// AddComment appends a comment-kind event without a transition.
func (e Engine) AddComment(ctx context.Context, id identity.Identity, requestID, content string) (domain.Event, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Event{}, workflow.ValidationError{Field: "comment", Message: "required"}
	}
	r, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Event{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()
	err = e.Events.Append(ctx, tx, "request.comment", r.ID, id.ActorID(), map[string]any{"content": content})
	if err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	evt := domain.Event{Type: "request.comment", RequestID: r.ID, ActorID: id.ActorID()}
	e.notify(ctx, evt)
	return evt, nil
}

func (e Engine) notify(ctx context.Context, evt domain.Event) {
	if e.Notifier == nil {
		return
	}
	go e.Notifier.Notify(context.WithoutCancel(ctx), evt)
}

func (e Engine) index(ctx context.Context, r domain.Request, t *workflow.RequestType) {
	if err := e.Repo.IndexRequest(ctx, r, t.IsOpen(r.Status)); err != nil {
		e.logger().Printf("index request %s failed: %v", r.ID, err)
	}
}

// Timeline returns a request's events in creation order.
func (e Engine) Timeline(ctx context.Context, requestID string) ([]domain.Event, error) {
	if _, err := e.Repo.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.Repo.Timeline(ctx, requestID)
}

// ListOptions filter request listings. Query matches the search index.
type ListOptions struct {
	TypeID string
	Status string
	Query  string
}

func (e Engine) ListRequests(ctx context.Context, opts ListOptions) ([]RequestView, error) {
	items, err := e.Repo.ListRequests(ctx, repo.RequestFilter{TypeID: opts.TypeID, Status: opts.Status})
	if err != nil {
		return nil, err
	}
	var matched map[string]bool
	if opts.Query != "" {
		ids, err := e.Repo.SearchRequests(ctx, opts.Query)
		if err != nil {
			return nil, err
		}
		matched = make(map[string]bool, len(ids))
		for _, id := range ids {
			matched[id] = true
		}
	}
	out := make([]RequestView, 0, len(items))
	for _, r := range items {
		if matched != nil && !matched[r.ID] {
			continue
		}
		view, err := e.Expand(r)
		if err != nil {
			var nf registry.NotFoundError
			if errors.As(err, &nf) {
				// Orphaned type id; skip rather than fail the listing.
				continue
			}
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// GetRequestView loads and expands one request.
func (e Engine) GetRequestView(ctx context.Context, requestID string) (RequestView, error) {
	r, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return RequestView{}, err
	}
	return e.Expand(r)
}
