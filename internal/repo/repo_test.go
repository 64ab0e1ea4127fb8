package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"requestline/internal/db"
	"requestline/internal/domain"
	"requestline/internal/migrate"
	"requestline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func sampleRequest(id string) domain.Request {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339)
	return domain.Request{
		ID:        id,
		Number:    "1",
		TypeID:    "generic-request",
		Status:    "submitted",
		Title:     "sample",
		CreatedBy: domain.Ref{"user": "alice"},
		Receiver:  domain.Ref{"user": "bob"},
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRequestRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	req := sampleRequest("r1")
	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	req.ExpiresAt = &expires
	req.Topic = domain.Ref{"record": "doc-1"}

	inTx(t, r, func(tx *sql.Tx) error { return r.InsertRequestTx(ctx, tx, req) })

	got, err := r.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedBy.ID() != "alice" || got.Receiver.ID() != "bob" || got.Topic.ID() != "doc-1" {
		t.Fatalf("refs did not round trip: %+v", got)
	}
	if got.ExpiresAt == nil || *got.ExpiresAt != expires {
		t.Fatalf("expires_at did not round trip: %v", got.ExpiresAt)
	}

	if _, err := r.GetRequest(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing request: %v", err)
	}
}

func TestUpdateRequestRevisionCheck(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	req := sampleRequest("r1")
	inTx(t, r, func(tx *sql.Tx) error { return r.InsertRequestTx(ctx, tx, req) })

	fresh := req
	fresh.Status = "accepted"
	inTx(t, r, func(tx *sql.Tx) error { return r.UpdateRequestTx(ctx, tx, &fresh, 1) })
	if fresh.Revision != 2 {
		t.Fatalf("revision not bumped: %d", fresh.Revision)
	}

	// A writer still holding revision 1 must fail, not overwrite.
	stale := req
	stale.Status = "declined"
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.UpdateRequestTx(ctx, tx, &stale, 1)
	var conflict repo.ConcurrentModificationError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrentModificationError, got %v", err)
	}
	if conflict.ID != "r1" || conflict.Revision != 1 {
		t.Fatalf("conflict detail: %+v", conflict)
	}

	gone := sampleRequest("ghost")
	err = r.UpdateRequestTx(ctx, tx, &gone, 1)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update of missing request: %v", err)
	}
}

func TestNextNumberSequence(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		tx, err := r.DB.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		n, err := r.NextNumberTx(ctx, tx, "requests")
		if err != nil {
			t.Fatalf("next number: %v", err)
		}
		if n != want {
			t.Fatalf("number: want %d got %d", want, n)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	// A rolled-back unit of work does not consume a number for observers,
	// the counter update dies with the transaction.
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := r.NextNumberTx(ctx, tx, "requests"); err != nil {
		t.Fatalf("next number: %v", err)
	}
	tx.Rollback()

	tx, err = r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Commit()
	n, err := r.NextNumberTx(ctx, tx, "requests")
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if n != 4 {
		t.Fatalf("number after rollback: %d", n)
	}

	// Scopes count independently.
	m, err := r.NextNumberTx(ctx, tx, "other")
	if err != nil || m != 1 {
		t.Fatalf("scoped number: %d %v", m, err)
	}
}

func TestSearchIndex(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	req := sampleRequest("r1")
	req.Title = "Grant curator access"
	inTx(t, r, func(tx *sql.Tx) error { return r.InsertRequestTx(ctx, tx, req) })
	if err := r.IndexRequest(ctx, req, true); err != nil {
		t.Fatalf("index: %v", err)
	}

	ids, err := r.SearchRequests(ctx, "curator")
	if err != nil || len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("search by title: %v %v", ids, err)
	}
	ids, err = r.SearchRequests(ctx, "1")
	if err != nil || len(ids) != 1 {
		t.Fatalf("search by number: %v %v", ids, err)
	}
	ids, err = r.SearchRequests(ctx, "nothing")
	if err != nil || len(ids) != 0 {
		t.Fatalf("search miss: %v %v", ids, err)
	}

	// Reindexing replaces the row instead of duplicating it.
	req.Status = "accepted"
	if err := r.IndexRequest(ctx, req, false); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	ids, err = r.SearchRequests(ctx, "curator")
	if err != nil || len(ids) != 1 {
		t.Fatalf("search after reindex: %v %v", ids, err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	raw := "secret-key-material"
	key := domain.APIKey{
		ID:      "k1",
		ActorID: "alice",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(raw),
	}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("  secret-key-material  "))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != "k1" || got.ActorID != "alice" || got.Name != "ci" {
		t.Fatalf("key mismatch: %+v", got)
	}

	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown key: %v", err)
	}

	keys, err := r.ListAPIKeys(ctx, "alice")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted key still resolves: %v", err)
	}
}

func TestGroupMembership(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	if err := r.EnsureUser(ctx, "carol", "Carol", now); err != nil {
		t.Fatalf("user: %v", err)
	}
	if err := r.EnsureGroup(ctx, "curators", "", now); err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := r.AddGroupMember(ctx, "curators", "carol"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Idempotent.
	if err := r.AddGroupMember(ctx, "curators", "carol"); err != nil {
		t.Fatalf("re-add member: %v", err)
	}

	groups, err := r.GroupsForUser(ctx, "carol")
	if err != nil || len(groups) != 1 || groups[0] != "curators" {
		t.Fatalf("memberships: %v %v", groups, err)
	}

	if err := r.RemoveGroupMember(ctx, "curators", "carol"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	groups, err = r.GroupsForUser(ctx, "carol")
	if err != nil || len(groups) != 0 {
		t.Fatalf("memberships after removal: %v %v", groups, err)
	}
}
