package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"requestline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ConcurrentModificationError indicates a stale revision on commit. The
// revision counter is the sole concurrency-control primitive: writers must
// supply the revision they last observed and a mismatch fails the write.
type ConcurrentModificationError struct {
	ID       string
	Revision int64
}

func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("request %s modified concurrently (expected revision %d)", e.ID, e.Revision)
}

func marshalRef(ref domain.Ref) (any, error) {
	if len(ref) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalRef(s sql.NullString) (domain.Ref, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var ref domain.Ref
	if err := json.Unmarshal([]byte(s.String), &ref); err != nil {
		return nil, err
	}
	return ref, nil
}

const requestColumns = `id,number,type,status,title,created_by_json,receiver_json,topic_json,expires_at,revision,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.Request, error) {
	var r domain.Request
	var createdBy, receiver, topic, expires sql.NullString
	err := row.Scan(&r.ID, &r.Number, &r.TypeID, &r.Status, &r.Title,
		&createdBy, &receiver, &topic, &expires, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if r.CreatedBy, err = unmarshalRef(createdBy); err != nil {
		return r, err
	}
	if r.Receiver, err = unmarshalRef(receiver); err != nil {
		return r, err
	}
	if r.Topic, err = unmarshalRef(topic); err != nil {
		return r, err
	}
	if expires.Valid {
		v := expires.String
		r.ExpiresAt = &v
	}
	return r, nil
}

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	createdBy, err := marshalRef(req.CreatedBy)
	if err != nil {
		return err
	}
	receiver, err := marshalRef(req.Receiver)
	if err != nil {
		return err
	}
	topic, err := marshalRef(req.Topic)
	if err != nil {
		return err
	}
	var expires any
	if req.ExpiresAt != nil {
		expires = *req.ExpiresAt
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.Number, req.TypeID, req.Status, req.Title, createdBy, receiver, topic, expires,
		req.Revision, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id))
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	return scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id))
}

// UpdateRequestTx commits the aggregate against the revision the caller
// last observed; a stale revision fails rather than silently overwriting.
// On success req's revision is bumped in place.
func (r Repo) UpdateRequestTx(ctx context.Context, tx *sql.Tx, req *domain.Request, expectedRevision int64) error {
	var expires any
	if req.ExpiresAt != nil {
		expires = *req.ExpiresAt
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE requests SET status=?, title=?, expires_at=?, revision=revision+1, updated_at=? WHERE id=? AND revision=?`,
		req.Status, req.Title, expires, req.UpdatedAt, req.ID, expectedRevision)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := r.GetRequestTx(ctx, tx, req.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ConcurrentModificationError{ID: req.ID, Revision: expectedRevision}
	}
	req.Revision = expectedRevision + 1
	return nil
}

func (r Repo) DeleteRequest(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextNumberTx increments and returns the sequential request counter for a
// scope inside the creating transaction, so numbers never repeat even when
// the surrounding unit of work retries.
func (r Repo) NextNumberTx(ctx context.Context, tx *sql.Tx, scope string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO request_numbers(scope, next) VALUES (?, 0)`, scope); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE request_numbers SET next=next+1 WHERE scope=?`, scope); err != nil {
		return 0, err
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT next FROM request_numbers WHERE scope=?`, scope).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type RequestFilter struct {
	TypeID string
	Status string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilter) ([]domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var (
		conds []string
		args  []any
	)
	if f.TypeID != "" {
		conds = append(conds, "type=?")
		args = append(args, f.TypeID)
	}
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, f.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListExpired returns requests whose expires_at has passed and whose status
// is one of openStatuses. The sweep derives openStatuses from the type
// registry, so openness never depends on the search index being current.
func (r Repo) ListExpired(ctx context.Context, now time.Time, openStatuses []string) ([]domain.Request, error) {
	if len(openStatuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(openStatuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(openStatuses)+1)
	for _, s := range openStatuses {
		args = append(args, s)
	}
	args = append(args, now.UTC().Format(time.RFC3339))
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status IN (`+placeholders+`) AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// --- events ---

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RequestID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Timeline returns a request's events in creation order.
func (r Repo) Timeline(ctx context.Context, requestID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,request_id,actor_id,payload_json FROM events WHERE request_id=? ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns up to limit events with id greater than cursor.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,request_id,actor_id,payload_json FROM events WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// --- search index ---

// IndexRequest refreshes the flattened search row for a committed request.
// The action engine never reads it; only list/search does.
func (r Repo) IndexRequest(ctx context.Context, req domain.Request, isOpen bool) error {
	open := 0
	if isOpen {
		open = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO request_index(request_id, number, type, status, title, is_open, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(request_id) DO UPDATE SET number=excluded.number, type=excluded.type, status=excluded.status,
title=excluded.title, is_open=excluded.is_open, updated_at=excluded.updated_at`,
		req.ID, req.Number, req.TypeID, req.Status, req.Title, open, req.UpdatedAt)
	return err
}

// SearchRequests matches the index by number or title substring.
func (r Repo) SearchRequests(ctx context.Context, query string) ([]string, error) {
	like := "%" + query + "%"
	rows, err := r.DB.QueryContext(ctx,
		`SELECT request_id FROM request_index WHERE number LIKE ? OR title LIKE ? ORDER BY updated_at DESC`, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
