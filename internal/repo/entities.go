package repo

import (
	"context"
	"database/sql"

	"requestline/internal/domain"
)

// Entity storage backing the resolvers. Ensure* follow insert-or-ignore
// semantics so seeding is idempotent.

func (r Repo) EnsureUser(ctx context.Context, id, name, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO users(id, name, created_at) VALUES (?,?,?)`,
		id, nullable(name), now)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), created_at FROM users WHERE id=?`, id)
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (r Repo) EnsureGroup(ctx context.Context, id, name, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO groups(id, name, created_at) VALUES (?,?,?)`,
		id, nullable(name), now)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), created_at FROM groups WHERE id=?`, id)
	var g domain.Group
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Group{}, ErrNotFound
	}
	return g, err
}

func (r Repo) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO group_members(group_id, user_id) VALUES (?,?)`,
		groupID, userID)
	return err
}

func (r Repo) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=? AND user_id=?`, groupID, userID)
	return err
}

// GroupsForUser returns the ids of groups the user belongs to. Used to
// assemble the needs an identity presents.
func (r Repo) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id FROM group_members WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r Repo) EnsureRecord(ctx context.Context, id, title, ownerID, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO records(id, title, owner_id, created_at) VALUES (?,?,?,?)`,
		id, nullable(title), ownerID, now)
	return err
}

func (r Repo) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(title,''), owner_id, created_at FROM records WHERE id=?`, id)
	var rec domain.Record
	err := row.Scan(&rec.ID, &rec.Title, &rec.OwnerID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Record{}, ErrNotFound
	}
	return rec, err
}
