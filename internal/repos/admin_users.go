package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// ErrAdminExists reports a unique-email conflict on admin creation.
var ErrAdminExists = errors.New("admin user already exists")

// AdminUserRepo manages the global admin-user table. Unlike the per-tenant
// tables it always lives in the public schema.
type AdminUserRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewAdminUserRepo(pool *db.Pool, baseLog *logger.Logger) *AdminUserRepo {
	return &AdminUserRepo{pool: pool, log: baseLog.With("repo", "AdminUserRepo")}
}

func (r *AdminUserRepo) EnsureTable(ctx context.Context) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
)`, qual("public", TableAdminUsers))
	return r.pool.Exec(ctx, sql)
}

func (r *AdminUserRepo) Create(ctx context.Context, u *types.AdminUser) (int64, error) {
	sql := fmt.Sprintf(`INSERT INTO %s (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		qual("public", TableAdminUsers))
	id, err := r.pool.ExecReturningInt(ctx, sql, u.Name, u.Email, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAdminExists
		}
		return 0, err
	}
	return id, nil
}

func (r *AdminUserRepo) FindByEmail(ctx context.Context, email string) (*types.AdminUser, error) {
	sql := fmt.Sprintf(`SELECT id, name, email, password_hash FROM %s WHERE email = $1`,
		qual("public", TableAdminUsers))
	rows, err := r.pool.Query(ctx, sql, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var u types.AdminUser
	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AdminUserRepo) FindByName(ctx context.Context, name string) (*types.AdminUser, error) {
	sql := fmt.Sprintf(`SELECT id, name, email, password_hash FROM %s WHERE name = $1`,
		qual("public", TableAdminUsers))
	rows, err := r.pool.Query(ctx, sql, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var u types.AdminUser
	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AdminUserRepo) List(ctx context.Context) ([]types.AdminUser, error) {
	sql := fmt.Sprintf(`SELECT id, name, email, password_hash FROM %s ORDER BY email`,
		qual("public", TableAdminUsers))
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.AdminUser
	for rows.Next() {
		var u types.AdminUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *AdminUserRepo) DeleteByEmail(ctx context.Context, email string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE email = $1`, qual("public", TableAdminUsers))
	return r.pool.Exec(ctx, sql, email)
}
