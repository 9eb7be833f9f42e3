package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/99minutos/storefront/internal/core/domain"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// UserRepository implements ports.UserRepository using Postgres.
type UserRepository struct {
	db      *Database
	builder squirrel.StatementBuilderType
}

func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Name         string    `db:"name"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

var userColumns = []string{"id", "email", "password_hash", "name", "role", "created_at", "updated_at"}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	query, args, err := r.insertQuery(u).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var row userRow
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, r.selectQuery(squirrel.Eq{"email": email}))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, r.selectQuery(squirrel.Expr("id::text = ?", id)))
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	query, args, err := r.updateRoleQuery(id, role).ToSql()
	if err != nil {
		return fmt.Errorf("build update role: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) insertQuery(u *domain.User) squirrel.InsertBuilder {
	return r.builder.
		Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt, u.UpdatedAt).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
}

func (r *UserRepository) selectQuery(where squirrel.Sqlizer) squirrel.SelectBuilder {
	return r.builder.Select(userColumns...).From("users").Where(where)
}

func (r *UserRepository) updateRoleQuery(id string, role domain.Role) squirrel.UpdateBuilder {
	return r.builder.
		Update("users").
		Set("role", string(role)).
		Set("updated_at", squirrel.Expr("CURRENT_TIMESTAMP")).
		Where(squirrel.Expr("id::text = ?", id))
}

func (r *UserRepository) get(ctx context.Context, q squirrel.SelectBuilder) (*domain.User, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find user: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return row.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
