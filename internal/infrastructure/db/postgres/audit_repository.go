package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

// AuditRepository implements ports.AuditRepository using Postgres.
type AuditRepository struct {
	db *Database
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InsertEvent(ctx context.Context, event *domain.AuthEvent) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO auth_events (type, user_id, email, ip, path, reason, occurred_at)
		VALUES (:type, :user_id, :email, :ip, :path, :reason, :occurred_at)`,
		auditRow(event),
	)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// PurgeBefore deletes events that occurred before cutoff and returns how many
// rows went away. Postgres has no TTL index, so the server runs it on a
// schedule.
func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge auth events: %w", err)
	}
	return res.RowsAffected()
}

func auditRow(e *domain.AuthEvent) map[string]any {
	return map[string]any{
		"type":        string(e.Type),
		"user_id":     nullString(e.UserID),
		"email":       nullString(e.Email),
		"ip":          nullString(e.IP),
		"path":        nullString(e.Path),
		"reason":      nullString(e.Reason),
		"occurred_at": e.Timestamp.UTC(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
