package ports

import (
	"context"

	"github.com/99minutos/storefront/internal/core/domain"
)

// AuditRepository persists auth events to the audit trail.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}

// AuditService records a single auth event.
type AuditService interface {
	Record(ctx context.Context, event domain.AuthEvent) error
}

// AuditPublisher is how request paths hand events off without waiting on storage.
type AuditPublisher interface {
	Publish(event domain.AuthEvent)
}
