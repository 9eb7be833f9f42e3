package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

var errUntypedEvent = errors.New("audit: event has no type")

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService returns an AuditService that persists events to repo.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record persists one auth event. Security-relevant outcomes are also logged
// at warn level so they show up without querying the audit store.
func (s *auditService) Record(ctx context.Context, ev domain.AuthEvent) error {
	if ev.Type == "" {
		return errUntypedEvent
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if err := s.repo.InsertEvent(ctx, &ev); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}

	entry := s.log.Debug()
	switch ev.Type {
	case domain.EventLoginFailed, domain.EventLoginThrottled, domain.EventAccessDenied, domain.EventAdminPromoted:
		entry = s.log.Warn()
	}
	entry.
		Str("type", string(ev.Type)).
		Str("user_id", ev.UserID).
		Str("email", ev.Email).
		Str("ip", ev.IP).
		Str("path", ev.Path).
		Msg("auth event recorded")

	return nil
}
