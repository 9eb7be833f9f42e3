package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

// AuthService implements registration, login and the token-backed session flows.
type AuthService struct {
	repo     ports.UserRepository
	codec    ports.TokenCodec
	validate *InputValidator
	limiter  ports.LoginLimiter
	audit    ports.AuditPublisher
	cost     int
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// AuthOption configures optional collaborators of the AuthService.
type AuthOption func(*AuthService)

// WithLoginLimiter enables failed-login throttling.
func WithLoginLimiter(l ports.LoginLimiter) AuthOption {
	return func(s *AuthService) { s.limiter = l }
}

// WithAuditPublisher sends auth outcomes to the audit trail.
func WithAuditPublisher(p ports.AuditPublisher) AuthOption {
	return func(s *AuthService) { s.audit = p }
}

// WithBcryptCost overrides the password hashing cost. Values below
// bcrypt.DefaultCost are raised to it.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

func NewAuthService(repo ports.UserRepository, codec ports.TokenCodec, log zerolog.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:     repo,
		codec:    codec,
		validate: NewInputValidator(),
		cost:     bcrypt.DefaultCost,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cost < bcrypt.DefaultCost {
		s.cost = bcrypt.DefaultCost
	}
	if s.cost > bcrypt.MaxCost {
		s.cost = bcrypt.MaxCost
	}
	return s
}

// Authenticate returns the user only when email and password match a stored
// credential. Unknown emails and wrong passwords are indistinguishable.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Burn the same hashing time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Login validates the form, applies throttling, authenticates and issues a token.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Validate(&in); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		blocked, err := s.limiter.Blocked(ctx, in.Email)
		if err != nil {
			s.log.Warn().Err(err).Msg("login limiter check failed, continuing")
		} else if blocked {
			s.publish(domain.AuthEvent{Type: domain.EventLoginThrottled, Email: in.Email, IP: in.IP})
			return nil, domain.ErrTooManyAttempts
		}
	}

	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.recordFailure(ctx, in.Email)
			s.publish(domain.AuthEvent{Type: domain.EventLoginFailed, Email: in.Email, IP: in.IP, Reason: "invalid_credentials"})
		}
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, in.Email); err != nil {
			s.log.Warn().Err(err).Msg("failed to reset login limiter")
		}
	}

	sess, err := s.issue(user.Identity())
	if err != nil {
		return nil, err
	}

	s.publish(domain.AuthEvent{Type: domain.EventLoginSucceeded, UserID: user.ID, Email: user.Email, IP: in.IP})
	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return sess, nil
}

// Register creates a self-service account with the user role and signs it in.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Validate(&in); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, in.Name, in.Email, in.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	sess, err := s.issue(user.Identity())
	if err != nil {
		return nil, err
	}

	s.publish(domain.AuthEvent{Type: domain.EventRegistered, UserID: user.ID, Email: user.Email, IP: in.IP})
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return sess, nil
}

// Refresh trades a valid token for one with a fresh TTL window.
func (s *AuthService) Refresh(_ context.Context, token string) (*ports.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	fresh, id, err := s.codec.Refresh(token)
	if err != nil {
		return nil, err
	}

	s.publish(domain.AuthEvent{Type: domain.EventTokenRefreshed, UserID: id.ID, Email: id.Email})
	return &ports.Session{Identity: id, Token: fresh}, nil
}

// WhoAmI resolves the identity carried by a session token.
func (s *AuthService) WhoAmI(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return s.codec.Verify(token)
}

// Logout only audits: tokens are stateless and expire on their own once the
// client has dropped the cookie.
func (s *AuthService) Logout(_ context.Context, token, ip string) {
	if token == "" {
		return
	}
	id, err := s.codec.Verify(token)
	if err != nil {
		return
	}
	s.publish(domain.AuthEvent{Type: domain.EventLoggedOut, UserID: id.ID, Email: id.Email, IP: ip})
}

// GetUser looks up an account by id for privileged callers.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

// PromoteAdmin is the privileged role assignment used by operators. An
// existing account keeps its password and only gains the admin role; a new
// one is created with the given credentials.
func (s *AuthService) PromoteAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.repo.UpdateRole(ctx, existing.ID, domain.RoleAdmin); err != nil {
			return nil, fmt.Errorf("promote admin: %w", err)
		}
		existing.Role = domain.RoleAdmin
		s.publish(domain.AuthEvent{Type: domain.EventAdminPromoted, UserID: existing.ID, Email: existing.Email})
		return existing, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("promote admin: %w", err)
	}

	in := ports.RegisterInput{Name: strings.TrimSpace(name), Email: email, Password: password}
	if err := s.validate.Validate(&in); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, in.Name, in.Email, in.Password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.publish(domain.AuthEvent{Type: domain.EventAdminPromoted, UserID: user.ID, Email: user.Email})
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return created, nil
}

func (s *AuthService) issue(id domain.Identity) (*ports.Session, error) {
	token, err := s.codec.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &ports.Session{Identity: id, Token: token}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("failed to record login failure")
	}
}

func (s *AuthService) publish(ev domain.AuthEvent) {
	if s.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.audit.Publish(ev)
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("storefront-timing-equalizer"), s.cost)
		if err != nil {
			s.log.Error().Err(err).Int("cost", s.cost).Msg("failed to build dummy hash, unknown-email logins will answer faster")
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
