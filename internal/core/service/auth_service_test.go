package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

type stubUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User // keyed by email
	findErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if u, ok := r.users[email]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	r.users[user.Email] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *stubUserRepo) UpdateRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return domain.ErrUserNotFound
}

type stubLimiter struct {
	blocked    bool
	blockedErr error
	failures   map[string]int
	resets     int
}

func (l *stubLimiter) Blocked(_ context.Context, _ string) (bool, error) {
	return l.blocked, l.blockedErr
}

func (l *stubLimiter) RecordFailure(_ context.Context, email string) error {
	if l.failures == nil {
		l.failures = make(map[string]int)
	}
	l.failures[email]++
	return nil
}

func (l *stubLimiter) Reset(_ context.Context, _ string) error {
	l.resets++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (p *recordingPublisher) Publish(ev domain.AuthEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []domain.AuthEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AuthEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestAuthService(t *testing.T, repo ports.UserRepository, opts ...AuthOption) *AuthService {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", DefaultTokenTTL)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return NewAuthService(repo, codec, zerolog.Nop(), opts...)
}

func seedUser(t *testing.T, repo *stubUserRepo, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{ID: "id-" + email, Name: "Seeded", Email: email, PasswordHash: string(hash), Role: role}
	repo.users[email] = u
	return cloneUser(u)
}

func TestAuthService_Authenticate(t *testing.T) {
	repo := newStubUserRepo()
	seeded := seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatalf("unexpected user: %+v", user)
	}

	wrongPass, errPass := svc.Authenticate(ctx, "ada@example.com", "wrong-pass")
	unknown, errUnknown := svc.Authenticate(ctx, "nobody@example.com", "secret1")
	if wrongPass != nil || unknown != nil {
		t.Fatal("expected no user on failure")
	}
	if !errors.Is(errPass, domain.ErrInvalidCredentials) || !errors.Is(errUnknown, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errPass, errUnknown)
	}
	if errPass.Error() != errUnknown.Error() {
		t.Fatal("wrong password and unknown email must be indistinguishable")
	}
}

func TestAuthService_Authenticate_StoreFailure(t *testing.T) {
	repo := newStubUserRepo()
	repo.findErr = errors.New("connection refused")
	svc := newTestAuthService(t, repo)

	_, err := svc.Authenticate(context.Background(), "ada@example.com", "secret1")
	if err == nil || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubUserRepo()
	pub := &recordingPublisher{}
	svc := newTestAuthService(t, repo, WithAuditPublisher(pub))

	sess, err := svc.Register(context.Background(), ports.RegisterInput{Name: "  Grace  ", Email: "grace@example.com", Password: "hopper"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a session token")
	}
	if sess.Identity.Role != domain.RoleUser || sess.Identity.Name != "Grace" {
		t.Fatalf("unexpected identity: %+v", sess.Identity)
	}

	stored := repo.users["grace@example.com"]
	if stored == nil {
		t.Fatal("user was not persisted")
	}
	if stored.PasswordHash == "hopper" {
		t.Fatal("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hopper")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(stored.PasswordHash)); cost < bcrypt.DefaultCost {
		t.Fatalf("expected cost >= %d, got %d", bcrypt.DefaultCost, cost)
	}

	id, err := svc.WhoAmI(context.Background(), sess.Token)
	if err != nil || id != sess.Identity {
		t.Fatalf("token does not carry the new identity: %+v, %v", id, err)
	}

	if got := pub.types(); len(got) != 1 || got[0] != domain.EventRegistered {
		t.Fatalf("expected a registered event, got %v", got)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "x", Email: "bad", Password: "123"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %v", ve.Messages)
	}
	if len(repo.users) != 0 {
		t.Fatal("invalid registration must not create a record")
	}
}

func TestAuthService_Register_DuplicateLeavesOriginal(t *testing.T) {
	repo := newStubUserRepo()
	original := seedUser(t, repo, "ada@example.com", "secret1", domain.RoleAdmin)
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "Impostor", Email: "ada@example.com", Password: "another"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	after := repo.users["ada@example.com"]
	if *after != *original {
		t.Fatalf("existing record changed: %+v -> %+v", original, after)
	}
	if _, err := svc.Authenticate(context.Background(), "ada@example.com", "secret1"); err != nil {
		t.Fatalf("original password should still work: %v", err)
	}
}

func TestAuthService_Register_OverlongPasswordIsValidationError(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo)
	long := strings.Repeat("p", 80)

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "Ada", Email: "ada@example.com", Password: long})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Messages) != 1 || ve.Messages[0] != "password must be at most 72 bytes" {
		t.Fatalf("unexpected messages: %v", ve.Messages)
	}

	_, err = svc.PromoteAdmin(context.Background(), "Root", "root@example.com", long)
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError from PromoteAdmin, got %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatal("rejected passwords must not create records")
	}

	if _, err := svc.Register(context.Background(), ports.RegisterInput{Name: "Ada", Email: "ada@example.com", Password: long[:72]}); err != nil {
		t.Fatalf("72-byte password should register: %v", err)
	}
}

func TestAuthService_DummyHashFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	codec, err := NewTokenCodec("test-secret", DefaultTokenTTL)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	svc := NewAuthService(newStubUserRepo(), codec, zerolog.New(&buf))
	svc.cost = bcrypt.MaxCost + 1

	if _, err := svc.Authenticate(context.Background(), "ghost@example.com", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !strings.Contains(buf.String(), "failed to build dummy hash") {
		t.Fatalf("expected the dummy hash failure to be logged, got %q", buf.String())
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "ada@example.com", "secret1", domain.RoleAdmin)
	lim := &stubLimiter{}
	pub := &recordingPublisher{}
	svc := newTestAuthService(t, repo, WithLoginLimiter(lim), WithAuditPublisher(pub))

	sess, err := svc.Login(context.Background(), ports.LoginInput{Email: " ada@example.com ", Password: "secret1", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if sess.Identity.Role != domain.RoleAdmin || sess.Identity.Email != "ada@example.com" {
		t.Fatalf("unexpected identity: %+v", sess.Identity)
	}
	if lim.resets != 1 {
		t.Fatalf("expected limiter reset on success, got %d", lim.resets)
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventLoginSucceeded {
		t.Fatalf("expected login_succeeded, got %v", got)
	}
	if pub.events[0].IP != "10.0.0.1" {
		t.Fatalf("expected IP on audit event, got %q", pub.events[0].IP)
	}
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	lim := &stubLimiter{}
	pub := &recordingPublisher{}
	svc := newTestAuthService(t, repo, WithLoginLimiter(lim), WithAuditPublisher(pub))

	sess, err := svc.Login(context.Background(), ports.LoginInput{Email: "ada@example.com", Password: "wrong-pass"})
	if !errors.Is(err, domain.ErrInvalidCredentials) || sess != nil {
		t.Fatalf("expected ErrInvalidCredentials and no session, got %v, %+v", err, sess)
	}
	if lim.failures["ada@example.com"] != 1 {
		t.Fatalf("expected one recorded failure, got %v", lim.failures)
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventLoginFailed {
		t.Fatalf("expected login_failed, got %v", got)
	}
}

func TestAuthService_Login_ValidationSkipsStore(t *testing.T) {
	repo := newStubUserRepo()
	repo.findErr = errors.New("store must not be reached")
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), ports.LoginInput{Email: "", Password: "1"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAuthService_Login_Throttled(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	lim := &stubLimiter{blocked: true}
	svc := newTestAuthService(t, repo, WithLoginLimiter(lim))

	if _, err := svc.Login(context.Background(), ports.LoginInput{Email: "ada@example.com", Password: "secret1"}); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestAuthService_Login_LimiterOutageFailsOpen(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	lim := &stubLimiter{blockedErr: errors.New("redis down")}
	svc := newTestAuthService(t, repo, WithLoginLimiter(lim))

	if _, err := svc.Login(context.Background(), ports.LoginInput{Email: "ada@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("limiter outage should not block login, got %v", err)
	}
}

func TestAuthService_RefreshAndWhoAmI(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	sess, err := svc.Register(ctx, ports.RegisterInput{Name: "Linus", Email: "linus@example.com", Password: "kernel"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	fresh, err := svc.Refresh(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh.Identity != sess.Identity {
		t.Fatalf("refresh changed identity: %+v", fresh.Identity)
	}

	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.WhoAmI(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty refresh, got %v", err)
	}
}

func TestAuthService_LogoutAudits(t *testing.T) {
	repo := newStubUserRepo()
	pub := &recordingPublisher{}
	svc := newTestAuthService(t, repo, WithAuditPublisher(pub))
	ctx := context.Background()

	sess, _ := svc.Register(ctx, ports.RegisterInput{Name: "Ken", Email: "ken@example.com", Password: "unix69"})
	svc.Logout(ctx, sess.Token, "127.0.0.1")
	svc.Logout(ctx, "garbage", "127.0.0.1")
	svc.Logout(ctx, "", "127.0.0.1")

	got := pub.types()
	if len(got) != 2 || got[1] != domain.EventLoggedOut {
		t.Fatalf("expected registered then logged_out, got %v", got)
	}
}

func TestAuthService_PromoteAdmin(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	promoted, err := svc.PromoteAdmin(ctx, "", "ada@example.com", "")
	if err != nil {
		t.Fatalf("PromoteAdmin existing: %v", err)
	}
	if promoted.Role != domain.RoleAdmin || repo.users["ada@example.com"].Role != domain.RoleAdmin {
		t.Fatal("expected existing user to be promoted")
	}
	if _, err := svc.Authenticate(ctx, "ada@example.com", "secret1"); err != nil {
		t.Fatalf("promotion must keep the password: %v", err)
	}

	created, err := svc.PromoteAdmin(ctx, "Root", "root@example.com", "toor-pass")
	if err != nil {
		t.Fatalf("PromoteAdmin new: %v", err)
	}
	if created.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", created.Role)
	}

	if _, err := svc.PromoteAdmin(ctx, "R", "bad", "x"); err == nil {
		t.Fatal("expected validation error for new admin with bad input")
	}
}

func TestAuthService_GetUser(t *testing.T) {
	repo := newStubUserRepo()
	seeded := seedUser(t, repo, "ada@example.com", "secret1", domain.RoleUser)
	svc := newTestAuthService(t, repo)

	u, err := svc.GetUser(context.Background(), seeded.ID)
	if err != nil || u.Email != seeded.Email {
		t.Fatalf("GetUser: %+v, %v", u, err)
	}
	if _, err := svc.GetUser(context.Background(), "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_TokenExpiresAfterTTL(t *testing.T) {
	repo := newStubUserRepo()
	codec, _ := NewTokenCodec("test-secret", DefaultTokenTTL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return start }
	svc := NewAuthService(repo, codec, zerolog.Nop())

	sess, err := svc.Register(context.Background(), ports.RegisterInput{Name: "Tess", Email: "tess@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	codec.now = func() time.Time { return start.Add(DefaultTokenTTL + time.Second) }
	if _, err := svc.WhoAmI(context.Background(), sess.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected token to expire, got %v", err)
	}
}
