package ports

import (
	"context"

	"github.com/99minutos/storefront/internal/core/domain"
)

// Session is what the auth flows hand back to the transport layer: the
// identity and the signed token to put in the session cookie.
type Session struct {
	Identity domain.Identity
	Token    string
}

// AuthService is the use-case boundary for the auth endpoints.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*Session, error)
	Register(ctx context.Context, in RegisterInput) (*Session, error)
	Refresh(ctx context.Context, token string) (*Session, error)
	WhoAmI(ctx context.Context, token string) (domain.Identity, error)
	Logout(ctx context.Context, token, ip string)
}

// LoginInput carries the login form.
type LoginInput struct {
	Email    string `json:"email"    validate:"required,shape_email"`
	Password string `json:"password" validate:"min=6"`
	IP       string `json:"-"        validate:"-"`
}

// RegisterInput carries the self-registration form. There is deliberately no
// role field: self-registered accounts are always domain.RoleUser.
// Upper bounds match the user store columns and bcrypt's 72-byte input limit.
type RegisterInput struct {
	Name     string `json:"name"     validate:"trimmed_min=2,max=100"`
	Email    string `json:"email"    validate:"required,shape_email,max=255"`
	Password string `json:"password" validate:"min=6,max_bytes=72"`
	IP       string `json:"-"        validate:"-"`
}

// UserDirectory exposes read access to accounts for privileged handlers.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}
