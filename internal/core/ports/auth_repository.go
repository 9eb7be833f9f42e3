package ports

import (
	"context"

	"github.com/99minutos/storefront/internal/core/domain"
)

// UserRepository defines persistence for user accounts and their credentials.
// Email is the unique key; Create returns domain.ErrUserExists on a duplicate.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}
