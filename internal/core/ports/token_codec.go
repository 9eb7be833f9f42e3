package ports

import "github.com/99minutos/storefront/internal/core/domain"

// TokenCodec issues and verifies self-contained session tokens.
// Verify and Refresh return domain.ErrInvalidToken for any bad token.
type TokenCodec interface {
	Issue(id domain.Identity) (string, error)
	Verify(token string) (domain.Identity, error)
	Refresh(token string) (string, domain.Identity, error)
}
