package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/storefront/internal/core/domain"
)

// DefaultTokenTTL is the session lifetime: 15 minutes.
const DefaultTokenTTL = 900 * time.Second

var errMissingSecret = errors.New("token codec: signing secret is not configured")

// sessionClaims is the token payload: identity fields plus iat/exp.
type sessionClaims struct {
	UserID string      `json:"id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec returns a codec for the given secret. An empty secret is a
// configuration error and is reported here, never per request.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	c := &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		// exp is inclusive: a token is still good in its final second.
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// TTL is the lifetime given to every issued token.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for id valid from now until now+TTL.
func (c *TokenCodec) Issue(id domain.Identity) (string, error) {
	issuedAt := c.now().Truncate(time.Second)
	claims := sessionClaims{
		UserID: id.ID,
		Email:  id.Email,
		Name:   id.Name,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Verify checks the signature and expiry and returns the embedded identity.
func (c *TokenCodec) Verify(token string) (domain.Identity, error) {
	claims := &sessionClaims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	return domain.Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	}, nil
}

// Refresh re-issues a valid token with a fresh TTL window. It fails exactly
// when Verify fails.
func (c *TokenCodec) Refresh(token string) (string, domain.Identity, error) {
	id, err := c.Verify(token)
	if err != nil {
		return "", domain.Identity{}, err
	}
	fresh, err := c.Issue(id)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return fresh, id, nil
}
