// Package session keeps the signed session token in the auth-token cookie.
package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieName is the name of the session cookie.
const CookieName = "auth-token"

// CookieStore writes and reads the session cookie. The cookie is HttpOnly,
// SameSite=Strict, scoped to "/", lives as long as the token, and is marked
// Secure in production.
type CookieStore struct {
	maxAge int
	secure bool
}

// NewCookieStore returns a store whose cookies expire after ttl.
func NewCookieStore(ttl time.Duration, secure bool) *CookieStore {
	return &CookieStore{maxAge: int(ttl / time.Second), secure: secure}
}

// Set stores token in the session cookie.
func (s *CookieStore) Set(c echo.Context, token string) {
	c.SetCookie(s.cookie(token, s.maxAge))
}

// Clear expires the session cookie on the client.
func (s *CookieStore) Clear(c echo.Context) {
	c.SetCookie(s.cookie("", -1))
}

// Token returns the session token, or "" when no cookie was sent.
func (s *CookieStore) Token(c echo.Context) string {
	ck, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (s *CookieStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
