package handler

import (
	"time"

	"github.com/99minutos/storefront/internal/core/domain"
)

// errorResponse documents the error envelope rendered by the API error handler.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// --- Request / Response types ---

type loginRequest struct {
	Email    string `json:"email"    example:"ada@example.com"`
	Password string `json:"password" example:"s3cret!"`
}

type registerRequest struct {
	Name     string `json:"name"     example:"Ada Lovelace"`
	Email    string `json:"email"    example:"ada@example.com"`
	Password string `json:"password" example:"s3cret!"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

type authResponse struct {
	User    userResponse `json:"user"`
	Message string       `json:"message,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type accountUserResponse struct {
	userResponse
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(id domain.Identity) userResponse {
	return userResponse{ID: id.ID, Email: id.Email, Name: id.Name, Role: id.Role}
}

func toAccountUserResponse(u *domain.User) accountUserResponse {
	return accountUserResponse{
		userResponse: toUserResponse(u.Identity()),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
