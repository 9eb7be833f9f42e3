package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

func validationMessages(t *testing.T, err error) []string {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *domain.ValidationError, got %T (%v)", err, err)
	}
	return ve.Messages
}

func TestInputValidator_RegisterValid(t *testing.T) {
	v := NewInputValidator()
	err := v.Validate(&ports.RegisterInput{Name: "Al", Email: "al@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestInputValidator_RegisterAllInvalid(t *testing.T) {
	v := NewInputValidator()
	msgs := validationMessages(t, v.Validate(&ports.RegisterInput{Name: " a ", Email: "nope", Password: "12345"}))

	want := []string{
		"name must be at least 2 characters",
		"email must be a valid email address",
		"password must be at least 6 characters",
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d: want %q, got %q", i, want[i], msgs[i])
		}
	}
}

func TestInputValidator_EmailShapes(t *testing.T) {
	v := NewInputValidator()
	cases := []struct {
		email string
		ok    bool
	}{
		{"user@example.com", true},
		{"first.last+tag@shop.co.uk", true},
		{"user@localhost", false},
		{"@example.com", false},
		{"user@", false},
		{"us er@example.com", false},
		{"user@@example.com", false},
	}

	for _, tc := range cases {
		err := v.Validate(&ports.LoginInput{Email: tc.email, Password: "secret"})
		if tc.ok && err != nil {
			t.Errorf("%q: expected valid, got %v", tc.email, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected validation error", tc.email)
		}
	}
}

func TestInputValidator_NameIsTrimmed(t *testing.T) {
	v := NewInputValidator()
	msgs := validationMessages(t, v.Validate(&ports.RegisterInput{Name: "   x   ", Email: "x@example.com", Password: "secret"}))
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "name") {
		t.Fatalf("expected only a name message, got %v", msgs)
	}
}

func TestInputValidator_EmptyLogin(t *testing.T) {
	v := NewInputValidator()
	msgs := validationMessages(t, v.Validate(&ports.LoginInput{}))
	if len(msgs) != 2 || msgs[0] != "email is required" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestInputValidator_RegisterUpperBounds(t *testing.T) {
	v := NewInputValidator()

	ok := &ports.RegisterInput{
		Name:     strings.Repeat("n", 100),
		Email:    strings.Repeat("e", 243) + "@example.com",
		Password: strings.Repeat("p", 72),
	}
	if err := v.Validate(ok); err != nil {
		t.Fatalf("expected inputs at the limits to pass, got %v", err)
	}

	msgs := validationMessages(t, v.Validate(&ports.RegisterInput{
		Name:     strings.Repeat("n", 101),
		Email:    strings.Repeat("e", 244) + "@example.com",
		Password: strings.Repeat("p", 73),
	}))
	want := []string{
		"name must be at most 100 characters",
		"email must be at most 255 characters",
		"password must be at most 72 bytes",
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d: want %q, got %q", i, want[i], msgs[i])
		}
	}
}

func TestInputValidator_PasswordLimitCountsBytes(t *testing.T) {
	v := NewInputValidator()
	// 25 three-byte runes: short in characters, 75 bytes on the wire.
	msgs := validationMessages(t, v.Validate(&ports.RegisterInput{Name: "Al", Email: "al@example.com", Password: strings.Repeat("€", 25)}))
	if len(msgs) != 1 || msgs[0] != "password must be at most 72 bytes" {
		t.Fatalf("expected a byte-limit message, got %v", msgs)
	}
}
