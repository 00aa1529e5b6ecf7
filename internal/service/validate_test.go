package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/sakif/maxed-cv/internal/apperror"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "plain address", email: "bob@x.com"},
		{name: "plus tag", email: "bob+cv@x.com"},
		{name: "mixed case kept", email: "Bob@X.com"},
		{name: "empty", email: "", wantErr: true},
		{name: "no at sign", email: "bob.x.com", wantErr: true},
		{name: "display name form", email: "Bob <bob@x.com>", wantErr: true},
		{name: "too long", email: strings.Repeat("a", 250) + "@x.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("error should wrap ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "minimum length", password: "12345678"},
		{name: "exactly 72 bytes", password: strings.Repeat("a", 72)},
		{name: "empty", password: "", wantErr: true},
		{name: "too short", password: "1234567", wantErr: true},
		{name: "73 bytes", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validatePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	got, err := validateName("firstName", "  Ada  ")
	if err != nil {
		t.Fatalf("validateName() error = %v", err)
	}
	if got != "Ada" {
		t.Errorf("validateName() = %q, want %q", got, "Ada")
	}

	if _, err := validateName("firstName", strings.Repeat("x", MaxNameLength+1)); err == nil {
		t.Error("expected error for long name")
	}
}

func TestNormalizeEmailKeepsCase(t *testing.T) {
	if got := normalizeEmail("  Bob@X.com \n"); got != "Bob@X.com" {
		t.Errorf("normalizeEmail() = %q, want %q", got, "Bob@X.com")
	}
}
