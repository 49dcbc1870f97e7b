package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestSkillID(t *testing.T) {
	a := SkillID("Next.js")
	if a != SkillID("  next.JS ") {
		t.Errorf("Expected case and space insensitive ids")
	}
	if a == SkillID("Go") {
		t.Errorf("Expected distinct ids for distinct skills")
	}
	if len(a) != 36 {
		t.Errorf("Expected a UUID, got %q", a)
	}
}

func TestLongestToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Show me Next.js projects", "projects"},
		{"go cli-tools", "cli-tools"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := longestToken(tt.in); got != tt.want {
			t.Errorf("longestToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNotFound(t *testing.T) {
	if !errors.Is(notFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("Expected ErrNoRows to map to ErrNotFound")
	}
	other := errors.New("boom")
	if notFound(other) != other {
		t.Error("Expected other errors to pass through")
	}
	if notFound(nil) != nil {
		t.Error("Expected nil to stay nil")
	}
}

func TestMigrateRejectsInvalidDim(t *testing.T) {
	s := &Store{}
	if err := s.Migrate(context.Background(), 0); err == nil {
		t.Error("Expected error for zero dimension")
	}
}
