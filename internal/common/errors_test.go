package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestInvalid_MatchesValidation(t *testing.T) {
	err := Invalid("username already exists")
	if !errors.Is(err, ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
	if err.Error() != "username already exists" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("register: %w", err)
	if !errors.Is(wrapped, ErrorValidation) {
		t.Fatalf("wrapped error lost its kind")
	}
}
