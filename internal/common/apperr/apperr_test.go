package apperr

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(NotFound("vehicle %s not found", "v1")); got != KindNotFound {
		t.Fatalf("KindOf = %v, want KindNotFound", got)
	}
	// 包装一层后仍可识别
	wrapped := fmt.Errorf("outer: %w", InvalidTransition("no"))
	if got := KindOf(wrapped); got != KindInvalidTransition {
		t.Fatalf("KindOf(wrapped) = %v, want KindInvalidTransition", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("KindOf(plain) = %v, want KindUnknown", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Fatalf("KindOf(nil) = %v, want KindUnknown", got)
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := VehicleUnavailable("vehicle busy")
	if !errors.Is(err, &Error{Kind: KindVehicleUnavailable}) {
		t.Fatal("expected errors.Is to match on kind")
	}
	if errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Fatal("expected errors.Is to reject different kind")
	}
}

func TestConflictID(t *testing.T) {
	err := VehicleConflict("a-123", "vehicle %s already booked", "v1")
	if got := ConflictIDOf(err); got != "a-123" {
		t.Fatalf("ConflictIDOf = %q, want a-123", got)
	}
	if got := ConflictIDOf(Validation("nope")); got != "" {
		t.Fatalf("ConflictIDOf(validation) = %q, want empty", got)
	}
	if got := ConflictIDOf(nil); got != "" {
		t.Fatalf("ConflictIDOf(nil) = %q, want empty", got)
	}
}

func TestFromDB(t *testing.T) {
	if FromDB(nil, "x") != nil {
		t.Fatal("expected nil for nil cause")
	}
	if got := KindOf(FromDB(gorm.ErrRecordNotFound, "order %s not found", "o1")); got != KindNotFound {
		t.Fatalf("KindOf = %v, want KindNotFound", got)
	}
	cause := errors.New("connection reset")
	err := FromDB(cause, "failed to load order")
	if got := KindOf(err); got != KindTransaction {
		t.Fatalf("KindOf = %v, want KindTransaction", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be preserved")
	}
}

func TestTransitionWrapPreservesCause(t *testing.T) {
	cause := errors.New("deadlock")
	err := Transaction(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to reach cause")
	}
	if KindOf(err) != KindTransaction {
		t.Fatalf("KindOf = %v, want KindTransaction", KindOf(err))
	}
}
