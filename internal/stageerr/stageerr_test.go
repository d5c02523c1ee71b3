package stageerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(HashMismatch, "receipt vs oracle", nil)
	if !strings.Contains(err.Error(), "[HASH_MISMATCH]") {
		t.Errorf("error = %s", err.Error())
	}

	wrapped := New(InputUnreadable, "read failed", fmt.Errorf("ENOENT"))
	if !strings.Contains(wrapped.Error(), "ENOENT") {
		t.Errorf("cause missing: %s", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := New(Internal, "wrapper", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is failed through StageError")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(Newf(SnapshotInvalid, "bad")) != SnapshotInvalid {
		t.Error("CodeOf lost the code")
	}
	if CodeOf(fmt.Errorf("plain")) != Internal {
		t.Error("plain errors must map to INTERNAL_ERROR")
	}
	// Wrapped StageError still resolves.
	wrapped := fmt.Errorf("outer: %w", Newf(JobCancelled, "stop"))
	if CodeOf(wrapped) != JobCancelled {
		t.Error("CodeOf failed through wrapping")
	}
}
