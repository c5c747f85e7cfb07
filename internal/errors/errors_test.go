package errors

import (
	"fmt"
	"testing"
)

func TestLineageError_Error(t *testing.T) {
	err := &LineageError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "run not found",
	}

	expected := "NOT_FOUND: run not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("repo_path is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "repo_path is required" {
		t.Errorf("Message = %q, want %q", err.Message, "repo_path is required")
	}
}

func TestNewPathNotAllowed(t *testing.T) {
	err := NewPathNotAllowed("/etc", "outside allowed directories")

	if err.Code != ErrPathNotAllowed {
		t.Errorf("Code = %q, want %q", err.Code, ErrPathNotAllowed)
	}
	if err.Status != 403 {
		t.Errorf("Status = %d, want 403", err.Status)
	}
	if err.Details["path"] != "/etc" {
		t.Errorf("Details[path] = %v, want %q", err.Details["path"], "/etc")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("run", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "run not found: 01ABC" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
}

func TestNewRepositoryUnavailable(t *testing.T) {
	err := NewRepositoryUnavailable("/tmp/repo", fmt.Errorf("not a git repository"))

	if err.Code != ErrRepositoryUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrRepositoryUnavailable)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Message != "repository unavailable: /tmp/repo (not a git repository)" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewUnsupportedEncoding(t *testing.T) {
	err := NewUnsupportedEncoding("legacy.txt")

	if err.Code != ErrUnsupportedEncoding {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnsupportedEncoding)
	}
	if err.Details["file"] != "legacy.txt" {
		t.Errorf("Details[file] = %v, want %q", err.Details["file"], "legacy.txt")
	}
}

func TestNewInvariantViolation(t *testing.T) {
	err := NewInvariantViolation("main.go", fmt.Errorf("origin length 3 != text length 4"))

	if err.Code != ErrInvariantViolation {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvariantViolation)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if err.Details["internal_error"] != "origin length 3 != text length 4" {
		t.Errorf("Details[internal_error] = %v", err.Details["internal_error"])
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		// Message should be generic (not leak internal details)
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("run", "test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("run", "test")
		if Is(err, ErrInternal) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-LineageError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-LineageError")
		}
	})

	t.Run("wrapped LineageError", func(t *testing.T) {
		inner := NewNotFound("run", "test")
		wrapped := fmt.Errorf("scores: %w", inner)
		if !Is(wrapped, ErrNotFound) {
			t.Error("Is() = false, want true for wrapped LineageError")
		}
		if lErr, ok := As(wrapped); !ok || lErr != inner {
			t.Errorf("As() = %v, %v, want inner error", lErr, ok)
		}
	})
}
