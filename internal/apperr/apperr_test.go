package apperr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func Test_Validation_IsClassified(t *testing.T) {
	t.Parallel()
	err := Validation("tenant id is required")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "tenant id is required") {
		t.Errorf("message lost: %q", err.Error())
	}
	if IsRetryable(err) {
		t.Error("validation errors must not be retryable")
	}
}

func Test_Dependency_KeepsCause(t *testing.T) {
	t.Parallel()
	err := Dependency("qdrant upsert", context.DeadlineExceeded)
	if !errors.Is(err, ErrDependency) {
		t.Errorf("expected ErrDependency, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause not reachable: %v", err)
	}
	if !IsRetryable(err) {
		t.Error("dependency errors should be retryable")
	}
}

func Test_Dependency_DoesNotReclassify(t *testing.T) {
	t.Parallel()
	err := Dependency("extract", Validation("unsupported type"))
	if errors.Is(err, ErrDependency) {
		t.Errorf("validation error was reclassified as dependency: %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func Test_Dependency_Nil(t *testing.T) {
	t.Parallel()
	if err := Dependency("noop", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func Test_NotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("file %q", "faq.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), `"faq.pdf"`) {
		t.Errorf("message lost: %q", err.Error())
	}
}

func Test_Permanent_IsDependencyButNotRetryable(t *testing.T) {
	t.Parallel()
	err := Dependency("rag: embed", Permanent("openai embedder: HTTP %d: %s", 401, "bad key"))
	if !errors.Is(err, ErrDependency) || !errors.Is(err, ErrPermanent) {
		t.Fatalf("want dependency and permanent, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("permanent failures must not be retryable")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("message lost: %q", err.Error())
	}
}
