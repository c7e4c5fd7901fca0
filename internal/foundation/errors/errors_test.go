package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryState, "state file is corrupt").
			WithSeverity(SeverityFatal).
			WithContext("path", "/var/lib/wg-federation/state.yaml").
			Build()

		if err.Category() != CategoryState {
			t.Errorf("expected category %s, got %s", CategoryState, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "state file is corrupt" {
			t.Errorf("unexpected message %q", err.Message())
		}

		path, exists := err.Context().GetString("path")
		if !exists || path != "/var/lib/wg-federation/state.yaml" {
			t.Errorf("expected context path, got %v", path)
		}
	})

	t.Run("Error detection through wrapping", func(t *testing.T) {
		err := fmt.Errorf("bootstrap: %w", ConfigError("bad config").Build())

		if !IsClassified(err) {
			t.Error("expected wrapped error to be classified")
		}
		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to map to internal")
		}
	})

	t.Run("Sentinel matching survives context", func(t *testing.T) {
		sentinel := NotFoundError("state not bootstrapped").Build()
		withCtx := sentinel.WithContext("path", "/tmp/state.yaml")

		if !errors.Is(withCtx, sentinel) {
			t.Error("expected errors.Is to match sentinel after WithContext")
		}
		if _, ok := sentinel.Context().Get("path"); ok {
			t.Error("WithContext must not mutate the sentinel")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := WrapError(originalErr, CategoryNetwork, "nats publish failed").
		Warning().
		Retryable().
		WithContext("subject", "wgf.events.STATE_UPDATED").
		Build()

	if err.Severity() != SeverityWarning {
		t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
	}
	if err.RetryStrategy() != RetryBackoff {
		t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
	}
	if !errors.Is(err, originalErr) {
		t.Error("expected error to wrap original error")
	}
	if !err.CanRetry() {
		t.Error("expected backoff error to be retryable")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
		retry    RetryStrategy
	}{
		{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryUserAction},
		{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal, RetryNever},
		{"NotFoundError", NotFoundError("test"), CategoryNotFound, SeverityError, RetryUserAction},
		{"AlreadyExistsError", AlreadyExistsError("test"), CategoryAlreadyExists, SeverityError, RetryUserAction},
		{"StateError", StateError("test"), CategoryState, SeverityFatal, RetryNever},
		{"LockError", LockError("test"), CategoryLock, SeverityError, RetryBackoff},
		{"CryptoError", CryptoError("test"), CategoryCrypto, SeverityFatal, RetryNever},
		{"FileSystemError", FileSystemError("test"), CategoryFileSystem, SeverityError, RetryBackoff},
		{"EventStoreError", EventStoreError("test"), CategoryEventStore, SeverityError, RetryNever},
		{"NetworkError", NetworkError("test"), CategoryNetwork, SeverityError, RetryBackoff},
		{"DaemonError", DaemonError("test"), CategoryDaemon, SeverityFatal, RetryNever},
		{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			if err.Category() != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category())
			}
			if err.Severity() != tt.severity {
				t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
			}
			if err.RetryStrategy() != tt.retry {
				t.Errorf("expected retry %s, got %s", tt.retry, err.RetryStrategy())
			}
		})
	}
}

func TestClassifiedError_WithContextCopies(t *testing.T) {
	base := StateError("state invalid").WithContext("path", "/a").Build()
	derived := base.WithContext("path", "/b")

	if v, _ := base.Context().GetString("path"); v != "/a" {
		t.Errorf("WithContext must not mutate the receiver, got %q", v)
	}
	if v, _ := derived.Context().GetString("path"); v != "/b" {
		t.Errorf("expected derived path /b, got %q", v)
	}
	if !errors.Is(derived, base) {
		t.Error("derived error should still match its sentinel")
	}
}
