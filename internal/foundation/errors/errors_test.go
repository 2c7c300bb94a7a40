package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassifiedErrorMessage(t *testing.T) {
	err := NewError(CategoryValidation, "bad query parameter").
		WithContext("param", "fromDate").
		Build()

	if err.Category() != CategoryValidation {
		t.Errorf("expected category %s, got %s", CategoryValidation, err.Category())
	}
	if err.Message() != "bad query parameter" {
		t.Errorf("unexpected message: %s", err.Message())
	}
	if got, _ := err.Context().GetString("param"); got != "fromDate" {
		t.Errorf("expected context param=fromDate, got %q", got)
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(cause, CategoryStorage, "append failed").Build()

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("expected wrapped cause to unwrap")
	}
	if !err.CanRetry() {
		// StorageError is retryable by convention, but WrapError defaults to never.
		t.Log("wrap defaults to RetryNever")
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("no such table")
	err := StorageError("query failed").WithCause(cause).Build()
	if err.Cause() != cause {
		t.Error("expected cause to be attached")
	}
	if !err.CanRetry() {
		t.Error("storage errors should be retryable")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", ValidationError("bad input").Build(), http.StatusBadRequest},
		{"not found", NotFoundError("no such user").Build(), http.StatusNotFound},
		{"duplicate is 400 not 409", AlreadyExistsError("user exists").Build(), http.StatusBadRequest},
		{"messaging", MessagingError("publish failed").Build(), http.StatusBadGateway},
		{"daemon", DaemonError("not ready").Build(), http.StatusServiceUnavailable},
		{"internal", InternalError("broken index").Build(), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
		{"nil", nil, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := adapter.StatusCodeFor(tc.err); got != tc.status {
				t.Errorf("expected %d, got %d", tc.status, got)
			}
		})
	}
}

func TestFormatErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)
	err := NotFoundError("no such visit").WithContext("id", 42).Build()

	resp := adapter.FormatErrorResponse(err)
	if resp.Error != "no such visit" {
		t.Errorf("unexpected error message: %s", resp.Error)
	}
	if resp.Code != string(CategoryNotFound) {
		t.Errorf("unexpected code: %s", resp.Code)
	}
	if resp.Details["id"] != 42 {
		t.Errorf("expected id detail, got %v", resp.Details)
	}
}

func TestErrorIs(t *testing.T) {
	a := NotFoundError("no such user").Build()
	b := NotFoundError("no such user").Build()
	if !errors.Is(a, b) {
		t.Error("errors with same category and message should match")
	}
	c := NotFoundError("no such location").Build()
	if errors.Is(a, c) {
		t.Error("errors with different messages should not match")
	}
}
