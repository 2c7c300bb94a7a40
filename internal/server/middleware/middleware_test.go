package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
)

type countingRecorder struct {
	requests  int
	durations int
}

func (c *countingRecorder) IncHTTPRequest(string, int)                   { c.requests++ }
func (c *countingRecorder) ObserveRequestDuration(string, time.Duration) { c.durations++ }
func (c *countingRecorder) IncMutation(string, string)                   {}
func (c *countingRecorder) SetEntityCount(string, int)                   {}

func TestChainAssignsRequestID(t *testing.T) {
	rec := &countingRecorder{}
	chain := Chain(slog.Default(), errors.NewHTTPErrorAdapter(nil), rec)

	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/1", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, 1, rec.requests)
	assert.Equal(t, 1, rec.durations)
}

func TestChainKeepsCallerRequestID(t *testing.T) {
	chain := Chain(slog.Default(), errors.NewHTTPErrorAdapter(nil), nil)

	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestChainRecoversPanics(t *testing.T) {
	chain := Chain(slog.Default(), errors.NewHTTPErrorAdapter(nil), nil)

	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
