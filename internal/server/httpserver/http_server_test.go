package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/travels/internal/config"
	"git.home.luguber.info/inful/travels/internal/model"
	"git.home.luguber.info/inful/travels/internal/store"
)

type staticDaemon struct {
	start time.Time
	st    *store.Store
}

func (d *staticDaemon) GetStatus() string       { return "running" }
func (d *staticDaemon) GetStartTime() time.Time { return d.start }
func (d *staticDaemon) DatasetCounts() (int, int, int) {
	return d.st.Counts()
}
func (d *staticDaemon) ReferenceTime() int64 { return d.st.ReferenceTime() }

func startTestServer(t *testing.T) *Server {
	t.Helper()

	st := store.New(1500000000)
	require.NoError(t, st.CreateUser(model.User{
		ID: 1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee",
		Gender: model.GenderFemale, BirthDate: 100,
	}))

	cfg := config.Default()
	cfg.Bind = "127.0.0.1:0"
	cfg.AdminPort = 0

	srv := New(cfg, Options{
		Store:  st,
		Daemon: &staticDaemon{start: time.Now(), st: st},
	})

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	})
	return srv
}

func get(t *testing.T, addr, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerServesAPIAndAdmin(t *testing.T) {
	srv := startTestServer(t)

	code, body := get(t, srv.APIAddr(), "/users/1")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ann@example.com")

	code, _ = get(t, srv.APIAddr(), "/users/99")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get(t, srv.AdminAddr(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "healthy")

	code, body = get(t, srv.AdminAddr(), "/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"users": 1`)

	code, _ = get(t, srv.AdminAddr(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestServerStopIsIdempotentPerContext(t *testing.T) {
	srv := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
