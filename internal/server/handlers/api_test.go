package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/model"
	"git.home.luguber.info/inful/travels/internal/store"
)

const testNow = 1500000000

type recordedMutation struct {
	entity string
	id     uint32
	action string
}

type captureSink struct {
	mutations []recordedMutation
}

func (c *captureSink) RecordMutation(_ context.Context, entity string, id uint32, action string, _ []byte) {
	c.mutations = append(c.mutations, recordedMutation{entity: entity, id: id, action: action})
}

func newTestAPI(t *testing.T) (*APIHandlers, *captureSink) {
	t.Helper()

	s := store.New(testNow)
	require.NoError(t, s.CreateUser(model.User{
		ID: 1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee",
		Gender: model.GenderFemale, BirthDate: 100,
	}))
	require.NoError(t, s.CreateUser(model.User{
		ID: 2, Email: "bob@example.com", FirstName: "Bob", LastName: "Ray",
		Gender: model.GenderMale, BirthDate: 200,
	}))
	require.NoError(t, s.CreateLocation(model.Location{
		ID: 10, Place: "Old Bridge", Country: "Latvia", City: "Riga", Distance: 5,
	}))
	require.NoError(t, s.CreateVisit(model.Visit{ID: 100, Location: 10, User: 1, VisitedAt: 1000, Mark: 3}))
	require.NoError(t, s.CreateVisit(model.Visit{ID: 101, Location: 10, User: 2, VisitedAt: 1500, Mark: 4}))
	require.NoError(t, s.CreateVisit(model.Visit{ID: 102, Location: 10, User: 1, VisitedAt: 2000, Mark: 1}))

	sink := &captureSink{}
	h := NewAPIHandlers(s, errors.NewHTTPErrorAdapter(slog.Default()), nil, sink, true)
	return h, sink
}

func doRequest(h *APIHandlers, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetUser(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doRequest(h, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"id":1,"email":"ann@example.com","first_name":"Ann","last_name":"Lee","gender":"f","birth_date":100}`,
		w.Body.String())
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t, strconv.Itoa(w.Body.Len()), w.Header().Get("Content-Length"))
}

func TestGetMissingEntityIs404(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/users/99", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/locations/99", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/visits/99", "").Code)
}

func TestNonNumericIDIs404(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/users/bad", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/users/-1", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodPost, "/users/bad", "{}").Code)
}

func TestUnknownEntityIs400(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/countries/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/users/1/avg", "").Code)
}

func TestUnsupportedMethodIs400(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodDelete, "/users/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPut, "/users/1", "{}").Code)
}

func TestCreateUser(t *testing.T) {
	h, sink := newTestAPI(t)

	body := `{"id":3,"email":"cid@example.com","first_name":"Cid","last_name":"Orr","gender":"m","birth_date":300}`
	w := doRequest(h, http.MethodPost, "/users/new", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{}", w.Body.String())
	assert.Equal(t, "close", w.Header().Get("Connection"))

	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/users/3", "").Code)
	require.Len(t, sink.mutations, 1)
	assert.Equal(t, recordedMutation{entity: "users", id: 3, action: "new"}, sink.mutations[0])
}

func TestCreateDuplicateIs400(t *testing.T) {
	h, sink := newTestAPI(t)

	body := `{"id":1,"email":"dup@example.com","first_name":"D","last_name":"U","gender":"m","birth_date":0}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/new", body).Code)
	assert.Empty(t, sink.mutations)
}

func TestCreateRequiresAllFields(t *testing.T) {
	h, _ := newTestAPI(t)

	body := `{"id":4,"email":"partial@example.com"}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/new", body).Code)

	// Explicit null is as bad as absent.
	body = `{"id":4,"email":null,"first_name":"X","last_name":"Y","gender":"m","birth_date":0}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/new", body).Code)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/new", "not json").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/new", "").Code)
}

func TestCreateVisitValidatesReferents(t *testing.T) {
	h, _ := newTestAPI(t)

	body := `{"id":200,"location":99,"user":1,"visited_at":0,"mark":2}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/visits/new", body).Code)

	body = `{"id":200,"location":10,"user":1,"visited_at":0,"mark":9}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/visits/new", body).Code)
}

func TestUpdateUser(t *testing.T) {
	h, sink := newTestAPI(t)

	w := doRequest(h, http.MethodPost, "/users/1", `{"email":"renamed@example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{}", w.Body.String())
	assert.Equal(t, "close", w.Header().Get("Connection"))

	got := doRequest(h, http.MethodGet, "/users/1", "")
	assert.Contains(t, got.Body.String(), "renamed@example.com")
	assert.Contains(t, got.Body.String(), "Ann") // untouched field

	require.Len(t, sink.mutations, 1)
	assert.Equal(t, recordedMutation{entity: "users", id: 1, action: "update"}, sink.mutations[0])
}

func TestUpdateUnknownID(t *testing.T) {
	h, sink := newTestAPI(t)

	// The body is decoded before the id is looked up, so a malformed body
	// wins over a missing target.
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/999", "not json").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/999", `{"email":null}`).Code)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodPost, "/users/999", `{"email":"x@y.z"}`).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodPost, "/visits/999", `{"mark":4}`).Code)
	assert.Empty(t, sink.mutations)
}

func TestUpdateNullFieldIs400(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/1", `{"email":null}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/1", `{"gender":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/users/1", `{"birth_date":"soon"}`).Code)
}

func TestUpdateVisitMovesListings(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doRequest(h, http.MethodPost, "/visits/100", `{"user":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := doRequest(h, http.MethodGet, "/users/2/visits", "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.JSONEq(t,
		`{"visits":[{"mark":3,"visited_at":1000,"place":"Old Bridge"},{"mark":4,"visited_at":1500,"place":"Old Bridge"}]}`,
		got.Body.String())
}

func TestUserVisits(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doRequest(h, http.MethodGet, "/users/1/visits", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"visits":[{"mark":3,"visited_at":1000,"place":"Old Bridge"},{"mark":1,"visited_at":2000,"place":"Old Bridge"}]}`,
		w.Body.String())
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
}

func TestUserVisitsFilters(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doRequest(h, http.MethodGet, "/users/1/visits?fromDate=1000&toDate=2000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"visits":[]}`, w.Body.String())

	w = doRequest(h, http.MethodGet, "/users/1/visits?country=Latvia", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Old Bridge")

	// '+' decodes to a space in country names.
	w = doRequest(h, http.MethodGet, "/users/1/visits?country=New+Zealand", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"visits":[]}`, w.Body.String())

	w = doRequest(h, http.MethodGet, "/users/1/visits?toDistance=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"visits":[]}`, w.Body.String())
}

func TestUserVisitsBadQueryIs400(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/users/1/visits?fromDate=tomorrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/users/1/visits?toDistance=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/users/1/visits?color=red", "").Code)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/users/99/visits", "").Code)
}

func TestLocationAvg(t *testing.T) {
	h, _ := newTestAPI(t)

	// Marks 3, 4, 1 average to 2.66667 after rounding.
	w := doRequest(h, http.MethodGet, "/locations/10/avg", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"avg":2.66667}`, w.Body.String())

	// Trailing zeros are padded out to five decimal places.
	w = doRequest(h, http.MethodGet, "/locations/10/avg?fromDate=999&toDate=1501", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"avg":3.50000}`, w.Body.String())
}

func TestLocationAvgFilters(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doRequest(h, http.MethodGet, "/locations/10/avg?gender=f", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"avg":2.00000}`, w.Body.String())

	// No qualifying visits: zero average.
	w = doRequest(h, http.MethodGet, "/locations/10/avg?fromDate=1000&toDate=1000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"avg":0}`, w.Body.String())
}

func TestLocationAvgBadQueryIs400(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/locations/10/avg?gender=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/locations/10/avg?fromAge=old", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/locations/10/avg?color=red", "").Code)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/locations/99/avg", "").Code)
}

func TestKeepAliveDisabled(t *testing.T) {
	s := store.New(testNow)
	require.NoError(t, s.CreateUser(model.User{
		ID: 1, Email: "a@b.c", FirstName: "A", LastName: "B",
		Gender: model.GenderMale, BirthDate: 0,
	}))
	h := NewAPIHandlers(s, errors.NewHTTPErrorAdapter(slog.Default()), nil, nil, false)

	w := doRequest(h, http.MethodGet, "/users/1", "")
	assert.Equal(t, "close", w.Header().Get("Connection"))
}
