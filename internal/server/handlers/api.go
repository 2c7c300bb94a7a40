// Package handlers implements the HTTP handler modules for the travels servers.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/logfields"
	"git.home.luguber.info/inful/travels/internal/metrics"
	"git.home.luguber.info/inful/travels/internal/model"
	"git.home.luguber.info/inful/travels/internal/store"
)

// MutationSink receives every applied mutation. Implementations persist or
// forward events; failures there must not fail the request.
type MutationSink interface {
	RecordMutation(ctx context.Context, entity string, entityID uint32, action string, body []byte)
}

// NoopSink discards mutations.
type NoopSink struct{}

func (NoopSink) RecordMutation(context.Context, string, uint32, string, []byte) {}

// APIHandlers serves the entity API. Routing is done by hand: the wire
// contract demands 400 for unknown methods and entities where a router
// would answer 405, and 404 for non-numeric ids.
type APIHandlers struct {
	store     *store.Store
	adapter   *errors.HTTPErrorAdapter
	recorder  metrics.Recorder
	sink      MutationSink
	logger    *slog.Logger
	keepAlive bool
}

// NewAPIHandlers constructs the entity API handler module.
func NewAPIHandlers(st *store.Store, adapter *errors.HTTPErrorAdapter, recorder metrics.Recorder, sink MutationSink, keepAlive bool) *APIHandlers {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if sink == nil {
		sink = NoopSink{}
	}
	return &APIHandlers{
		store:     st,
		adapter:   adapter,
		recorder:  recorder,
		sink:      sink,
		logger:    slog.Default(),
		keepAlive: keepAlive,
	}
}

var emptyObject = []byte("{}")

func (h *APIHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.writeError(w, r, errors.ValidationError("unsupported method").
			WithContext("method", r.Method).Build())
		return
	}

	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(segs) == 2:
		h.handleEntity(w, r, segs[0], segs[1])
	case len(segs) == 3 && r.Method == http.MethodGet:
		h.handleQuery(w, r, segs[0], segs[1], segs[2])
	default:
		h.writeError(w, r, errors.ValidationError("unknown route").
			WithContext("path", r.URL.Path).Build())
	}
}

// handleEntity serves GET /{entity}/{id}, POST /{entity}/new, and
// POST /{entity}/{id}.
func (h *APIHandlers) handleEntity(w http.ResponseWriter, r *http.Request, entity, tail string) {
	if entity != "users" && entity != "locations" && entity != "visits" {
		h.writeError(w, r, errors.ValidationError("unknown entity").
			WithContext("entity", entity).Build())
		return
	}

	if r.Method == http.MethodPost && tail == "new" {
		h.handleCreate(w, r, entity)
		return
	}

	id, err := parseID(tail)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		h.handleGet(w, r, entity, id)
		return
	}
	h.handleUpdate(w, r, entity, id)
}

func (h *APIHandlers) handleGet(w http.ResponseWriter, r *http.Request, entity string, id uint32) {
	var (
		body any
		err  error
	)
	switch entity {
	case "users":
		body, err = h.store.User(model.UserID(id))
	case "locations":
		body, err = h.store.Location(model.LocationID(id))
	case "visits":
		body, err = h.store.Visit(model.VisitID(id))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONValue(w, r, body)
}

func (h *APIHandlers) handleCreate(w http.ResponseWriter, r *http.Request, entity string) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, errors.ValidationError("could not read request body").WithCause(err).Build())
		return
	}

	var id uint32
	switch entity {
	case "users":
		var c model.UserCreate
		u, derr := decodeCreate(raw, &c, model.UserCreate.User)
		if derr != nil {
			h.writeError(w, r, derr)
			return
		}
		id = uint32(u.ID)
		err = h.store.CreateUser(u)
	case "locations":
		var c model.LocationCreate
		l, derr := decodeCreate(raw, &c, model.LocationCreate.Location)
		if derr != nil {
			h.writeError(w, r, derr)
			return
		}
		id = uint32(l.ID)
		err = h.store.CreateLocation(l)
	case "visits":
		var c model.VisitCreate
		v, derr := decodeCreate(raw, &c, model.VisitCreate.Visit)
		if derr != nil {
			h.writeError(w, r, derr)
			return
		}
		id = uint32(v.ID)
		err = h.store.CreateVisit(v)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.recordMutation(r.Context(), entity, id, "new", raw)
	h.writeBody(w, r, http.StatusOK, emptyObject)
}

func (h *APIHandlers) handleUpdate(w http.ResponseWriter, r *http.Request, entity string, id uint32) {
	// The body is decoded before the id is looked up: a malformed update
	// body is 400 even when the target does not exist.
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, errors.ValidationError("could not read request body").WithCause(err).Build())
		return
	}

	switch entity {
	case "users":
		var upd model.UserUpdate
		if err = decodeUpdate(raw, &upd); err == nil {
			err = h.store.UpdateUser(model.UserID(id), upd)
		}
	case "locations":
		var upd model.LocationUpdate
		if err = decodeUpdate(raw, &upd); err == nil {
			err = h.store.UpdateLocation(model.LocationID(id), upd)
		}
	case "visits":
		var upd model.VisitUpdate
		if err = decodeUpdate(raw, &upd); err == nil {
			err = h.store.UpdateVisit(model.VisitID(id), upd)
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.recordMutation(r.Context(), entity, id, "update", raw)
	h.writeBody(w, r, http.StatusOK, emptyObject)
}

// handleQuery serves GET /users/{id}/visits and GET /locations/{id}/avg.
func (h *APIHandlers) handleQuery(w http.ResponseWriter, r *http.Request, entity, rawID, op string) {
	switch {
	case entity == "users" && op == "visits":
		id, err := parseID(rawID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter, err := parseVisitFilter(r.URL.RawQuery)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items, err := h.store.UserVisits(model.UserID(id), filter)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if items == nil {
			items = []store.VisitItem{}
		}
		h.writeJSONValue(w, r, struct {
			Visits []store.VisitItem `json:"visits"`
		}{Visits: items})

	case entity == "locations" && op == "avg":
		id, err := parseID(rawID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter, err := parseAvgFilter(r.URL.RawQuery)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		avg, count, err := h.store.LocationAvg(model.LocationID(id), filter)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeBody(w, r, http.StatusOK, avgBody(avg, count))

	default:
		h.writeError(w, r, errors.ValidationError("unknown route").
			WithContext("path", r.URL.Path).Build())
	}
}

func (h *APIHandlers) recordMutation(ctx context.Context, entity string, id uint32, action string, body []byte) {
	h.recorder.IncMutation(entity, action)
	h.sink.RecordMutation(ctx, entity, id, action, body)
	h.logger.Debug("Applied mutation",
		logfields.Entity(entity),
		logfields.EntityID(id),
		logfields.Action(action))
}

// parseID parses a path id. Non-numeric ids are 404, not 400.
func parseID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.NotFoundError("malformed id").WithContext("id", raw).Build()
	}
	return uint32(id), nil
}

// avgBody renders the average with exactly five decimal places. Zero
// qualifying visits produce the literal {"avg":0}.
func avgBody(avg float64, count int64) []byte {
	if count == 0 {
		return []byte(`{"avg":0}`)
	}
	return []byte(`{"avg":` + strconv.FormatFloat(avg, 'f', 5, 64) + `}`)
}

// decodeCreate unmarshals a create body and builds the entity, mapping
// every failure to a validation error.
func decodeCreate[C any, E any](raw []byte, c *C, build func(C) (E, error)) (E, error) {
	var zero E
	if err := json.Unmarshal(raw, c); err != nil {
		return zero, errors.ValidationError("malformed create body").WithCause(err).Build()
	}
	e, err := build(*c)
	if err != nil {
		return zero, errors.ValidationError("invalid create body").WithCause(err).Build()
	}
	return e, nil
}

// decodeUpdate unmarshals an update body. Explicit nulls and type
// mismatches are validation errors.
func decodeUpdate(raw []byte, upd any) error {
	if err := json.Unmarshal(raw, upd); err != nil {
		return errors.ValidationError("malformed update body").WithCause(err).Build()
	}
	return nil
}

// connectionHeader applies the keep-alive policy: POST responses always
// close, GET responses keep the connection when configured to.
func (h *APIHandlers) connectionHeader(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost || !h.keepAlive {
		w.Header().Set("Connection", "close")
		return
	}
	w.Header().Set("Connection", "keep-alive")
}

func (h *APIHandlers) writeJSONValue(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.writeError(w, r, errors.InternalError("could not encode response").WithCause(err).Build())
		return
	}
	h.writeBody(w, r, http.StatusOK, body)
}

func (h *APIHandlers) writeBody(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	h.connectionHeader(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.connectionHeader(w, r)
	h.adapter.WriteErrorResponse(w, r, err)
}
