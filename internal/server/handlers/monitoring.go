package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/travels/internal/audit"
	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/server/responses"
	"git.home.luguber.info/inful/travels/internal/version"
)

// DaemonInterface defines the daemon methods needed by monitoring handlers.
type DaemonInterface interface {
	GetStatus() string
	GetStartTime() time.Time
	DatasetCounts() (users, locations, visits int)
	ReferenceTime() int64
}

// AuditReader is the audit query surface the admin API exposes.
type AuditReader interface {
	ByEntity(ctx context.Context, entity string, limit int) ([]audit.Event, error)
	Range(ctx context.Context, start, end time.Time) ([]audit.Event, error)
}

// MonitoringHandlers contains monitoring-related HTTP handlers served on
// the admin port.
type MonitoringHandlers struct {
	daemon       DaemonInterface
	auditReader  AuditReader
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a new monitoring handlers instance. The
// audit reader may be nil when auditing is disabled.
func NewMonitoringHandlers(daemon DaemonInterface, auditReader AuditReader) *MonitoringHandlers {
	return &MonitoringHandlers{
		daemon:       daemon,
		auditReader:  auditReader,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.daemon.GetStartTime()).Seconds(),
	}

	if err := writeJSONPretty(w, http.StatusOK, health); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write health response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleStatus handles the daemon status endpoint.
func (h *MonitoringHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	users, locations, visits := h.daemon.DatasetCounts()
	status := &responses.StatusResponse{
		Status:        h.daemon.GetStatus(),
		StartTime:     h.daemon.GetStartTime().UTC(),
		Uptime:        time.Since(h.daemon.GetStartTime()).Seconds(),
		ReferenceTime: h.daemon.ReferenceTime(),
		Dataset: responses.DatasetCounts{
			Users:     users,
			Locations: locations,
			Visits:    visits,
		},
	}

	if err := writeJSONPretty(w, http.StatusOK, status); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write status response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleAudit handles the mutation audit query endpoint. Optional query
// parameters: entity (users|locations|visits) and limit, or from/to Unix
// seconds for a time-range query.
func (h *MonitoringHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	if h.auditReader == nil {
		err := errors.ValidationError("audit store is not configured").Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	q := r.URL.Query()

	var (
		events []audit.Event
		err    error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		start := time.Unix(0, 0)
		end := time.Now()
		if raw := q.Get("from"); raw != "" {
			sec, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				verr := errors.ValidationError("invalid from timestamp").WithContext("from", raw).Build()
				h.errorAdapter.WriteErrorResponse(w, r, verr)
				return
			}
			start = time.Unix(sec, 0)
		}
		if raw := q.Get("to"); raw != "" {
			sec, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				verr := errors.ValidationError("invalid to timestamp").WithContext("to", raw).Build()
				h.errorAdapter.WriteErrorResponse(w, r, verr)
				return
			}
			end = time.Unix(sec, 0)
		}
		events, err = h.auditReader.Range(r.Context(), start, end)
	} else {
		limit := 50
		if raw := q.Get("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n <= 0 {
				verr := errors.ValidationError("invalid limit").WithContext("limit", raw).Build()
				h.errorAdapter.WriteErrorResponse(w, r, verr)
				return
			}
			limit = n
		}
		events, err = h.auditReader.ByEntity(r.Context(), q.Get("entity"), limit)
	}
	if err != nil {
		storageErr := errors.StorageError("failed to query audit store").WithCause(err).Build()
		h.errorAdapter.WriteErrorResponse(w, r, storageErr)
		return
	}

	resp := &responses.AuditResponse{
		Status:    "ok",
		Count:     len(events),
		Events:    make([]responses.AuditEvent, 0, len(events)),
		Timestamp: time.Now().UTC(),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, responses.AuditEvent{
			ID:         e.ID,
			Entity:     e.Entity,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Payload:    string(e.Payload),
			RecordedAt: e.RecordedAt.UTC(),
		})
	}

	if err := writeJSONPretty(w, http.StatusOK, resp); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write audit response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

func writeJSONPretty(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
