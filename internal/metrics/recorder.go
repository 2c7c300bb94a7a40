package metrics

import "time"

// Recorder defines observability hooks for the HTTP API and the dataset.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	IncHTTPRequest(method string, status int)
	ObserveRequestDuration(method string, d time.Duration)
	IncMutation(entity string, action string)
	SetEntityCount(entity string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncHTTPRequest(string, int)                   {}
func (NoopRecorder) ObserveRequestDuration(string, time.Duration) {}
func (NoopRecorder) IncMutation(string, string)                   {}
func (NoopRecorder) SetEntityCount(string, int)                   {}
