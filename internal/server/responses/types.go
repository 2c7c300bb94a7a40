// Package responses defines API response types used by the admin HTTP handlers.
package responses

import "time"

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// StatusResponse represents the daemon's operational status.
type StatusResponse struct {
	Status        string        `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	Uptime        float64       `json:"uptime"`
	ReferenceTime int64         `json:"reference_time"`
	Dataset       DatasetCounts `json:"dataset"`
}

// DatasetCounts reports the number of stored entities by kind.
type DatasetCounts struct {
	Users     int `json:"users"`
	Locations int `json:"locations"`
	Visits    int `json:"visits"`
}

// AuditResponse represents the mutation audit query response.
type AuditResponse struct {
	Status    string       `json:"status"`
	Count     int          `json:"count"`
	Events    []AuditEvent `json:"events"`
	Timestamp time.Time    `json:"timestamp"`
}

// AuditEvent represents a single recorded mutation.
type AuditEvent struct {
	ID         string    `json:"id"`
	Entity     string    `json:"entity"`
	EntityID   uint32    `json:"entity_id"`
	Action     string    `json:"action"`
	Payload    string    `json:"payload,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
