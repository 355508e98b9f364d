// Package api provides HTTP API server implementation for the metadata
// validation and cross-reference service.
package api

import "net/http"

// HealthStatus represents the health check response structure.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

// ValidateResponse is the JSON projection of the FieldSets the engine
// produced and cross-referenced, one entry per FieldSet the generator
// emitted for the submitted document.
type ValidateResponse struct {
	CorrelationID string           `json:"correlation_id"` //nolint: tagliatelle
	Timestamp     string           `json:"timestamp"`
	Status        string           `json:"status"`
	FieldSets     []FieldSetResult `json:"fieldsets"`
}

// FieldSetResult pairs one generated FieldSet's validated contents with
// its derived per-field and overall status.
type FieldSetResult struct {
	Status   string          `json:"status"`
	PerField map[string]string `json:"per_field_status"` //nolint: tagliatelle
	Fields   interface{}     `json:"fields"`
}

// Route represents an HTTP route configuration with a path and handler.
// Used for declarative route registration with middleware bypass support.
type Route struct {
	Path    string
	Handler http.HandlerFunc
}
