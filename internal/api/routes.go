// Package api provides HTTP API server implementation for the metadata
// validation and cross-reference service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/correlator-io/metavalidate/internal/api/middleware"
	"github.com/correlator-io/metavalidate/internal/ingestion"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
	defaultModeltype   = "bibjson"
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /healthz", s.handleHealth},
		Route{"/", s.handleNotFound},
	)

	mux.HandleFunc("POST /v1/validate", s.handleValidate)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and rate limiting.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to readiness probes with storage backend health checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.apiKeyStore == nil { // pragma: allowlist secret
		s.logger.Warn("API key store not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)
		s.writePlainText(w, correlationID, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		s.writePlainText(w, correlationID, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writePlainText(w, correlationID, http.StatusOK, "ready")
}

func (s *Server) writePlainText(w http.ResponseWriter, correlationID string, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information. Delegates to the
// API key store's HealthCheck when one is configured, otherwise always
// reports healthy (degraded mode with authentication disabled).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	status := "healthy"

	if s.apiKeyStore != nil { // pragma: allowlist secret
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
			status = "degraded"
		}
	}

	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      status,
		ServiceName: "metavalidate",
		Version:     s.config.Version,
		Uptime:      uptime,
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("Failed to encode health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}

// handleValidate handles POST /v1/validate?modeltype=bibjson. The request
// body is handed to the registry's generator for modeltype, and every
// resulting FieldSet is run through the engine's Phase A/B/C pipeline
// before being projected back as JSON.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	modeltype := modeltypeParam(r.URL)

	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		WriteErrorResponse(w, r,
			s.logger, PayloadTooLarge(fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize)))

		return
	}

	body := io.LimitReader(r.Body, s.config.MaxRequestSize)

	fieldsets, err := s.engine.Generate(r.Context(), modeltype, body)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	response := ValidateResponse{
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		FieldSets:     make([]FieldSetResult, len(fieldsets)),
	}

	overallWorst := ingestion.StatusUnvalidated

	for i, fs := range fieldsets {
		s.engine.ValidateFieldSet(r.Context(), fs)

		perField, overall := ingestion.FieldSetStatus(fs)
		perFieldStrings := make(map[string]string, len(perField))

		for name, status := range perField {
			perFieldStrings[name] = string(status)
		}

		response.FieldSets[i] = FieldSetResult{
			Status:   string(overall),
			PerField: perFieldStrings,
			Fields:   fs,
		}

		if worseThan(overall, overallWorst) {
			overallWorst = overall
		}
	}

	response.Status = string(overallWorst)

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal validate response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write validate response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Info("Validate request processed",
		slog.String("correlation_id", correlationID),
		slog.String("modeltype", modeltype),
		slog.Int("fieldsets", len(fieldsets)),
		slog.String("status", response.Status),
		slog.Duration("duration", time.Since(startTime)),
	)
}

func modeltypeParam(u *url.URL) string {
	if mt := u.Query().Get("modeltype"); mt != "" {
		return mt
	}

	return defaultModeltype
}

// severityOrder ranks ingestion.Status for worseThan comparisons without
// importing the unexported ranking table in package ingestion.
var severityOrder = map[ingestion.Status]int{ //nolint:gochecknoglobals
	ingestion.StatusUnvalidated:        0,
	ingestion.StatusPassed:             1,
	ingestion.StatusPassedWithWarnings: 2,
	ingestion.StatusFailed:             3,
}

func worseThan(a, b ingestion.Status) bool {
	return severityOrder[a] > severityOrder[b]
}
