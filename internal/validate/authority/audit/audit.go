// Package audit persists the outcome of every authority call an adapter
// makes, independent of the ValidationResult it produced, so operators can
// see authority flakiness over time rather than only per-request warnings.
//
// Grounded on internal/storage.PersistentKeyStore.logAudit's pattern:
// a single synchronous INSERT per event, best-effort in that a write
// failure is logged and never changes the validation result.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/metavalidate/internal/validate/authority"
)

// Record describes one authority call's outcome.
type Record struct {
	Authority  string
	Datatype   string
	Value      string
	Severity   authority.Severity
	DurationMS int64
	Error      string
}

// Store persists authority call Records to Postgres.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore returns a Store writing through db.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{db: db, logger: logger}
}

// Log inserts rec. Failures are logged at Warn and swallowed: audit
// persistence is a best-effort side channel, never a gate on the request
// path that produced rec.
func (s *Store) Log(ctx context.Context, rec Record) {
	const query = `
		INSERT INTO authority_call_audit (authority, datatype, value, severity, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Authority, rec.Datatype, rec.Value, severityLabel(rec.Severity), rec.DurationMS, rec.Error,
	)
	if err != nil {
		s.logger.Warn("failed to write authority audit record",
			slog.String("authority", rec.Authority),
			slog.String("error", err.Error()),
		)
	}
}

// Timed wraps an authority.Call invocation, logging its duration and
// outcome to s.Log while passing the call's results through unchanged.
func (s *Store) Timed(
	ctx context.Context,
	authorityName, datatype, value string,
	call func() (authority.Severity, error),
) (authority.Severity, error) {
	start := time.Now()
	severity, err := call()

	rec := Record{
		Authority:  authorityName,
		Datatype:   datatype,
		Value:      value,
		Severity:   severity,
		DurationMS: time.Since(start).Milliseconds(),
	}

	if err != nil {
		rec.Error = err.Error()
	}

	s.Log(ctx, rec)

	return severity, err
}

func severityLabel(sev authority.Severity) string {
	switch sev {
	case authority.SeverityInfo:
		return "info"
	case authority.SeverityError:
		return "error"
	case authority.SeverityWarn:
		return "warn"
	default:
		return fmt.Sprintf("unknown(%d)", int(sev))
	}
}
