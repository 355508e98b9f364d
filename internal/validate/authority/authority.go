// Package authority implements the authority-adapter pattern: validators
// that confirm a value against a remote authority (a DOI resolver, a handle
// server, PubMed Entrez) and, on success, attach a DataWrapper projecting
// the authority's native response onto the engine's semantic datatypes.
//
// Every adapter takes an HTTPDoer rather than constructing its own
// *http.Client, so tests can inject a fake transport without a live
// network call.
package authority

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDoer is the minimal surface authority adapters depend on. *http.Client
// satisfies it as-is; tests substitute a stub.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Severity classifies how an authority response (or its absence) should be
// reflected on a ValidationResult, per §4.5: 2xx -> info + wrapper, 4xx ->
// error no wrapper, 5xx -> warn no wrapper, timeout/transport error -> warn
// no wrapper.
type Severity int

const (
	// SeverityInfo marks a successful, parseable 2xx response.
	SeverityInfo Severity = iota
	// SeverityWarn marks a 5xx response, a timeout, or any other transport
	// failure — the authority may simply be unreachable right now.
	SeverityWarn
	// SeverityError marks an explicit 4xx denial from a "does this exist?"
	// endpoint.
	SeverityError
)

// ErrAuthorityTimeout is returned by Call when ctx's deadline (or the
// caller-supplied timeout) elapses before the authority responds.
var ErrAuthorityTimeout = errors.New("authority request timed out")

// Call issues req against doer with a hard per-call deadline, and classifies
// the outcome per §4.5. The returned *http.Response is non-nil only when
// severity is SeverityInfo; its body has already been drained into memory
// so it remains readable after Call's deadline context is cancelled, and
// callers must still close it.
func Call(ctx context.Context, doer HTTPDoer, req *http.Request, timeout time.Duration) (*http.Response, Severity, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := doer.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, SeverityWarn, ErrAuthorityTimeout
		}

		return nil, SeverityWarn, fmt.Errorf("authority request failed: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			return nil, SeverityWarn, fmt.Errorf("authority response body unreadable: %w", readErr)
		}

		resp.Body = io.NopCloser(bytes.NewReader(body))

		return resp, SeverityInfo, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		_ = resp.Body.Close()
		return nil, SeverityError, fmt.Errorf("authority denied lookup: status %d", resp.StatusCode)
	default:
		_ = resp.Body.Close()
		return nil, SeverityWarn, fmt.Errorf("authority unavailable: status %d", resp.StatusCode)
	}
}
