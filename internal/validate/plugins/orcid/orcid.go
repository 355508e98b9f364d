// Package orcid provides ORCID iD format validation and realism checking
// against the public ORCID API, grounded on the reference implementation's
// ORCID validator: a correctly-shaped but unhyphenated iD earns a
// correction rather than an error, and the checksum is verified locally
// before any network call.
package orcid

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/correlator-io/metavalidate/internal/validate/authority"
	"github.com/correlator-io/metavalidate/internal/validate/authority/audit"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "orcid"

// BaseURL is the public ORCID read API used to confirm an iD exists.
const BaseURL = "https://pub.orcid.org/v3.0/"

func init() {
	v := NewValidator(http.DefaultClient)
	registry.Default.RegisterValidator(registry.PluginName(pluginPackage, v), v)
}

var (
	hyphenated   = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	unhyphenated = regexp.MustCompile(`^\d{15}[\dX]$`)
)

// Validator checks ORCID iD syntax (the ISO 7064 mod 11-2 checksum) and,
// when well-formed, confirms the iD is registered via the public ORCID API.
type Validator struct {
	doer    authority.HTTPDoer
	baseURL string
}

// NewValidator returns a Validator querying ORCID through doer.
func NewValidator(doer authority.HTTPDoer) *Validator {
	return &Validator{doer: doer, baseURL: BaseURL}
}

// auditStore receives a Record for every ORCID call once set. nil until
// SetAuditStore is called, which main does after the database connection
// (and hence the audit table) is available.
var auditStore *audit.Store //nolint:gochecknoglobals

// SetAuditStore configures the audit sink subsequent Validate calls log
// their ORCID call outcomes to. Passing nil disables auditing.
func SetAuditStore(s *audit.Store) {
	auditStore = s
}

// Supports applies to the "orcid" datatype.
func (v *Validator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == "orcid"
}

// Validate checks checksum and hyphenation, then confirms realism against
// ORCID when the local checks pass.
func (v *Validator) Validate(ctx context.Context, _, value string, opts plugin.Options) plugin.ValidationResult {
	result := plugin.NewValidationResult()

	digits, wasHyphenated := normalize(value)
	if digits == "" {
		return result.WithError(fmt.Sprintf("%q is not a well-formed ORCID iD", value))
	}

	if !checksumValid(digits) {
		return result.WithError(fmt.Sprintf("%q fails the ORCID checksum", value))
	}

	canonical := fmt.Sprintf("%s-%s-%s-%s", digits[0:4], digits[4:8], digits[8:12], digits[12:16])

	if !wasHyphenated {
		result = result.WithWarn("ORCID iD is not hyphenated").WithCorrection(canonical)
	}

	req, err := http.NewRequest(http.MethodGet, v.baseURL+canonical, nil)
	if err != nil {
		return result.WithWarn("unable to build ORCID request")
	}

	req.Header.Set("Accept", "application/json")

	call := func() (authority.Severity, error) {
		_, sev, err := authority.Call(ctx, v.doer, req, opts.WithDefaults().HTTPTimeout)

		return sev, err
	}

	var severity authority.Severity

	var callErr error

	if auditStore != nil {
		severity, callErr = auditStore.Timed(ctx, "orcid", "orcid", canonical, call)
	} else {
		severity, callErr = call()
	}

	switch severity {
	case authority.SeverityError:
		return result.WithError(fmt.Sprintf("ORCID does not recognize iD %q", canonical))
	case authority.SeverityWarn:
		msg := "ORCID lookup failed"
		if callErr != nil {
			msg = callErr.Error()
		}

		return result.WithWarn(msg)
	default:
		return result.WithInfo("confirmed against ORCID")
	}
}

// normalize strips an optional hyphenation and reports the 16 checksum
// digits (last may be 'X') plus whether the input was already hyphenated.
func normalize(value string) (digits string, wasHyphenated bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "https://orcid.org/")
	value = strings.TrimPrefix(value, "http://orcid.org/")

	switch {
	case hyphenated.MatchString(value):
		return strings.ReplaceAll(value, "-", ""), true
	case unhyphenated.MatchString(value):
		return value, false
	default:
		return "", false
	}
}

// checksumValid applies the ISO 7064 mod 11-2 check ORCID specifies: each
// of the first 15 digits is doubled into a running total, then reduced mod
// 11; the result maps to the final check character ('X' = 10).
func checksumValid(digits string) bool {
	if len(digits) != 16 {
		return false
	}

	total := 0

	for i := 0; i < 15; i++ {
		n, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}

		total = (total + n) * 2
	}

	remainder := total % 11
	result := (12 - remainder) % 11

	last := strings.ToUpper(string(digits[15]))
	if result == 10 {
		return last == "X"
	}

	return last == strconv.Itoa(result)
}
