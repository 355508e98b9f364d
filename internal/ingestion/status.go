// Package ingestion provides the bibjson document generator and the field
// status derivation the engine's taxonomy (§7) implies: every field ends up
// "unvalidated", "passed", "passed with warnings", or "failed" depending on
// what its validation results contain.
//
// Status derivation replaces this package's earlier OpenLineage run-state
// machine (ValidateStateTransition et al.); the same "classify from an
// ordered event/result list, never panic, report a single terminal
// classification" shape carries over even though the domain changed.
package ingestion

import (
	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
)

// Status is a field's (or a whole FieldSet's) derived validation outcome.
type Status string

const (
	// StatusUnvalidated means no validator ran for the field at all.
	StatusUnvalidated Status = "unvalidated"

	// StatusPassed means at least one validation result exists and none
	// carries an error.
	StatusPassed Status = "passed"

	// StatusPassedWithWarnings means no result has an error, but at least
	// one carries a warning.
	StatusPassedWithWarnings Status = "passed_with_warnings"

	// StatusFailed means at least one result carries an error.
	StatusFailed Status = "failed"
)

// severity ranks statuses from best to worst so FieldSetStatus can reduce
// many field statuses to the single worst one.
var severity = map[Status]int{ //nolint:gochecknoglobals
	StatusUnvalidated:        0,
	StatusPassed:             1,
	StatusPassedWithWarnings: 2,
	StatusFailed:             3,
}

// FieldStatus derives the status of a single field from its ordered
// validation results, per §7's rule: any error makes it failed; no error
// but any warning makes it passed-with-warnings; results but no
// warning/error makes it passed; no results at all makes it unvalidated.
func FieldStatus(results []plugin.ValidationResult) Status {
	if len(results) == 0 {
		return StatusUnvalidated
	}

	hasWarn := false

	for _, r := range results {
		if r.Failed() {
			return StatusFailed
		}

		if len(r.Warn) > 0 {
			hasWarn = true
		}
	}

	if hasWarn {
		return StatusPassedWithWarnings
	}

	return StatusPassed
}

// FieldSetStatus derives a status per field of fs (keyed by field name) and
// the FieldSet's overall status: the worst status across all of its fields,
// or StatusUnvalidated for an empty FieldSet.
func FieldSetStatus(fs *fieldset.FieldSet) (perField map[string]Status, overall Status) {
	perField = make(map[string]Status, fs.Len())
	overall = StatusUnvalidated

	for _, name := range fs.Names() {
		f, _ := fs.Get(name)

		worst := StatusUnvalidated
		for _, v := range f.Values {
			s := FieldStatus(f.Validation[v])
			if severity[s] > severity[worst] {
				worst = s
			}
		}

		perField[name] = worst

		if severity[worst] > severity[overall] {
			overall = worst
		}
	}

	return perField, overall
}
