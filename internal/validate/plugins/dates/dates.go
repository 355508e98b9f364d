// Package dates provides the date-format validator and date-similarity
// comparator, grounded on the reference implementation's DateValidator and
// DatesSimilar: format validation accepts anything a permissive parser can
// make sense of, and similarity tries every combination of (day-first,
// year-first) field ordering on both sides, succeeding if any parse of one
// side equals any parse of the other.
//
// No date-parsing library appears anywhere in the retrieval pack with
// usage code to ground an API against (one manifest-only go.mod references
// markusmobius/go-dateparser, but no call site), so this package parses
// dates against a fixed set of numeric-date layouts using the standard
// library's time.Parse, manually permuting field order for the ambiguous
// cases rather than depending on an unverified third-party API.
package dates

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "dates"

func init() {
	registry.Default.RegisterValidator(registry.PluginName(pluginPackage, &DateValidator{}), &DateValidator{})
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &DatesSimilar{}), &DatesSimilar{})
}

// DateValidator checks that a value parses as a date under at least one
// field ordering.
type DateValidator struct{}

// Supports applies to the "date" datatype.
func (DateValidator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == "date"
}

// Validate reports success if value parses under any (dayfirst, yearfirst)
// combination, failure with an error otherwise.
func (DateValidator) Validate(_ context.Context, _, value string, _ plugin.Options) plugin.ValidationResult {
	result := plugin.NewValidationResult()

	if len(parseAll(value)) == 0 {
		return result.WithError(fmt.Sprintf("%q does not parse as a date", value))
	}

	return result.WithInfo("value parses as a date")
}

// ordering enumerates the four field-order assumptions §4.1 requires the
// comparator to try.
type ordering struct {
	dayFirst  bool
	yearFirst bool
}

var orderings = []ordering{ //nolint:gochecknoglobals
	{dayFirst: false, yearFirst: false},
	{dayFirst: true, yearFirst: false},
	{dayFirst: false, yearFirst: true},
	{dayFirst: true, yearFirst: true},
}

// parseAll returns the distinct calendar dates value could plausibly
// represent across all four field orderings. A value that never parses
// returns an empty, non-nil slice.
func parseAll(value string) []time.Time {
	fields := splitDateFields(value)
	if fields == nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
			return []time.Time{t.UTC().Truncate(24 * time.Hour)}
		}

		return []time.Time{}
	}

	seen := map[time.Time]bool{}
	out := make([]time.Time, 0, len(orderings))

	for _, ord := range orderings {
		t, ok := assemble(fields, ord)
		if !ok {
			continue
		}

		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	return out
}

// splitDateFields splits a "numeric-numeric-numeric" date string (accepting
// '-', '/', or '.' as separators) into its three integer fields in the
// order they appeared. Returns nil when value isn't a 3-field numeric date.
func splitDateFields(value string) []int {
	value = strings.TrimSpace(value)

	var sep byte

	switch {
	case strings.Contains(value, "-"):
		sep = '-'
	case strings.Contains(value, "/"):
		sep = '/'
	case strings.Contains(value, "."):
		sep = '.'
	default:
		return nil
	}

	parts := strings.Split(value, string(sep))
	if len(parts) != 3 {
		return nil
	}

	fields := make([]int, 3)

	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil
		}

		fields[i] = n
	}

	return fields
}

// assemble interprets the three raw fields as year/month/day according to
// ord, returning ok=false when the resulting calendar date is invalid
// (e.g. month 13).
func assemble(fields []int, ord ordering) (time.Time, bool) {
	year, month, day := interpretFields(fields, ord)

	if year < 100 {
		year += 2000
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false // e.g. day 31 in a 30-day month
	}

	return t, true
}

// interpretFields maps the ISO-ordered triplet [f0, f1, f2] to
// (year, month, day) under the given field-order assumption. ISO order
// (yearFirst, not dayFirst) is f0=year, f1=month, f2=day; otherwise the
// first field is day or month depending on dayFirst, and the last field is
// year unless yearFirst was already claimed by the first field.
func interpretFields(fields []int, ord ordering) (year, month, day int) {
	f0, f1, f2 := fields[0], fields[1], fields[2]

	switch {
	case ord.yearFirst:
		return f0, pick(ord.dayFirst, f1, f2), pick(ord.dayFirst, f2, f1)
	default:
		return f2, pick(ord.dayFirst, f0, f1), pick(ord.dayFirst, f1, f0)
	}
}

func pick(cond bool, ifFalse, ifTrue int) int {
	if cond {
		return ifTrue
	}

	return ifFalse
}

// DatesSimilar succeeds when any parse of original equals any parse of
// comparison, under crossref-datatype "issued" or "date".
type DatesSimilar struct{}

// Supports applies to date-bearing crossref datatypes.
func (DatesSimilar) Supports(crossref string, _ plugin.Options) bool {
	return crossref == "issued" || crossref == "date"
}

// Compare tries every (dayfirst, yearfirst) combination on both sides;
// success iff some parse of original equals some parse of comparison. A
// value that never parses simply contributes no candidates, yielding
// success = false rather than an error.
func (DatesSimilar) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	left := parseAll(original)
	right := parseAll(comparison)

	for _, a := range left {
		for _, b := range right {
			if a.Equal(b) {
				result.Success = true
				return result
			}
		}
	}

	return result
}
