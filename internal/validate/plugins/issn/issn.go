// Package issn provides ISSN format validation (the ISO 3297 mod-11 check
// digit) and exact-equality cross-reference, grounded on the reference
// implementation's hyphenation-correction style seen in its ORCID plugin
// applied here to the ISSN's own "NNNN-NNNN" canonical form.
package issn

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "issn"

func init() {
	registry.Default.RegisterValidator(registry.PluginName(pluginPackage, &ISSNValidator{}), &ISSNValidator{})
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &ISSNEqual{}), &ISSNEqual{})
}

var (
	hyphenatedPattern   = regexp.MustCompile(`^\d{4}-\d{3}[\dXx]$`)
	unhyphenatedPattern = regexp.MustCompile(`^\d{7}[\dXx]$`)
)

// ISSNValidator checks ISSN syntax and mod-11 check digit, and suggests
// hyphenation when the input is otherwise valid but missing the dash.
type ISSNValidator struct{}

// Supports applies to the "issn" datatype.
func (ISSNValidator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == "issn"
}

// Validate checks format and check digit, warning (not erroring) on a
// missing hyphen when the digits otherwise check out, and erroring when
// the check digit itself is wrong.
func (ISSNValidator) Validate(_ context.Context, _, value string, _ plugin.Options) plugin.ValidationResult {
	result := plugin.NewValidationResult()

	digits, hyphenated := normalize(value)
	if digits == "" {
		return result.WithError(fmt.Sprintf("%q is not a well-formed ISSN", value))
	}

	if !checkDigitValid(digits) {
		return result.WithError(fmt.Sprintf("%q fails the ISSN check digit", value))
	}

	if !hyphenated {
		canonical := digits[:4] + "-" + digits[4:]
		return result.WithWarn("ISSN is not hyphenated").WithCorrection(canonical)
	}

	return result.WithInfo("ISSN is well-formed")
}

// normalize strips an optional hyphen and reports the 8 check-digit digits
// plus whether the input was already hyphenated. Returns ("", false) when
// value isn't shaped like an ISSN at all.
func normalize(value string) (digits string, hyphenated bool) {
	value = strings.TrimSpace(value)

	switch {
	case hyphenatedPattern.MatchString(value):
		return value[:4] + value[5:], true
	case unhyphenatedPattern.MatchString(value):
		return value, false
	default:
		return "", false
	}
}

// checkDigitValid applies the ISO 3297 mod-11 weighted-sum check: digits
// 1..7 weighted 8..2, final character ('X' = 10) must make the weighted sum
// divisible by 11.
func checkDigitValid(digits string) bool {
	if len(digits) != 8 {
		return false
	}

	sum := 0

	for i := 0; i < 7; i++ {
		weight := 8 - i
		n, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}

		sum += n * weight
	}

	last := strings.ToUpper(string(digits[7]))

	checkValue := 0
	if last == "X" {
		checkValue = 10
	} else {
		n, err := strconv.Atoi(last)
		if err != nil {
			return false
		}

		checkValue = n
	}

	return (sum+checkValue)%11 == 0
}

// ISSNEqual compares two ISSNs for equality after stripping hyphens, so
// "1234-5679" and "12345679" are recognized as the same identifier.
type ISSNEqual struct{}

// Supports applies to the "issn" and generalized "publication_identifier"
// crossref datatypes.
func (ISSNEqual) Supports(crossref string, _ plugin.Options) bool {
	return crossref == "issn" || crossref == "publication_identifier"
}

// Compare strips hyphens from both sides and compares case-insensitively
// (the check digit may be 'X').
func (ISSNEqual) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	a := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(original), "-", ""))
	b := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(comparison), "-", ""))

	result.Success = a != "" && a == b

	return result
}
