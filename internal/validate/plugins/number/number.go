// Package number provides the integer-equality comparator, grounded on the
// reference implementation's IntegersEqual: both sides are coerced to int
// and compared exactly, so "07" and "7" are equivalent but a non-numeric
// side never panics — it simply fails to match.
package number

import (
	"strconv"
	"strings"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "number"

func init() {
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &IntegersEqual{}), &IntegersEqual{})
}

// IntegersEqual reports two values equivalent when both parse as base-10
// integers with the same value, e.g. under crossref-datatype
// "page_count" or "volume".
type IntegersEqual struct{}

// Supports applies to the integer-family crossref datatypes.
func (IntegersEqual) Supports(crossref string, _ plugin.Options) bool {
	switch crossref {
	case "page_count", "volume", "issue", "year":
		return true
	default:
		return false
	}
}

// Compare parses both sides as integers and compares exactly. A parse
// failure on either side yields success = false, never an error.
func (IntegersEqual) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	a, errA := strconv.Atoi(strings.TrimSpace(original))
	b, errB := strconv.Atoi(strings.TrimSpace(comparison))

	result.Success = errA == nil && errB == nil && a == b

	return result
}
