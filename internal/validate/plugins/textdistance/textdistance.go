// Package textdistance provides the fuzzy text comparator for titles and
// abstracts: two strings are equivalent when their Levenshtein similarity
// ratio exceeds a threshold (default 0.90, strict greater-than at the
// boundary per §8).
//
// Uses github.com/agnivade/levenshtein, the Levenshtein implementation
// already present (indirectly) in the retrieval pack via
// lookatitude-beluga-ai's dependency graph, rather than hand-rolling edit
// distance.
package textdistance

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "textdistance"

func init() {
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &TextSimilar{}), &TextSimilar{})
}

// TextSimilar reports two strings equivalent when their Levenshtein
// similarity ratio strictly exceeds options.LevenshteinRatioThreshold.
type TextSimilar struct{}

// Supports applies to the "title" and "abstract" crossref datatypes.
func (TextSimilar) Supports(crossref string, _ plugin.Options) bool {
	return crossref == "title" || crossref == "abstract"
}

// Compare computes ratio(original, comparison) and succeeds iff it is
// strictly greater than the configured threshold. An exact threshold match
// is not a success (§8 boundary behavior).
func (TextSimilar) Compare(_, original, comparison string, opts plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	ratio := similarityRatio(original, comparison)
	threshold := opts.WithDefaults().LevenshteinRatioThreshold

	result.Success = ratio > threshold

	if result.Success && comparison != original {
		result = result.WithCorrection(comparison)
	}

	return result
}

// similarityRatio converts edit distance into a [0, 1] similarity score:
// 1 - distance / max(len(a), len(b)). Two empty strings are trivially
// identical (ratio 1.0).
func similarityRatio(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}

	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)

	return 1.0 - float64(dist)/float64(maxLen)
}
