// Package language provides the language-code comparator: two tags are
// equivalent once normalized to ISO 639-2 three-letter form. Per the
// resolved Open Question (§8), two tags neither side recognizes still
// compare equal when they are string-equal case-insensitively — a
// passthrough-on-unknown fallback in the same spirit as the teacher
// codebase's namespace scheme normalization, which also falls through
// unchanged for schemes it doesn't recognize.
package language

import (
	"strings"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "language"

func init() {
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &CodeEqual{}), &CodeEqual{})
}

// iso6391to6392 maps common ISO 639-1 two-letter codes to their ISO 639-2
// three-letter equivalents. Not exhaustive; unmapped tags fall through to
// the case-insensitive passthrough comparison.
var iso6391to6392 = map[string]string{ //nolint:gochecknoglobals
	"en": "eng", "fr": "fre", "de": "ger", "es": "spa", "it": "ita",
	"pt": "por", "nl": "dut", "ru": "rus", "zh": "chi", "ja": "jpn",
	"ko": "kor", "ar": "ara", "hi": "hin", "pl": "pol", "sv": "swe",
	"no": "nor", "da": "dan", "fi": "fin", "el": "gre", "tr": "tur",
	"he": "heb", "cs": "cze", "hu": "hun", "ro": "rum", "uk": "ukr",
}

// normalize returns the ISO 639-2 three-letter form of tag, or the
// lowercased tag unchanged if it isn't a recognized 639-1 code.
func normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))

	if code, ok := iso6391to6392[tag]; ok {
		return code
	}

	return tag
}

// CodeEqual reports two language tags equivalent once both are normalized
// to ISO 639-2 form.
type CodeEqual struct{}

// Supports applies to the "language" crossref datatype.
func (CodeEqual) Supports(crossref string, _ plugin.Options) bool {
	return crossref == "language"
}

// Compare normalizes both sides and compares. Two tags neither side
// recognizes still compare equal if string-equal case-insensitively.
func (CodeEqual) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	a := normalize(original)
	b := normalize(comparison)

	result.Success = a != "" && a == b

	return result
}
