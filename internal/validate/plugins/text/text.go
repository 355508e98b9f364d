// Package text provides the free-text length validator, grounded on the
// reference implementation's TitleAbstract validator: titles and abstracts
// below a sanity-check length threshold earn a warn, never an error, since
// a short title is unusual but not necessarily wrong.
package text

import (
	"context"
	"fmt"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "text"

const (
	minTitleLength    = 5
	minAbstractLength = 20
)

func init() {
	registry.Default.RegisterValidator(registry.PluginName(pluginPackage, &TitleAbstract{}), &TitleAbstract{})
}

// TitleAbstract flags suspiciously short titles and abstracts.
type TitleAbstract struct{}

// Supports applies to the "title" and "abstract" datatypes.
func (TitleAbstract) Supports(datatype string, _ plugin.Options) bool {
	return datatype == "title" || datatype == "abstract"
}

// Validate warns when value is shorter than the sanity threshold for its
// datatype; it never errors, since length alone can't prove a title wrong.
func (TitleAbstract) Validate(_ context.Context, datatype, value string, _ plugin.Options) plugin.ValidationResult {
	result := plugin.NewValidationResult()

	threshold := minTitleLength
	if datatype == "abstract" {
		threshold = minAbstractLength
	}

	if len(value) < threshold {
		return result.WithWarn(fmt.Sprintf("%s is shorter than %d characters, check for truncation", datatype, threshold))
	}

	return result.WithInfo(fmt.Sprintf("%s length looks reasonable", datatype))
}
