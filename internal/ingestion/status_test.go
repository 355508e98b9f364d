package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
)

func TestFieldStatus_NoResultsIsUnvalidated(t *testing.T) {
	assert.Equal(t, StatusUnvalidated, FieldStatus(nil))
}

func TestFieldStatus_NoErrorsNoWarningsIsPassed(t *testing.T) {
	results := []plugin.ValidationResult{plugin.NewValidationResult().WithInfo("ok")}

	assert.Equal(t, StatusPassed, FieldStatus(results))
}

func TestFieldStatus_WarningWithoutErrorIsPassedWithWarnings(t *testing.T) {
	results := []plugin.ValidationResult{plugin.NewValidationResult().WithWarn("not hyphenated")}

	assert.Equal(t, StatusPassedWithWarnings, FieldStatus(results))
}

func TestFieldStatus_AnyErrorIsFailed(t *testing.T) {
	results := []plugin.ValidationResult{
		plugin.NewValidationResult().WithWarn("slow"),
		plugin.NewValidationResult().WithError("malformed"),
	}

	assert.Equal(t, StatusFailed, FieldStatus(results))
}

func TestFieldSetStatus_EmptyFieldSetIsUnvalidated(t *testing.T) {
	fs := fieldset.New()

	perField, overall := FieldSetStatus(fs)

	assert.Empty(t, perField)
	assert.Equal(t, StatusUnvalidated, overall)
}

func TestFieldSetStatus_WorstFieldWins(t *testing.T) {
	fs := fieldset.New()
	fs.Field("issn", "issn", "issn", "1234-5679")
	fs.Field("title", "title", "title", "The Ising Model")

	issn, _ := fs.Get("issn")
	issn.Validation["1234-5679"] = []plugin.ValidationResult{plugin.NewValidationResult().WithInfo("ok")}

	title, _ := fs.Get("title")
	title.Validation["The Ising Model"] = []plugin.ValidationResult{plugin.NewValidationResult().WithError("too short")}

	perField, overall := FieldSetStatus(fs)

	assert.Equal(t, StatusPassed, perField["issn"])
	assert.Equal(t, StatusFailed, perField["title"])
	assert.Equal(t, StatusFailed, overall)
}
