package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

// ErrUnknownModeltype is returned by a Generator whose Generate is called
// for a modeltype its Supports rejected.
var ErrUnknownModeltype = fmt.Errorf("ingestion: unknown modeltype")

// bibjsonDocument is the wire shape JSONGenerator decodes. Most fields are
// optional; whatever is present becomes a field in the resulting FieldSet.
type bibjsonDocument struct {
	Title            string   `json:"title"`
	TitleLanguage    string   `json:"title_language"`
	Abstract         string   `json:"abstract"`
	AbstractLanguage string   `json:"abstract_language"`
	Language         string   `json:"language"`
	DOI              string   `json:"doi"`
	ISSN             []string `json:"issn"`
	ISBN             []string `json:"isbn"`
	Authors          []string `json:"authors"`
	Publisher        string   `json:"publisher_name"`
	JournalTitle     string   `json:"journal_title"`
	Issued           string   `json:"issued"`
	Volume           string   `json:"volume"`
	Issue            string   `json:"issue"`
	PageCount        string   `json:"page_count"`
	PageRange        string   `json:"page_range"`
	GrantNumber      string   `json:"grant_number"`
	ORCID            []string `json:"orcid"`
}

// fieldMapping describes how one scalar bibjson key becomes a FieldSet
// field: its datatype and, when eligible for cross-reference, the crossref
// datatype the engine groups it under during Phase C.
type fieldMapping struct {
	name     string
	datatype string
	crossref string
}

// fieldMappings is the static table driving scalar-field generation,
// grounded on the table-driven facet style the rest of this package's
// status derivation follows.
var fieldMappings = []struct { //nolint:gochecknoglobals
	key fieldMapping
	get func(doc *bibjsonDocument) string
}{
	{fieldMapping{"title", "title", "title"}, func(d *bibjsonDocument) string { return d.Title }},
	{fieldMapping{"abstract", "abstract", ""}, func(d *bibjsonDocument) string { return d.Abstract }},
	{fieldMapping{"doi", "doi", "publication_identifier"}, func(d *bibjsonDocument) string { return d.DOI }},
	{fieldMapping{"publisher_name", "name", ""}, func(d *bibjsonDocument) string { return d.Publisher }},
	{fieldMapping{"journal_title", "title", ""}, func(d *bibjsonDocument) string { return d.JournalTitle }},
	{fieldMapping{"issued", "date", "issued"}, func(d *bibjsonDocument) string { return d.Issued }},
	{fieldMapping{"volume", "number", "volume"}, func(d *bibjsonDocument) string { return d.Volume }},
	{fieldMapping{"issue", "number", "issue"}, func(d *bibjsonDocument) string { return d.Issue }},
	{fieldMapping{"page_count", "integer", "page_count"}, func(d *bibjsonDocument) string { return d.PageCount }},
	{fieldMapping{"grant_number", "grant_number", ""}, func(d *bibjsonDocument) string { return d.GrantNumber }},
}

// multiMappings handles keys whose bibjson value is a list: every element
// becomes a value on the same field.
var multiMappings = []struct { //nolint:gochecknoglobals
	key fieldMapping
	get func(doc *bibjsonDocument) []string
}{
	{fieldMapping{"issn", "issn", "issn"}, func(d *bibjsonDocument) []string { return d.ISSN }},
	{fieldMapping{"isbn", "isbn", ""}, func(d *bibjsonDocument) []string { return d.ISBN }},
	{fieldMapping{"authors", "name", ""}, func(d *bibjsonDocument) []string { return d.Authors }},
	{fieldMapping{"orcid", "orcid", ""}, func(d *bibjsonDocument) []string { return d.ORCID }},
}

// JSONGenerator implements fieldset.Generator for modeltype "bibjson",
// decoding a single JSON document into a primary FieldSet plus, when the
// document carries title_language/abstract_language, the derived
// sub-FieldSets ukriss.py emits for cfTitle/cfLangCode and
// cfAbstr/cfLangCode.
type JSONGenerator struct{}

// Supports reports whether modeltype is "bibjson".
func (JSONGenerator) Supports(modeltype string, _ plugin.Options) bool {
	return modeltype == "bibjson"
}

// Generate decodes stream as a single bibjson document and returns its
// primary FieldSet followed by any language sub-FieldSets.
func (g JSONGenerator) Generate(
	_ context.Context, modeltype string, stream io.Reader, opts plugin.Options,
) ([]*fieldset.FieldSet, error) {
	if !g.Supports(modeltype, opts) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModeltype, modeltype)
	}

	var doc bibjsonDocument
	if err := json.NewDecoder(stream).Decode(&doc); err != nil {
		return nil, fmt.Errorf("ingestion: decode bibjson: %w", err)
	}

	fs := fieldset.New()

	if doc.PageRange != "" && doc.PageCount == "" {
		pr := ParsePageRange(doc.PageRange)
		if pr.Count != 0 {
			fs.Field("page_count", "integer", "page_count", fmt.Sprintf("%d", pr.Count))
		}
	}

	for _, m := range fieldMappings {
		if v := m.get(&doc); v != "" {
			fs.Field(m.key.name, m.key.datatype, m.key.crossref, v)
		}
	}

	for _, m := range multiMappings {
		values := m.get(&doc)
		if len(values) == 0 {
			continue
		}

		fs.Field(m.key.name, m.key.datatype, m.key.crossref, values...)
	}

	if doc.Language != "" {
		fs.Field("language", "iso-639-1", "language", doc.Language)
	}

	fieldsets := []*fieldset.FieldSet{fs}

	if doc.TitleLanguage != "" {
		titleLang := fieldset.New()
		titleLang.Field("title/language", "iso-639-1", "language", doc.TitleLanguage)
		fieldsets = append(fieldsets, titleLang)
	}

	if doc.AbstractLanguage != "" {
		abstractLang := fieldset.New()
		abstractLang.Field("abstract/language", "iso-639-1", "language", doc.AbstractLanguage)
		fieldsets = append(fieldsets, abstractLang)
	}

	return fieldsets, nil
}

const pluginPackage = "ingestion"

func init() { //nolint:gochecknoinits
	registry.Default.RegisterGenerator(registry.PluginName(pluginPackage, JSONGenerator{}), JSONGenerator{})
}
