// Package doi provides the CrossRef-backed DOI authority adapter and the
// DOI semantic-equivalence comparator: two DOI-shaped strings are the same
// identifier once any URL prefix is stripped, compared byte-exact on the
// remaining "10.x/..." tail.
package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/correlator-io/metavalidate/internal/aliasing"
	"github.com/correlator-io/metavalidate/internal/validate/authority"
	"github.com/correlator-io/metavalidate/internal/validate/authority/audit"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

const pluginPackage = "doi"

// CrossRefBaseURL is the default CrossRef REST API base used to resolve a
// DOI to its deposited metadata record.
const CrossRefBaseURL = "https://api.crossref.org/works/"

func init() {
	v := NewCrossRefValidator(http.DefaultClient)
	registry.Default.RegisterValidator(registry.PluginName(pluginPackage, v), v)
	registry.Default.RegisterComparator(registry.PluginName(pluginPackage, &SemanticEqual{}), &SemanticEqual{})
}

var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// resolver strips the URL prefixes CrossRef and other DOI resolvers
// commonly wrap around a bare DOI.
var resolver = aliasing.NewResolver(aliasing.DefaultPatterns()) //nolint:gochecknoglobals

// bareDOI strips any recognized URL prefix, then lowercases the result
// (DOIs are case-insensitive per the DOI Handbook).
func bareDOI(value string) string {
	return strings.ToLower(resolver.Resolve(strings.TrimSpace(value)))
}

// CrossRefValidator validates DOI syntax and, when it looks well-formed,
// confirms it against the CrossRef REST API.
type CrossRefValidator struct {
	doer    authority.HTTPDoer
	baseURL string
}

// NewCrossRefValidator returns a validator querying CrossRef through doer.
func NewCrossRefValidator(doer authority.HTTPDoer) *CrossRefValidator {
	return &CrossRefValidator{doer: doer, baseURL: CrossRefBaseURL}
}

// auditStore receives a Record for every CrossRef call once set. nil until
// SetAuditStore is called, which main does after the database connection
// (and hence the audit table) is available.
var auditStore *audit.Store //nolint:gochecknoglobals

// SetAuditStore configures the audit sink subsequent Validate calls log
// their CrossRef call outcomes to. Passing nil disables auditing.
func SetAuditStore(s *audit.Store) {
	auditStore = s
}

// Supports applies to the "doi" datatype.
func (v *CrossRefValidator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == "doi"
}

// crossRefWork is the subset of a CrossRef "works" response this adapter
// projects onto engine datatypes.
type crossRefWork struct {
	Message struct {
		DOI     string   `json:"DOI"`
		Title   []string `json:"title"`
		ISSN    []string `json:"ISSN"`
		URL     string   `json:"URL"`
		Issued  struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

// Validate checks DOI syntax first; a syntactically valid DOI is then
// confirmed against CrossRef, with timeouts/5xx downgraded to warn and 4xx
// promoted to error, per §4.5.
func (v *CrossRefValidator) Validate(ctx context.Context, _, value string, opts plugin.Options) plugin.ValidationResult {
	result := plugin.NewValidationResult()

	bare := bareDOI(value)
	if !doiPattern.MatchString(bare) {
		return result.WithError(fmt.Sprintf("%q is not a well-formed DOI", value))
	}

	req, err := http.NewRequest(http.MethodGet, v.baseURL+bare, nil)
	if err != nil {
		return result.WithWarn("unable to build CrossRef request")
	}

	req.Header.Set("Accept", "application/json")

	var resp *http.Response

	call := func() (authority.Severity, error) {
		r, sev, callErr := authority.Call(ctx, v.doer, req, opts.WithDefaults().HTTPTimeout)
		resp = r

		return sev, callErr
	}

	var severity authority.Severity

	if auditStore != nil {
		severity, err = auditStore.Timed(ctx, "crossref", "doi", bare, call)
	} else {
		severity, err = call()
	}

	switch severity {
	case authority.SeverityError:
		return result.WithError(fmt.Sprintf("CrossRef does not recognize DOI %q", bare))
	case authority.SeverityWarn:
		msg := "CrossRef lookup failed"
		if err != nil {
			msg = err.Error()
		}

		return result.WithWarn(msg)
	}

	defer func() { _ = resp.Body.Close() }()

	var work crossRefWork

	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return result.WithWarn("CrossRef response was not parseable")
	}

	return result.WithInfo("confirmed against CrossRef").WithData(newWrapper(bare, work))
}

// wrapper projects a CrossRef work record onto the engine's semantic
// datatypes.
type wrapper struct {
	doi   string
	work  crossRefWork
}

func newWrapper(doi string, work crossRefWork) *wrapper {
	return &wrapper{doi: doi, work: work}
}

// SourceName identifies this authority as "crossref".
func (w *wrapper) SourceName() string { return "crossref" }

// Get projects the CrossRef record onto the requested semantic datatype.
func (w *wrapper) Get(datatype string) []string {
	switch datatype {
	case "doi", "publication_identifier":
		values := []string{w.doi}
		if w.work.Message.URL != "" {
			values = append(values, w.work.Message.URL)
		}

		return values
	case "title":
		return w.work.Message.Title
	case "issn":
		return w.work.Message.ISSN
	case "issued", "date":
		if len(w.work.Message.Issued.DateParts) == 0 || len(w.work.Message.Issued.DateParts[0]) == 0 {
			return nil
		}

		parts := w.work.Message.Issued.DateParts[0]
		switch len(parts) {
		case 1:
			return []string{fmt.Sprintf("%04d", parts[0])}
		case 2: //nolint:mnd
			return []string{fmt.Sprintf("%04d-%02d", parts[0], parts[1])}
		default:
			return []string{fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])}
		}
	default:
		return nil
	}
}

// SemanticEqual reports two DOI-shaped strings equivalent once any URL
// prefix is stripped and both are lowercased, per §4.1's "semantic
// identifier equivalence" rule.
type SemanticEqual struct{}

// Supports applies to the "doi" and generalized "publication_identifier"
// crossref datatypes.
func (SemanticEqual) Supports(crossref string, _ plugin.Options) bool {
	return crossref == "doi" || crossref == "publication_identifier"
}

// Compare strips optional URL prefixes from both sides and compares the
// bare "10.x/..." tail byte-exact (case-insensitively, since DOIs are
// case-insensitive).
func (SemanticEqual) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()

	a := bareDOI(original)
	b := bareDOI(comparison)

	result.Success = a != "" && a == b

	return result
}
