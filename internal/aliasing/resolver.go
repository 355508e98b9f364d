package aliasing

import (
	"log/slog"
	"regexp"
	"strings"
)

type (
	// compiledPattern holds a pre-compiled regex pattern and its canonical template.
	compiledPattern struct {
		regex     *regexp.Regexp
		canonical string
		variables []string
	}

	// Resolver resolves authority-supplied identifier strings using
	// pattern-based aliasing. Thread-safe for concurrent use (immutable
	// after construction).
	//
	// The resolver strips the URL prefixes authorities commonly wrap around
	// otherwise-bare identifiers, enabling semantic-identifier comparators
	// (e.g. DOI) to recognize "http://dx.doi.org/10.1000/xyz" and
	// "10.1000/xyz" as the same value.
	//
	// Pattern syntax:
	//   - {variable} captures any characters except "/"
	//   - {variable*} captures any characters including "/" (for paths)
	//   - Literal characters match exactly
	//   - First matching pattern wins (order matters)
	Resolver struct {
		patterns []compiledPattern
	}
)

// variableRegex matches {name} or {name*} patterns in the pattern string.
var variableRegex = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\*?\}`)

// compilePattern converts a pattern string to a compiled regex.
//
// Pattern: "doi:{doi*}" → Regex: ^doi:(?P<doi>.+)$.
func compilePattern(pattern string) (*regexp.Regexp, []string, error) {
	variables := make([]string, 0, 4) //nolint:mnd // preallocate for typical pattern

	escaped := regexp.QuoteMeta(pattern)
	result := escaped

	matches := variableRegex.FindAllStringSubmatch(pattern, -1)
	for _, match := range matches {
		fullMatch := match[0] // e.g., "{doi}" or "{doi*}"
		varName := match[1]
		isGreedy := strings.HasSuffix(fullMatch, "*}")

		variables = append(variables, varName)

		var captureGroup string
		if isGreedy {
			captureGroup = "(?P<" + varName + ">.+)"
		} else {
			captureGroup = "(?P<" + varName + ">[^/]+)"
		}

		escapedVar := regexp.QuoteMeta(fullMatch)
		result = strings.Replace(result, escapedVar, captureGroup, 1)
	}

	result = "^" + result + "$"

	regex, err := regexp.Compile(result)
	if err != nil {
		return nil, nil, err
	}

	return regex, variables, nil
}

// substituteVariables replaces {var} placeholders in canonical with captured values.
func substituteVariables(canonical string, captures map[string]string) string {
	result := canonical

	for varName, value := range captures {
		result = strings.ReplaceAll(result, "{"+varName+"}", value)
		result = strings.ReplaceAll(result, "{"+varName+"*}", value)
	}

	return result
}

// NewResolver compiles patterns into a Resolver, skipping any with an
// empty pattern/canonical or an invalid regex (logged at Warn). A nil or
// empty patterns slice returns a no-op resolver (passthrough).
func NewResolver(patterns []IdentifierPattern) *Resolver {
	validPatterns := make([]compiledPattern, 0, len(patterns))

	for _, p := range patterns {
		pattern := strings.TrimSpace(p.Pattern)
		canonical := strings.TrimSpace(p.Canonical)

		if pattern == "" {
			slog.Warn("Skipping identifier pattern with empty pattern string")

			continue
		}

		if canonical == "" {
			slog.Warn("Skipping identifier pattern with empty canonical",
				slog.String("pattern", pattern))

			continue
		}

		regex, variables, err := compilePattern(pattern)
		if err != nil {
			slog.Warn("Skipping identifier pattern with invalid regex",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))

			continue
		}

		validPatterns = append(validPatterns, compiledPattern{
			regex:     regex,
			canonical: canonical,
			variables: variables,
		})
	}

	return &Resolver{patterns: validPatterns}
}

// GetPatternCount returns the number of compiled patterns.
func (r *Resolver) GetPatternCount() int {
	if r == nil {
		return 0
	}

	return len(r.patterns)
}

// Resolve applies patterns to strip a known prefix from identifier.
// Returns the canonical form if a pattern matches, otherwise the original
// string unchanged.
//
// Patterns are evaluated in order; first match wins.
func (r *Resolver) Resolve(identifier string) string {
	if r == nil || len(r.patterns) == 0 || identifier == "" {
		return identifier
	}

	for _, cp := range r.patterns {
		match := cp.regex.FindStringSubmatch(identifier)
		if match == nil {
			continue
		}

		captures := make(map[string]string)

		for i, name := range cp.regex.SubexpNames() {
			if i > 0 && name != "" && i < len(match) {
				captures[name] = match[i]
			}
		}

		return substituteVariables(cp.canonical, captures)
	}

	return identifier
}

// Match checks if identifier matches any pattern and returns the canonical
// form. Returns ("", false) if no pattern matched.
func (r *Resolver) Match(identifier string) (string, bool) {
	if r == nil || len(r.patterns) == 0 || identifier == "" {
		return "", false
	}

	for _, cp := range r.patterns {
		match := cp.regex.FindStringSubmatch(identifier)
		if match == nil {
			continue
		}

		captures := make(map[string]string)

		for i, name := range cp.regex.SubexpNames() {
			if i > 0 && name != "" && i < len(match) {
				captures[name] = match[i]
			}
		}

		return substituteVariables(cp.canonical, captures), true
	}

	return "", false
}
