// Package engine implements the two-phase validation and cross-reference
// algorithm: ValidateField dispatches a single (datatype, value) pair across
// every registered validator that supports it, and ValidateFieldSet runs
// that dispatch over an entire FieldSet before harvesting authority
// DataWrappers and cross-referencing every field's values against them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

// ErrUnknownModeltype is returned by Generate when no registered generator
// supports the requested modeltype.
var ErrUnknownModeltype = errors.New("engine: no generator registered for modeltype")

// Engine holds the plugin registry and default options it runs against. It
// holds no other state: the registry is immutable after construction and
// therefore safe to share across concurrent FieldSet validations.
type Engine struct {
	registry *registry.Registry
	opts     plugin.Options
	logger   *slog.Logger
	workers  int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithOptions sets the plugin Options the engine passes to every dispatch.
func WithOptions(opts plugin.Options) Option {
	return func(e *Engine) { e.opts = opts.WithDefaults() }
}

// WithLogger sets the structured logger used for programming-error recovery
// and diagnostic messages. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkers bounds the number of values processed concurrently within a
// single FieldSet's Phase A. A value <= 1 disables concurrency.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New constructs an Engine bound to reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		opts:     plugin.Options{}.WithDefaults(),
		logger:   slog.Default(),
		workers:  1,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Generate looks up the first registered generator whose Supports(modeltype)
// is true and hands it stream, returning ErrUnknownModeltype if none match.
func (e *Engine) Generate(ctx context.Context, modeltype string, stream io.Reader) ([]*fieldset.FieldSet, error) {
	gen, ok := e.registry.FindGenerator(modeltype, e.opts)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModeltype, modeltype)
	}

	return gen.Generate(ctx, modeltype, stream, e.opts)
}

// ValidateField runs every registered validator whose Supports(datatype)
// is true against value, in registry order, and returns the ordered
// results. A validator that panics is recovered and converted into a
// ValidationResult carrying a single stable error message rather than
// aborting the field, so one broken plugin never takes down the rest of the
// dispatch.
func (e *Engine) ValidateField(ctx context.Context, datatype, value string) []plugin.ValidationResult {
	results := make([]plugin.ValidationResult, 0)

	for _, nv := range e.registry.Validators() {
		if !nv.Validator.Supports(datatype, e.opts) {
			continue
		}

		result := e.invokeValidator(ctx, nv, datatype, value)
		result.Provenance = nv.Name
		results = append(results, result)
	}

	return results
}

// invokeValidator calls v.Validate, recovering from any panic and
// converting it into a stable error ValidationResult.
func (e *Engine) invokeValidator(ctx context.Context, nv registry.NamedValidator, datatype, value string) (result plugin.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("validator panicked",
				slog.String("plugin", nv.Name),
				slog.String("datatype", datatype),
				slog.Any("recovered", r),
			)
			result = plugin.NewValidationResult().WithError(
				fmt.Sprintf("validator %s failed unexpectedly", nv.Name),
			)
		}
	}()

	return nv.Validator.Validate(ctx, datatype, value, e.opts)
}

// ValidateFieldSet runs the full two-phase algorithm over fs:
//
// Phase A fills fs's per-field, per-value validation results.
// Phase B harvests every DataWrapper attached to any validation result,
// deduplicated by identity (Go interface comparability: two DataWrapper
// values compare equal only when their concrete types and values match, so
// the same *T instance returned twice collapses to one entry).
// Phase C cross-references every field with a non-empty crossref-datatype
// against the harvested wrappers, subject to the eligibility rule in §4.4:
// a field's comparison map is populated only when some harvested wrapper
// supplies values for that field's crossref-datatype AND some registered
// comparator supports it.
func (e *Engine) ValidateFieldSet(ctx context.Context, fs *fieldset.FieldSet) {
	e.phaseA(ctx, fs)

	wrappers := e.phaseB(fs)
	if len(wrappers) == 0 {
		return
	}

	e.phaseC(fs, wrappers)
}

// phaseA fills fs's validation map for every field and value. When the
// engine was configured with WithWorkers(n > 1), values within a single
// field are dispatched across a bounded worker pool (see pool.go); results
// are always written back in field/value iteration order regardless of
// completion order, preserving the determinism the spec requires.
func (e *Engine) phaseA(ctx context.Context, fs *fieldset.FieldSet) {
	for _, name := range fs.Names() {
		f, _ := fs.Get(name)

		values := f.Values
		results := make([][]plugin.ValidationResult, len(values))

		if e.workers > 1 && len(values) > 1 {
			runBounded(e.workers, len(values), func(i int) {
				results[i] = e.ValidateField(ctx, f.Datatype, values[i])
			})
		} else {
			for i, v := range values {
				results[i] = e.ValidateField(ctx, f.Datatype, v)
			}
		}

		for i, v := range values {
			f.Validation[v] = results[i]
		}
	}
}

// phaseB scans every validation result in fs for a non-nil Data field and
// returns the deduplicated set, in first-seen order, preserving the
// "DataWrapper order" the spec requires for Phase C's comparison ordering.
func (e *Engine) phaseB(fs *fieldset.FieldSet) []plugin.DataWrapper {
	seen := map[plugin.DataWrapper]bool{}
	wrappers := make([]plugin.DataWrapper, 0)

	for _, name := range fs.Names() {
		f, _ := fs.Get(name)

		for _, v := range f.Values {
			for _, r := range f.Validation[v] {
				if r.Data == nil || seen[r.Data] {
					continue
				}

				seen[r.Data] = true
				wrappers = append(wrappers, r.Data)
			}
		}
	}

	return wrappers
}

// phaseC cross-references every field with a crossref-datatype against
// wrappers, per §4.4.
func (e *Engine) phaseC(fs *fieldset.FieldSet, wrappers []plugin.DataWrapper) {
	comparators := e.registry.Comparators()

	for _, name := range fs.Names() {
		f, _ := fs.Get(name)

		if f.Crossref == "" {
			continue
		}

		selected := selectComparators(comparators, f.Crossref, e.opts)
		if len(selected) == 0 {
			continue
		}

		register, additionals := e.crossReferenceField(f, wrappers, selected, e.opts)

		if len(register) > 0 {
			f.Comparison = register
		}

		if len(additionals) > 0 {
			f.Additional = additionals
		}
	}
}

// selectComparators returns the subset of comparators whose Supports(xr) is
// true, preserving registration order.
func selectComparators(comparators []registry.NamedComparator, xr string, opts plugin.Options) []registry.NamedComparator {
	selected := make([]registry.NamedComparator, 0, len(comparators))

	for _, nc := range comparators {
		if nc.Comparator.Supports(xr, opts) {
			selected = append(selected, nc)
		}
	}

	return selected
}

// crossReferenceField runs _list_compare (per §4.4) for every harvested
// wrapper that supplies values for f's crossref-datatype, merging each
// wrapper's comparison register and additionals into one pair of maps.
func (e *Engine) crossReferenceField(
	f *fieldset.Field,
	wrappers []plugin.DataWrapper,
	comparators []registry.NamedComparator,
	opts plugin.Options,
) (map[string][]plugin.ComparisonResult, map[string][]fieldset.AdditionalValue) {
	anyWrapperContributed := false
	register := map[string][]plugin.ComparisonResult{}
	additionals := map[string][]fieldset.AdditionalValue{}

	for _, w := range wrappers {
		cmpValues := w.Get(f.Crossref)
		if len(cmpValues) == 0 {
			continue
		}

		anyWrapperContributed = true

		remaining := listCompare(f.Values, cmpValues, f.Crossref, w, comparators, register, opts)

		for _, a := range remaining {
			additionals[a] = append(additionals[a], fieldset.AdditionalValue{
				Value:  a,
				Source: w.SourceName(),
			})
		}
	}

	if !anyWrapperContributed {
		return nil, nil
	}

	return register, additionals
}

// listCompare implements the spec's `_list_compare`: every input value is
// compared against every authority value via every selected comparator;
// successful comparisons populate register[original] and remove the
// matched authority value from the returned "additional" set. A value with
// no successful match still gets an explicit empty register entry, marking
// "attempted but unmatched" rather than "never attempted".
func listCompare(
	inputValues []string,
	cmpValues []string,
	crossref string,
	w plugin.DataWrapper,
	comparators []registry.NamedComparator,
	register map[string][]plugin.ComparisonResult,
	opts plugin.Options,
) []string {
	additional := make([]string, len(cmpValues))
	copy(additional, cmpValues)

	remove := func(value string) {
		for i, a := range additional {
			if a == value {
				additional = append(additional[:i], additional[i+1:]...)
				return
			}
		}
	}

	for _, original := range inputValues {
		if _, ok := register[original]; !ok {
			register[original] = []plugin.ComparisonResult{}
		}

		for _, c := range cmpValues {
			for _, nc := range comparators {
				result := nc.Comparator.Compare(crossref, original, c, opts)
				result.ComparedWith = c
				result.Comparator = nc.Name
				result.DataSource = w.SourceName()

				if result.Success {
					register[original] = append(register[original], result)
					remove(c)
				}
			}
		}
	}

	return additional
}
