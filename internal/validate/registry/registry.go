// Package registry builds the process-wide, immutable-after-construction
// table of validator, comparator, and generator plugins the engine dispatches
// against.
//
// The source implementation this engine is modeled on discovers plugins by
// scanning a directory and dynamically loading each file at startup. Go has
// no equivalent of that late-bound module loading, so this package takes the
// idiomatic substitute: every plugin package registers itself via a
// package-level init() calling Register/RegisterComparator/RegisterGenerator
// against the default Registry, and main wires the default Registry's
// contents into the engine once at process start. The result is the same
// contract the spec requires — plugins discovered before first use, a
// stable name per plugin, never mutated afterward — without runtime code
// loading.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
)

// named pairs a plugin instance with the stable name it was registered
// under, of the form "<package>.<TypeName>".
type named[T any] struct {
	Name    string
	Plugin  T
}

// Registry holds the three plugin collections in registration order.
// Duplicate names collide; the last registration under a given name wins,
// matching the spec's stated discovery semantics.
type Registry struct {
	mu          sync.Mutex
	validators  []named[plugin.Validator]
	comparators []named[plugin.Comparator]
	generators  []named[fieldset.Generator]

	validatorIdx  map[string]int
	comparatorIdx map[string]int
	generatorIdx  map[string]int
}

// New returns an empty Registry. Most callers use the package-level
// Default registry instead, populated by plugin packages' init() functions.
func New() *Registry {
	return &Registry{
		validatorIdx:  map[string]int{},
		comparatorIdx: map[string]int{},
		generatorIdx:  map[string]int{},
	}
}

// Default is the process-wide registry that plugin packages register
// themselves into via init(). main constructs the engine against Default
// after all plugin packages have been imported for side effect.
var Default = New() //nolint:gochecknoglobals

// RegisterValidator adds v under name to r. Call from a plugin package's
// init(). A duplicate name overwrites the earlier entry in place, preserving
// its original registration-order slot.
func (r *Registry) RegisterValidator(name string, v plugin.Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.validatorIdx[name]; ok {
		r.validators[i].Plugin = v
		return
	}

	r.validatorIdx[name] = len(r.validators)
	r.validators = append(r.validators, named[plugin.Validator]{Name: name, Plugin: v})
}

// RegisterComparator adds c under name to r.
func (r *Registry) RegisterComparator(name string, c plugin.Comparator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.comparatorIdx[name]; ok {
		r.comparators[i].Plugin = c
		return
	}

	r.comparatorIdx[name] = len(r.comparators)
	r.comparators = append(r.comparators, named[plugin.Comparator]{Name: name, Plugin: c})
}

// RegisterGenerator adds g under name to r.
func (r *Registry) RegisterGenerator(name string, g fieldset.Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.generatorIdx[name]; ok {
		r.generators[i].Plugin = g
		return
	}

	r.generatorIdx[name] = len(r.generators)
	r.generators = append(r.generators, named[fieldset.Generator]{Name: name, Plugin: g})
}

// NamedValidator pairs a Validator with the stable name it is registered
// under.
type NamedValidator struct {
	Name      string
	Validator plugin.Validator
}

// NamedComparator pairs a Comparator with the stable name it is registered
// under.
type NamedComparator struct {
	Name       string
	Comparator plugin.Comparator
}

// NamedGenerator pairs a Generator with the stable name it is registered
// under.
type NamedGenerator struct {
	Name      string
	Generator fieldset.Generator
}

// Validators returns all registered validators in registration order.
// Callers must not mutate the returned slice.
func (r *Registry) Validators() []NamedValidator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NamedValidator, len(r.validators))
	for i, n := range r.validators {
		out[i] = NamedValidator{Name: n.Name, Validator: n.Plugin}
	}

	return out
}

// Comparators returns all registered comparators in registration order.
func (r *Registry) Comparators() []NamedComparator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NamedComparator, len(r.comparators))
	for i, n := range r.comparators {
		out[i] = NamedComparator{Name: n.Name, Comparator: n.Plugin}
	}

	return out
}

// Generators returns all registered generators in registration order.
func (r *Registry) Generators() []NamedGenerator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NamedGenerator, len(r.generators))
	for i, n := range r.generators {
		out[i] = NamedGenerator{Name: n.Name, Generator: n.Plugin}
	}

	return out
}

// FindGenerator returns the first registered generator whose Supports
// reports true for modeltype, matching the spec's "engine picks the first
// generator that supports the modeltype" rule.
func (r *Registry) FindGenerator(modeltype string, opts plugin.Options) (fieldset.Generator, bool) {
	for _, n := range r.Generators() {
		if n.Generator.Supports(modeltype, opts) {
			return n.Generator, true
		}
	}

	return nil, false
}

// PluginName builds the stable "<package>.<TypeName>" name a plugin
// registers itself under, e.g. "dates.DateValidator".
func PluginName(pkg string, v interface{}) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return fmt.Sprintf("%s.%s", pkg, t.Name())
}
