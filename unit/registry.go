package unit

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Kind classifies which capability contract a constructed unit
// satisfies.
type Kind int

const (
	KindSource Kind = iota + 1
	KindFilter
	KindSink
)

// String returns the contract name.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Resolved is a constructed, contract-checked unit instance ready for
// the streaming engine. Exactly one of Source, Filter, Sink is
// non-nil, matching Kind. Batch is non-nil only for sinks that also
// expose the BatchSink fast path.
type Resolved struct {
	Name string
	Kind Kind

	Source Source
	Filter Filter
	Sink   Sink
	Batch  BatchSink
}

// Registry maps unit type names to constructors. It is populated at
// process start and safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty unit registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds a unit type name to its constructor. Registering the
// same name twice panics: registration happens once at process start,
// so a duplicate is a programming error.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		panic(fmt.Sprintf("unit: constructor %q already registered", name))
	}
	slog.Debug("registering unit constructor", "name", name)
	r.constructors[name] = ctor
}

// Lookup reports whether a constructor is registered for name.
// The orchestrator calls this for every step at DAG-build time so
// unknown unit types fail before any record is processed.
func (r *Registry) Lookup(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[name]
	return ok
}

// Names returns all registered unit type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve constructs the unit for a step and validates its capability
// contract. Any failure — unknown name, constructor error, zero or
// multiple contracts — is a ConfigError attributed to the step.
func (r *Registry) Resolve(step *pipeline.Step) (*Resolved, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[step.Unit]
	r.mu.RUnlock()

	if !ok {
		return nil, &pipeline.ConfigError{
			Steps: []string{step.ID},
			Err:   fmt.Errorf("unit type %q: %w", step.Unit, pipeline.ErrUnknownUnit),
		}
	}

	instance, err := ctor(step.Config)
	if err != nil {
		return nil, &pipeline.ConfigError{
			Steps: []string{step.ID},
			Err:   fmt.Errorf("construct unit %q: %w", step.Unit, err),
		}
	}

	res := &Resolved{Name: step.Unit}

	src, isSource := instance.(Source)
	flt, isFilter := instance.(Filter)
	snk, isSink := instance.(Sink)

	matched := 0
	if isSource {
		matched++
		res.Kind = KindSource
		res.Source = src
	}
	if isFilter {
		matched++
		res.Kind = KindFilter
		res.Filter = flt
	}
	if isSink {
		matched++
		res.Kind = KindSink
		res.Sink = snk
		if b, ok := instance.(BatchSink); ok {
			res.Batch = b
		}
	}

	switch matched {
	case 1:
		return res, nil
	case 0:
		return nil, &pipeline.ConfigError{
			Steps: []string{step.ID},
			Err:   fmt.Errorf("unit type %q: %w", step.Unit, pipeline.ErrNoContract),
		}
	default:
		return nil, &pipeline.ConfigError{
			Steps: []string{step.ID},
			Err:   fmt.Errorf("unit type %q: %w", step.Unit, pipeline.ErrAmbiguousContract),
		}
	}
}
