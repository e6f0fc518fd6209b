package pipeline

import "fmt"

// Record is the unit of data flowing through a pipeline: an ordered
// key-value structure with a stable identifier. The engine treats the
// fields as opaque; only the identifier is interpreted, for
// checkpointing and failure attribution.
//
// A Record is not safe for concurrent mutation. Units that fan a
// record out to multiple outputs should Clone it first.
type Record struct {
	id     string
	keys   []string
	values map[string]any
}

// NewRecord creates an empty Record with the given stable identifier.
func NewRecord(id string) *Record {
	return &Record{
		id:     id,
		values: make(map[string]any),
	}
}

// ID returns the record's stable identifier.
func (r *Record) ID() string { return r.id }

// Set stores a field value. First-time keys are appended to the field
// order; replacing an existing key keeps its position. Returns the
// record for chaining.
func (r *Record) Set(key string, value any) *Record {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Get returns the value for key and whether it is present.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Clone returns a shallow copy of the record: field order and values
// are copied, nested values are shared.
func (r *Record) Clone() *Record {
	cp := &Record{
		id:     r.id,
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(cp.keys, r.keys)
	for k, v := range r.values {
		cp.values[k] = v
	}
	return cp
}

// WithID returns a clone of the record carrying a new identifier.
// Filters that split one record into many use this to give each
// output a distinct stable identity.
func (r *Record) WithID(id string) *Record {
	cp := r.Clone()
	cp.id = id
	return cp
}

// String returns a compact debug representation.
func (r *Record) String() string {
	return fmt.Sprintf("Record(%s, %d fields)", r.id, len(r.keys))
}
