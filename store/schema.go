package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FieldType enumerates the value kinds a schema field can hold.
type FieldType int

const (
	// FieldString holds UTF-8 text.
	FieldString FieldType = iota
	// FieldNumber holds an int64. Counters and epoch-millisecond stamps
	// use this type.
	FieldNumber
	// FieldBool holds a boolean.
	FieldBool
	// FieldTime holds a time.Time. Adapters persist it as epoch
	// milliseconds.
	FieldTime
)

// FieldSpec describes one field of an entity schema.
type FieldSpec struct {
	Type     FieldType
	Required bool
	// Default produces the value for a missing field on insert. It is
	// evaluated at write time so defaults like "now + ttl" stay fresh.
	Default func() any
	Unique  bool
}

// Schema is the field map for one entity plus its TTL metadata.
type Schema struct {
	Fields map[string]FieldSpec
	// TTLField names the time field after which the document is expired
	// and must be purged, or "" when the entity never expires.
	TTLField string
}

// Entity binds a collection name to its schema.
type Entity struct {
	Name   string
	Schema Schema
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Entity{}
)

// RegisterEntity makes an entity definition discoverable by adapters so
// index and TTL provisioning can run once at startup. Registering the
// same name twice overwrites the earlier definition.
func RegisterEntity(e Entity) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name] = e
}

// LookupEntity returns the registered entity for a collection name.
func LookupEntity(name string) (Entity, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	return e, ok
}

// RegisteredEntities returns all registered entities, sorted by name for
// deterministic provisioning order.
func RegisteredEntities() []Entity {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Entity, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks a document against the schema and returns a normalized
// copy. On a full validation (partial=false) missing required fields
// without defaults fail, and missing optional fields with defaults get
// the default. On a partial validation missing fields are simply
// omitted. Unknown fields are dropped.
func (s Schema) Validate(doc Document, partial bool) (Document, error) {
	out := make(Document, len(s.Fields))

	for name, spec := range s.Fields {
		val, present := doc[name]
		if !present || val == nil {
			if partial {
				continue
			}
			if spec.Default != nil {
				val = spec.Default()
			} else if spec.Required {
				return nil, fmt.Errorf("%w: missing required field %q", ErrValidation, name)
			} else {
				continue
			}
		}

		coerced, err := coerceField(name, spec.Type, val)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}

	return out, nil
}

// Normalize converts raw values decoded by an adapter (float64 numbers,
// epoch milliseconds for times) back into canonical Go types. Fields not
// in the schema are dropped.
func (s Schema) Normalize(doc Document) Document {
	out := make(Document, len(doc))
	for name, spec := range s.Fields {
		val, ok := doc[name]
		if !ok || val == nil {
			continue
		}
		if coerced, err := coerceField(name, spec.Type, val); err == nil {
			out[name] = coerced
		}
	}
	return out
}

func coerceField(name string, ft FieldType, val any) (any, error) {
	switch ft {
	case FieldString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a string", ErrValidation, name)
		}
		return s, nil
	case FieldNumber:
		n, ok := toInt64(val)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a number", ErrValidation, name)
		}
		return n, nil
	case FieldBool:
		switch b := val.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case float64:
			return b != 0, nil
		}
		return nil, fmt.Errorf("%w: field %q must be a boolean", ErrValidation, name)
	case FieldTime:
		// Every backend stores times at millisecond precision; truncate
		// here so round-trips compare equal.
		switch t := val.(type) {
		case time.Time:
			return t.UTC().Truncate(time.Millisecond), nil
		case int64:
			return time.UnixMilli(t).UTC(), nil
		case float64:
			return time.UnixMilli(int64(t)).UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q must be a valid time", ErrValidation, name)
			}
			return parsed.UTC().Truncate(time.Millisecond), nil
		}
		return nil, fmt.Errorf("%w: field %q must be a valid time", ErrValidation, name)
	}
	return nil, fmt.Errorf("%w: field %q has unknown type", ErrValidation, name)
}

func toInt64(val any) (int64, bool) {
	switch n := val.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
