package behavior

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/codewandler/troupe-go/internal/codec"
	"github.com/codewandler/troupe-go/internal/reflector"
)

const typeTagKey = "$type"

// Marshaller converts values of one type to and from a transport-safe wire
// representation. The wire form must survive the JSON codec.
type Marshaller interface {
	// Type is the wire tag attached to marshalled values.
	Type() string
	// Matches reports whether this marshaller handles the value.
	Matches(v any) bool
	// Marshal produces the wire form.
	Marshal(v any) (any, error)
	// Unmarshal reconstructs a locally usable stand-in from the wire form.
	Unmarshal(wire any) (any, error)
}

// Marshallers is the registry applied whenever a value crosses a process or
// network boundary. Matching is attempted in registration order, recursively
// and independently on every positional message argument.
type Marshallers struct {
	mu    sync.RWMutex
	list  []Marshaller
	byTag map[string]Marshaller
}

func NewMarshallers(ms ...Marshaller) (*Marshallers, error) {
	out := &Marshallers{byTag: make(map[string]Marshaller)}
	if err := out.Add(ms...); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Marshallers) Add(ms ...Marshaller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mm := range ms {
		tag := mm.Type()
		if tag == "" {
			return fmt.Errorf("%w: empty type tag", ErrUnknownMarshaller)
		}
		if _, ok := m.byTag[tag]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateMarshaller, tag)
		}
		m.byTag[tag] = mm
		m.list = append(m.list, mm)
	}
	return nil
}

// Types returns the registered wire tags in registration order.
func (m *Marshallers) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.list))
	for i, mm := range m.list {
		out[i] = mm.Type()
	}
	return out
}

// Require fails if any of the given tags is not registered. The endpoint
// uses it to validate the handshake's marshaller list.
func (m *Marshallers) Require(tags []string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tag := range tags {
		if _, ok := m.byTag[tag]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMarshaller, tag)
		}
	}
	return nil
}

// Encode applies the registry to each positional argument.
func (m *Marshallers) Encode(args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := m.encodeValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeOne applies the registry to a single value (e.g. a response).
func (m *Marshallers) EncodeOne(v any) (any, error) { return m.encodeValue(v) }

// DecodeOne is the inverse of EncodeOne.
func (m *Marshallers) DecodeOne(v any) (any, error) { return m.decodeValue(v) }

// Decode is the inverse of Encode.
func (m *Marshallers) Decode(args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := m.decodeValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Marshallers) match(v any) Marshaller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mm := range m.list {
		if mm.Matches(v) {
			return mm
		}
	}
	return nil
}

func (m *Marshallers) encodeValue(v any) (any, error) {
	if mm := m.match(v); mm != nil {
		wire, err := mm.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", mm.Type(), err)
		}
		return map[string]any{typeTagKey: mm.Type(), "data": wire}, nil
	}

	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ev, err := m.encodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ev, err := m.encodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

func (m *Marshallers) decodeValue(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ev, err := m.decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		if tag, ok := t[typeTagKey].(string); ok {
			m.mu.RLock()
			mm, found := m.byTag[tag]
			m.mu.RUnlock()
			if found {
				out, err := mm.Unmarshal(t["data"])
				if err != nil {
					return nil, fmt.Errorf("unmarshal %s: %w", tag, err)
				}
				return out, nil
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			ev, err := m.decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

// JSON builds a Marshaller for T backed by the JSON codec. An empty tag
// defaults to T's fully qualified type name.
func JSON[T any](tag string) Marshaller {
	if tag == "" {
		tag = reflector.TypeInfoFor[T]().Name
	}
	return &jsonMarshaller[T]{tag: tag, typ: reflect.TypeOf((*T)(nil)).Elem()}
}

type jsonMarshaller[T any] struct {
	tag string
	typ reflect.Type
}

func (j *jsonMarshaller[T]) Type() string { return j.tag }

func (j *jsonMarshaller[T]) Matches(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t == j.typ
}

func (j *jsonMarshaller[T]) Marshal(v any) (any, error) {
	c := codec.JSONCodec{}
	data, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	var wire any
	if err := c.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return wire, nil
}

func (j *jsonMarshaller[T]) Unmarshal(wire any) (any, error) {
	c := codec.JSONCodec{}
	data, err := c.Marshal(wire)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := c.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return *out, nil
}
