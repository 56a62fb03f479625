package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TypeField is the mandatory discriminator field.
const TypeField = "type"

var (
	// ErrMissingType is returned when an event has no non-empty string "type".
	ErrMissingType = errors.New("events: missing or empty \"type\" field")
)

// Event is an immutable structured record describing a domain occurrence.
// It is shared by pointer between all queues and subscribers that receive it.
type Event struct {
	obj *Object
	typ string
}

// New builds an event of the given type. The type field is always first.
func New(typ string, fields ...Field) (*Event, error) {
	if typ == "" {
		return nil, ErrMissingType
	}
	all := make([]Field, 0, len(fields)+1)
	all = append(all, F(TypeField, typ))
	for _, f := range fields {
		if f.Key == TypeField {
			continue
		}
		all = append(all, f)
	}
	return &Event{obj: NewObject(all...), typ: typ}, nil
}

// MustNew is New for static events in tests and fixtures.
func MustNew(typ string, fields ...Field) *Event {
	ev, err := New(typ, fields...)
	if err != nil {
		panic(err)
	}
	return ev
}

// FromObject wraps o as an event after validating its type field.
func FromObject(o *Object) (*Event, error) {
	v, ok := o.Get(TypeField)
	if !ok {
		return nil, ErrMissingType
	}
	typ, ok := v.(string)
	if !ok || typ == "" {
		return nil, ErrMissingType
	}
	return &Event{obj: o, typ: typ}, nil
}

// Decode parses one JSON object into an event.
func Decode(data []byte) (*Event, error) {
	o, err := DecodeObject(data)
	if err != nil {
		return nil, err
	}
	return FromObject(o)
}

// DecodeMany accepts either a single JSON object or an array of objects.
func DecodeMany(data []byte) ([]*Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		ev, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []*Event{ev}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out []*Event
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		o, ok := v.(*Object)
		if !ok {
			return nil, errNotObject
		}
		ev, err := FromObject(o)
		if err != nil {
			return nil, fmt.Errorf("events: element %d: %w", len(out), err)
		}
		out = append(out, ev)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("events: trailing data after array")
	}
	return out, nil
}

// Type returns the discriminator.
func (e *Event) Type() string { return e.typ }

// Get returns a top-level field.
func (e *Event) Get(key string) (any, bool) { return e.obj.Get(key) }

// Keys returns the field names in order.
func (e *Event) Keys() []string { return e.obj.Keys() }

// Object returns the underlying immutable object.
func (e *Event) Object() *Object { return e.obj }

// Native returns a fresh plain-map copy for expression evaluation.
func (e *Event) Native() map[string]any { return e.obj.Native() }

// MarshalJSON encodes fields in order.
func (e *Event) MarshalJSON() ([]byte, error) { return e.obj.MarshalJSON() }

// String is the JSON form, for logs.
func (e *Event) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		return "<invalid event: " + err.Error() + ">"
	}
	return string(b)
}

// EncodeLine renders e as exactly one physical line: JSON with every line
// break removed, followed by a single '\n'.
func EncodeLine(e *Event) ([]byte, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if bytes.ContainsAny(b, "\r\n") {
		b = []byte(strings.NewReplacer("\r", "", "\n", "").Replace(string(b)))
	}
	return append(b, '\n'), nil
}
