package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"hermannm.dev/enumnames"
)

// ValueKind tags the type held by a Value.
type ValueKind int8

const (
	KindNumber ValueKind = iota + 1
	KindText
	KindPath
)

var valueKindNames = enumnames.NewMap(map[ValueKind]string{
	KindNumber: "number",
	KindText:   "text",
	KindPath:   "path",
})

func (k ValueKind) String() string {
	return valueKindNames.GetNameOrFallback(k, "invalid")
}

func (k ValueKind) MarshalJSON() ([]byte, error) {
	return valueKindNames.MarshalToNameJSON(k)
}

func (k *ValueKind) UnmarshalJSON(bytes []byte) error {
	return valueKindNames.UnmarshalFromNameJSON(bytes, k)
}

// Value is a named parameter's value: a number, free text, or a filesystem path.
type Value struct {
	kind   ValueKind
	number float64
	text   string
}

func NumberValue(n float64) Value { return Value{kind: KindNumber, number: n} }
func TextValue(s string) Value    { return Value{kind: KindText, text: s} }
func PathValue(p string) Value    { return Value{kind: KindPath, text: p} }

func (v Value) Kind() ValueKind { return v.kind }

// Number returns the numeric payload; ok is false for other kinds.
func (v Value) Number() (n float64, ok bool) {
	return v.number, v.kind == KindNumber
}

// Text returns the text payload; ok is false for other kinds.
func (v Value) Text() (s string, ok bool) {
	return v.text, v.kind == KindText
}

// Path returns the path payload; ok is false for other kinds.
func (v Value) Path() (p string, ok bool) {
	return v.text, v.kind == KindPath
}

// IsEmpty reports whether a text or path value is blank. Numbers are never empty.
func (v Value) IsEmpty() bool {
	return v.kind != KindNumber && v.text == ""
}

// Any returns the payload as a driver-compatible scalar.
func (v Value) Any() any {
	if v.kind == KindNumber {
		return v.number
	}
	return v.text
}

// WithInput parses raw user input into a value of the same kind as v.
func (v Value) WithInput(raw string) (Value, error) {
	switch v.kind {
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, &ValidationError{Field: "value", Value: raw, Message: fmt.Sprintf("%q is not a number", raw)}
		}
		return NumberValue(n), nil
	case KindPath:
		return PathValue(raw), nil
	default:
		return TextValue(raw), nil
	}
}

func (v Value) String() string {
	if v.kind == KindNumber {
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	}
	return v.text
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON number as KindNumber and a string as KindText.
func (v *Value) UnmarshalJSON(bytes []byte) error {
	var raw any
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return err
	}

	switch typed := raw.(type) {
	case float64:
		*v = NumberValue(typed)
	case string:
		*v = TextValue(typed)
	default:
		return fmt.Errorf("unsupported parameter value %s", string(bytes))
	}
	return nil
}

// Parameter is a named Value, kept in declaration order by its owner.
type Parameter struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Parameters is an ordered set of named values.
type Parameters []Parameter

// Get returns the named value.
func (ps Parameters) Get(name string) (Value, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named value in place, or appends it.
func (ps Parameters) Set(name string, value Value) Parameters {
	for i := range ps {
		if ps[i].Name == name {
			ps[i].Value = value
			return ps
		}
	}
	return append(ps, Parameter{Name: name, Value: value})
}

// Delete removes the named value if present.
func (ps Parameters) Delete(name string) Parameters {
	out := ps[:0]
	for _, p := range ps {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns an independent copy.
func (ps Parameters) Clone() Parameters {
	if ps == nil {
		return nil
	}
	out := make(Parameters, len(ps))
	copy(out, ps)
	return out
}
