package harvest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Field struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
	// Attribute reads the named attribute instead of the element text.
	Attribute string `json:"attribute,omitempty"`
	// Multiple collects every match instead of only the first one.
	Multiple  bool   `json:"multiple,omitempty"`
	Separator string `json:"separator,omitempty"`
	// Sentinel is what an absent value is rendered as, it defaults to
	// "No <Name>".
	Sentinel string `json:"sentinel,omitempty"`
}

// Placeholder is the text written in place of an absent value.
func (f Field) Placeholder() string {
	if f.Sentinel != "" {
		return f.Sentinel
	}
	words := strings.Fields(strings.ReplaceAll(f.Name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return "No " + strings.Join(words, " ")
}

func (f Field) separator() string {
	if f.Separator != "" {
		return f.Separator
	}
	return ", "
}

// ReservedFields are the keys cleaned records derive from their date, a
// schema cannot use them.
var ReservedFields = []string{"year", "month"}

type Schema []Field

func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Value is an optional field value. Values with more than one match keep
// each match in List, Text is always their joined form.
type Value struct {
	Text    string
	List    []string
	Present bool
}

func Text(s string) Value {
	return Value{Text: s, Present: true}
}

func List(items []string, sep string) Value {
	return Value{Text: strings.Join(items, sep), List: items, Present: true}
}

type FieldValue struct {
	Name     string
	Value    Value
	Sentinel string
}

// RawRecord is one record as it was read from a page, fields are kept in
// schema order.
type RawRecord struct {
	Fields []FieldValue
}

func (r RawRecord) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Missing returns the names of the fields without a value.
func (r RawRecord) Missing() []string {
	var missing []string
	for _, f := range r.Fields {
		if !f.Value.Present {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Label identifies a record in diagnostics by its first present field.
func (r RawRecord) Label() string {
	for _, f := range r.Fields {
		if f.Value.Present {
			return f.Value.Text
		}
	}
	return "<empty record>"
}

func (r RawRecord) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = fmt.Sprintf("%s=%q", f.Name, displayText(f))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func displayText(f FieldValue) string {
	if !f.Value.Present {
		return f.Sentinel
	}
	return f.Value.Text
}

func displayValue(f FieldValue) any {
	if !f.Value.Present {
		return f.Sentinel
	}
	if f.Value.List != nil {
		return f.Value.List
	}
	return f.Value.Text
}

// WriteFields encodes fields as the members of a JSON object, in order,
// without the surrounding braces. Absent values are written as their
// sentinel.
func WriteFields(buf *bytes.Buffer, fields []FieldValue) error {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(buf, f.Name, displayValue(f)); err != nil {
			return err
		}
	}
	return nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	encodedKey, err := marshalNoEscape(key)
	if err != nil {
		return err
	}
	encodedValue, err := marshalNoEscape(value)
	if err != nil {
		return err
	}
	buf.Write(encodedKey)
	buf.WriteByte(':')
	buf.Write(encodedValue)
	return nil
}

// WriteMember encodes a single `"key":value` pair.
func WriteMember(buf *bytes.Buffer, key string, value any) error {
	return writeMember(buf, key, value)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r RawRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := WriteFields(&buf, r.Fields); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
