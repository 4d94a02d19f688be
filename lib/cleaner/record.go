package cleaner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"catalog-harvester/lib/harvest"
)

// Record is a harvested record with every field present. Dated records
// also carry the year and month parsed from their date field.
type Record struct {
	Fields []harvest.FieldValue
	Year   int
	Month  int
	Dated  bool
}

func (r Record) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value.Text, f.Value.Present
		}
	}
	return "", false
}

func (r Record) Label() string {
	return harvest.RawRecord{Fields: r.Fields}.Label()
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := harvest.WriteFields(&buf, r.Fields); err != nil {
		return nil, err
	}
	if r.Dated {
		if len(r.Fields) > 0 {
			buf.WriteByte(',')
		}
		if err := harvest.WriteMember(&buf, "year", r.Year); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		if err := harvest.WriteMember(&buf, "month", r.Month); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a record back from a dataset file, keeping the
// order its fields were written in.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a json object, got %v", tok)
	}

	*r = Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		switch key {
		case "year":
			r.Dated = true
			if err := json.Unmarshal(raw, &r.Year); err != nil {
				return fmt.Errorf("year: %w", err)
			}
		case "month":
			r.Dated = true
			if err := json.Unmarshal(raw, &r.Month); err != nil {
				return fmt.Errorf("month: %w", err)
			}
		default:
			value, err := decodeValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			r.Fields = append(r.Fields, harvest.FieldValue{Name: key, Value: value})
		}
	}
	_, err = dec.Token()
	return err
}

func decodeValue(raw json.RawMessage) (harvest.Value, error) {
	if string(raw) == "null" {
		return harvest.Value{}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return harvest.Text(text), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return harvest.Value{}, fmt.Errorf("unsupported value %s", raw)
	}
	return harvest.List(list, ", "), nil
}
