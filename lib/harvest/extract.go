package harvest

import (
	"context"
	"fmt"

	"catalog-harvester/lib/htmlutil"
	"catalog-harvester/lib/navigator"
)

// ExtractRecord reads every schema field relative to `el`. A field that
// cannot be found is recorded as absent; only errors from the session
// itself are returned.
func ExtractRecord(ctx context.Context, sess navigator.Session, el navigator.Element, schema Schema) (RawRecord, error) {
	record := RawRecord{Fields: make([]FieldValue, 0, len(schema))}
	for _, field := range schema {
		value, err := extractField(ctx, sess, el, field)
		if err != nil {
			return RawRecord{}, fmt.Errorf("field %s: %w", field.Name, err)
		}
		record.Fields = append(record.Fields, FieldValue{
			Name:     field.Name,
			Value:    value,
			Sentinel: field.Placeholder(),
		})
	}
	return record, nil
}

func extractField(ctx context.Context, sess navigator.Session, el navigator.Element, field Field) (Value, error) {
	if field.Multiple {
		matches, err := sess.QueryAllIn(ctx, el, field.Selector)
		if err != nil {
			return Value{}, err
		}
		var items []string
		for _, match := range matches {
			text, ok, err := read(ctx, sess, match, field)
			if err != nil {
				return Value{}, err
			}
			if ok {
				items = append(items, text)
			}
		}
		if len(items) == 0 {
			return Value{}, nil
		}
		return List(items, field.separator()), nil
	}

	match, found, err := sess.QueryOneIn(ctx, el, field.Selector)
	if err != nil {
		return Value{}, err
	}
	if !found {
		return Value{}, nil
	}
	text, ok, err := read(ctx, sess, match, field)
	if err != nil || !ok {
		return Value{}, err
	}
	return Text(text), nil
}

// read returns false for a missing attribute or blank text.
func read(ctx context.Context, sess navigator.Session, el navigator.Element, field Field) (string, bool, error) {
	var text string
	if field.Attribute != "" {
		value, ok, err := sess.Attribute(ctx, el, field.Attribute)
		if err != nil || !ok {
			return "", false, err
		}
		text = value
	} else {
		value, err := sess.Text(ctx, el)
		if err != nil {
			return "", false, err
		}
		text = value
	}
	text = htmlutil.NormalizeText(text)
	return text, text != "", nil
}
