package harvest

import (
	"bytes"
	"encoding/json"

	"github.com/ppiankov/boardharvest/internal/api"
	"github.com/ppiankov/boardharvest/internal/model"
)

// wireKeys maps post field names to their listing keys where they differ
var wireKeys = map[string]string{
	model.PostFieldID: "_id",
}

// Normalize turns a listing item into a record carrying only the included scalar fields.
// The item must have an id. The number field is a placeholder filled in on append.
func Normalize(item api.Item, fields model.FieldSet) model.Record {
	rec := model.Record{
		ID:       item.ID,
		SortTime: item.Timestamp,
		URL:      scalarString(item.Raw[model.PostFieldURL]),
		Fields:   make(map[string]any),
	}
	if rec.SortTime == "" {
		rec.SortTime = item.AcceptedDate
	}

	for name, include := range fields {
		if !include {
			continue
		}
		if name == model.PostFieldNumber {
			rec.Fields[name] = nil
			continue
		}
		key := name
		if wk, ok := wireKeys[name]; ok {
			key = wk
		}
		if v, ok := scalar(item.Raw[key]); ok {
			rec.Fields[name] = v
		}
	}

	return rec
}

// scalar decodes raw as a string, number, or bool. Nulls, objects, and arrays are dropped.
func scalar(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case string, json.Number, bool:
		return v, true
	default:
		return nil, false
	}
}

func scalarString(raw json.RawMessage) string {
	v, ok := scalar(raw)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
