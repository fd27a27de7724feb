package store

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/ppiankov/boardharvest/internal/model"
)

// legacy records carry the source id as _id, the sequence as number and the
// enrichment under comments_data, e.g. moptt_<board>.json exports
var legacyReserved = map[string]bool{
	"_id":           true,
	"_post_time":    true,
	"comments_data": true,
}

func isLegacyRecord(fields map[string]json.RawMessage) bool {
	_, hasLegacyID := fields["_id"]
	_, hasID := fields["id"]
	return hasLegacyID && !hasID
}

// decodeLegacyRecord maps a flat legacy record onto model.Record
func decodeLegacyRecord(fields map[string]json.RawMessage) (model.Record, bool) {
	var rec model.Record
	if err := json.Unmarshal(fields["_id"], &rec.ID); err != nil || rec.ID == "" {
		return rec, false
	}

	if raw, ok := fields[model.PostFieldNumber]; ok {
		if n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64); err == nil {
			rec.Sequence = n
		}
	}
	for _, key := range []string{"_post_time", model.PostFieldTimestamp, model.PostFieldAcceptedDate} {
		if rec.SortTime = legacyString(fields[key]); rec.SortTime != "" {
			break
		}
	}
	rec.URL = legacyString(fields[model.PostFieldURL])

	rec.Fields = make(map[string]any)
	for key, raw := range fields {
		if legacyReserved[key] {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		switch v.(type) {
		case string, bool, json.Number:
			rec.Fields[key] = v
		}
	}

	if raw, ok := fields["comments_data"]; ok {
		var enr model.Enrichment
		if err := json.Unmarshal(raw, &enr); err == nil && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			rec.Enrichment = &enr
			rec.Enriched = true
		}
	}

	return rec, true
}

func legacyString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
