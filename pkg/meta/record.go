package meta

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventField is the synthetic column REDCap adds to longitudinal exports to
// identify which event a flat record row belongs to.
const EventField = "redcap_event_name"

// Record is one exported record row: field name (or checkbox compound name)
// to raw string value. A missing key is "unset", which is distinct from an
// empty string only in that both render the same but neither pre-selects a
// choice.
type Record map[string]string

// Value returns the trimmed value for name. ok is false when the field is
// absent or blank, the two cases branch evaluation treats as unset.
func (r Record) Value(name string) (value string, ok bool) {
	if r == nil {
		return "", false
	}
	raw, present := r[name]
	if !present {
		return "", false
	}
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}

// Event returns the record's event name, empty for non-longitudinal exports.
func (r Record) Event() string {
	return r[EventField]
}

// RecordSet is the full export for one record id: a single row for classic
// projects, one row per event for longitudinal ones.
type RecordSet []Record

// ForEvent selects the row whose event name matches.
func (rs RecordSet) ForEvent(event string) (Record, bool) {
	for _, rec := range rs {
		if rec.Event() == event {
			return rec, true
		}
	}
	return nil, false
}

// First returns the sole/leading row of a classic export.
func (rs RecordSet) First() (Record, bool) {
	if len(rs) == 0 {
		return nil, false
	}
	return rs[0], true
}

// DecodeRecords decodes a flat JSON record export.
func DecodeRecords(data []byte) (RecordSet, error) {
	var set RecordSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("meta: decode records: %w", err)
	}
	return set, nil
}
