package form

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-datasources/pkg/meta"
)

// Encode serializes posted form values into the XML entry sequence the
// remote import API expects, ordered by the data dictionary. Checkbox
// choices expand to one entry per compound name, absent meaning "0";
// slider fields carry no submittable value and produce nothing; the record
// identifier travels in the document envelope, never as an entry.
func Encode(posted map[string]string, fields []meta.Field, formName, recordIDField string) (string, error) {
	if recordIDField == "" {
		recordIDField = DefaultRecordIDField
	}

	full := make([]meta.Field, len(fields), len(fields)+1)
	copy(full, fields)
	full = append(full, CompletionField(formName))

	var b strings.Builder
	for _, fld := range meta.FormFields(full, formName) {
		if fld.Name == recordIDField {
			continue
		}
		switch fld.Kind() {
		case meta.FieldTypeSlider:
			continue
		case meta.FieldTypeCheckbox:
			choices, err := fld.Choices()
			if err != nil {
				return "", fmt.Errorf("form: field %q: %w", fld.Name, err)
			}
			for _, choice := range choices {
				compound := meta.CompoundName(fld.Name, choice.Key)
				b.WriteString(checkboxEntry(compound, posted[compound]))
			}
		default:
			b.WriteString(xmlEntry(fld.Name, posted[fld.Name]))
		}
	}
	return b.String(), nil
}

// EncodeFromCache serializes posted values against a field-type cache saved
// by a previous render, skipping the dictionary round trip. Entries come
// out in sorted name order; byte-for-byte each entry matches what Encode
// would emit for the same input.
func EncodeFromCache(posted map[string]string, cache FieldInfo) string {
	names := make([]string, 0, len(cache))
	for name := range cache {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		switch cache[name].Type {
		case meta.FieldTypeSlider:
			continue
		case meta.FieldTypeCheckbox:
			b.WriteString(checkboxEntry(name, posted[name]))
		default:
			b.WriteString(xmlEntry(name, posted[name]))
		}
	}
	return b.String()
}

// ImportDocument wraps an encoded entry sequence in the single-record
// import envelope.
func ImportDocument(recordIDField, recordID, eventName, entries string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" ?><records><item>`)
	b.WriteString(xmlEntry(recordIDField, recordID))
	if eventName != "" {
		b.WriteString(xmlEntry(meta.EventField, eventName))
	}
	b.WriteString(entries)
	b.WriteString(`</item></records>`)
	return b.String()
}

func checkboxEntry(name, value string) string {
	if strings.TrimSpace(value) == "" {
		value = "0"
	}
	return xmlEntry(name, value)
}

func xmlEntry(name, value string) string {
	if value == "" {
		return "<" + name + "/>"
	}
	// a literal "]]>" inside the value would close the section early
	value = strings.ReplaceAll(value, "]]>", "]]]]><![CDATA[>")
	return "<" + name + "><![CDATA[" + value + "]]></" + name + ">"
}
