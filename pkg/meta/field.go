// Package meta normalizes REDCap project exports: the data dictionary and
// flat record rows.
package meta

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FieldType enumerates the REDCap data-dictionary field kinds this layer
// understands. Values mirror the `field_type` column verbatim.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNotes     FieldType = "notes"
	FieldTypeDropdown  FieldType = "dropdown"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeYesNo     FieldType = "yesno"
	FieldTypeTrueFalse FieldType = "truefalse"
	FieldTypeSlider    FieldType = "slider"
)

// Validation kinds reported in `text_validation_type_or_show_slider_number`.
// Only the date/time family changes rendering; everything else passes through.
const (
	ValidationDateYMD     = "date_ymd"
	ValidationTime        = "time"
	ValidationDatetimeYMD = "datetime_ymd"
)

// Field is one normalized data-dictionary record. JSON tags match the REDCap
// metadata export so a dictionary decodes directly into []Field.
type Field struct {
	Name          string    `json:"field_name"`
	Form          string    `json:"form_name"`
	Type          FieldType `json:"field_type"`
	Label         string    `json:"field_label"`
	SectionHeader string    `json:"section_header"`
	Note          string    `json:"field_note"`
	Validation    string    `json:"text_validation_type_or_show_slider_number"`
	RequiredRaw   string    `json:"required_field"`
	BranchExpr    string    `json:"branching_logic"`
	RawChoices    string    `json:"select_choices_or_calculations"`
}

// Choice is one (key, label) pair of a select/checkbox/radio field.
type Choice struct {
	Key   string
	Label string
}

// Required reports whether the dictionary flags this field as mandatory.
func (f Field) Required() bool {
	return f.RequiredRaw == "Y"
}

// Kind returns the lowercased field type; dictionaries exported through older
// REDCap versions occasionally carry mixed case.
func (f Field) Kind() FieldType {
	return FieldType(strings.ToLower(strings.TrimSpace(string(f.Type))))
}

// CompoundName addresses one checkbox choice as its own boolean field.
func CompoundName(field, choiceKey string) string {
	return field + "___" + choiceKey
}

var choicePattern = regexp.MustCompile(`^\s*(?P<key>[0-9A-Za-z_]+)\s*,\s*(?P<label>.+)$`)

// Choices parses the pipe-delimited choice list. A malformed entry is a hard
// error: masking it would render a form whose branching silently disagrees
// with the remote project.
func (f Field) Choices() ([]Choice, error) {
	raw := strings.TrimSpace(f.RawChoices)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, "|")
	choices := make([]Choice, 0, len(parts))
	for _, part := range parts {
		m := choicePattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("meta: invalid choice entry %q in field %q", strings.TrimSpace(part), f.Name)
		}
		choices = append(choices, Choice{
			Key:   strings.TrimSpace(m[1]),
			Label: strings.TrimSpace(m[2]),
		})
	}
	return choices, nil
}

// DecodeMetadata decodes a JSON metadata export into the normalized form.
func DecodeMetadata(data []byte) ([]Field, error) {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("meta: decode metadata: %w", err)
	}
	return fields, nil
}

// FormFields filters a dictionary down to the fields of one instrument,
// preserving dictionary order.
func FormFields(fields []Field, formName string) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Form == formName {
			out = append(out, f)
		}
	}
	return out
}

// FindField locates a field by name.
func FindField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
