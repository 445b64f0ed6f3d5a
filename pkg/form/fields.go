package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-datasources/pkg/branch"
	"github.com/goliatone/go-datasources/pkg/meta"
)

// buildControl renders the input markup for one field and records its type
// in info. Unknown field types yield an empty fragment: the original system
// silently skipped them, and forms in the wild rely on that.
func buildControl(fld meta.Field, record meta.Record, compiled *branch.Compiled, info FieldInfo) (string, error) {
	name := fld.Name
	value := ""
	if record != nil {
		value = strings.TrimSpace(record[name])
	}
	onchange := onChangeAttr(compiled.OnChange(name))

	switch fld.Kind() {
	case meta.FieldTypeText:
		info.record(name, meta.FieldTypeText)
		return textControl(fld, value, onchange), nil
	case meta.FieldTypeNotes:
		info.record(name, meta.FieldTypeNotes)
		return fmt.Sprintf(
			`<textarea rows="5" cols="20" name="%s" class="field_input"%s>%s</textarea>`,
			escape(name), onchange, escape(value)), nil
	case meta.FieldTypeDropdown:
		info.record(name, meta.FieldTypeDropdown)
		return dropdownControl(fld, value, onchange)
	case meta.FieldTypeCheckbox:
		return checkboxControl(fld, record, compiled, info)
	case meta.FieldTypeRadio:
		info.record(name, meta.FieldTypeRadio)
		return radioControl(fld, value, onchange)
	case meta.FieldTypeYesNo:
		info.record(name, meta.FieldTypeYesNo)
		return pairedRadioControl(name, value, onchange, "Yes", "No"), nil
	case meta.FieldTypeTrueFalse:
		info.record(name, meta.FieldTypeTrueFalse)
		return pairedRadioControl(name, value, onchange, "True", "False"), nil
	default:
		return "", nil
	}
}

func onChangeAttr(statements string) string {
	if statements == "" {
		return ""
	}
	return fmt.Sprintf(` onchange="%s"`, escape(statements))
}

// textControl renders a plain text input; the date validation subtype also
// gets the picker class, a Today shortcut, and the format-check hook. The
// subtype changes only the widget, never the stored value.
func textControl(fld meta.Field, value, onchange string) string {
	name := escape(fld.Name)
	class := "field_input"
	inputID := "input_" + name
	extra := ""

	switch fld.Validation {
	case meta.ValidationDateYMD:
		class = "field_input_date"
		inputID = "date" + inputID
		extra = fmt.Sprintf(
			`<input type="button" value="Today" class="todaybutton" id="datebtn_%s" /> <br/>`+
				`<span style="color:red" class="datespan" id="datespan_%s"></span>`,
			name, name)
		onchange += fmt.Sprintf(` onblur="valiDate('%s','datespan_%s');"`, inputID, name)
	case meta.ValidationTime:
		class = "field_input_time"
	case meta.ValidationDatetimeYMD:
		class = "field_input_datetime"
	}

	return fmt.Sprintf(
		`<input type="text" value="%s" name="%s" class="%s" id="%s"%s />%s`,
		escape(value), name, class, inputID, onchange, extra)
}

func dropdownControl(fld meta.Field, value, onchange string) (string, error) {
	choices, err := fld.Choices()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<select%s name="%s" class="field_input"><option value></option>`, onchange, escape(fld.Name))
	for _, choice := range choices {
		selected := ""
		if value == choice.Key {
			selected = ` selected="selected"`
		}
		fmt.Fprintf(&b, `<option value="%s"%s name="%s" class="field_input">%s</option>`,
			escape(choice.Key), selected,
			escape(meta.CompoundName(fld.Name, choice.Key)),
			escape(choice.Label))
	}
	b.WriteString(`</select>`)
	return b.String(), nil
}

// checkboxControl renders one independently wired input per choice, each
// addressed by its compound name. A stored value that fails to parse as an
// integer counts as unchecked rather than erroring.
func checkboxControl(fld meta.Field, record meta.Record, compiled *branch.Compiled, info FieldInfo) (string, error) {
	choices, err := fld.Choices()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, choice := range choices {
		compound := meta.CompoundName(fld.Name, choice.Key)
		info.record(compound, meta.FieldTypeCheckbox)

		checked := ""
		if record != nil {
			if n, err := strconv.Atoi(strings.TrimSpace(record[compound])); err == nil && n == 1 {
				checked = ` checked="checked"`
			}
		}
		onchange := onChangeAttr(compiled.OnChange(compound))
		fmt.Fprintf(&b,
			`<div><input class="field_input" type="checkbox"%s name="%s" value="1" style="margin-top:-1px"%s/> %s</div>`,
			onchange, escape(compound), checked, escape(choice.Label))
	}
	return b.String(), nil
}

func radioControl(fld meta.Field, value, onchange string) (string, error) {
	choices, err := fld.Choices()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, choice := range choices {
		checked := ""
		if value == choice.Key {
			checked = ` checked="checked"`
		}
		fmt.Fprintf(&b,
			`<input type="radio" class="field_input"%s name="%s" style="margin-top:-1px" value="%s"%s /> %s<br/>`,
			onchange, escape(fld.Name), escape(choice.Key), checked, escape(choice.Label))
	}
	return b.String(), nil
}

// pairedRadioControl covers the yesno/truefalse types: two fixed inputs with
// values "1"/"0". A blank value pre-selects neither.
func pairedRadioControl(name, value, onchange, positive, negative string) string {
	posChecked, negChecked := "", ""
	if value != "" {
		if value == "1" {
			posChecked = ` checked="checked"`
		} else {
			negChecked = ` checked="checked"`
		}
	}
	return fmt.Sprintf(
		`<div><input type="radio" class="field_input"%s%s name="%s" value="1"/> %s</div>`+
			`<div><input type="radio" class="field_input"%s%s name="%s" value="0"/> %s</div>`,
		onchange, posChecked, escape(name), positive,
		onchange, negChecked, escape(name), negative)
}
