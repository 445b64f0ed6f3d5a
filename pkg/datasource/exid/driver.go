// Package exid is the placeholder driver for plain external identifiers: a
// record is nothing but an id the user types in, validated against the host
// platform before it is accepted.
package exid

import (
	"fmt"
	"html"
	"strings"

	"github.com/goliatone/go-datasources/pkg/datasource"
)

// FormField is the posted input name carrying the external identifier.
const FormField = "ex_id_form"

// Driver implements the external-identifier placeholder. The zero value is
// ready to use.
type Driver struct{}

// New returns an exid Driver.
func New() *Driver {
	return &Driver{}
}

// Configure accepts any configuration document; the driver has nothing to
// configure.
func (d *Driver) Configure(config []byte) error {
	return nil
}

// SelectionForm returns the post-creation notice shown in place of a
// sub-record table.
func (d *Driver) SelectionForm(formURL string) string {
	return `<h3>Record created. Return to <a href="../../../list/">` +
		`Subject Summary List</a> to view.</h3>`
}

// RecordForm returns the fixed saved-record notice; an identifier has no
// editable content.
func (d *Driver) RecordForm(recordID, formSpec string) string {
	return `<h3 style="color:red"><em>The External ID is saved. ` +
		`Currently no other actions are supported.</em></h3><br/><br/>`
}

// NewRecordFormRequired reports whether record creation needs user input;
// the identifier itself must come from the user.
func (d *Driver) NewRecordFormRequired() bool {
	return true
}

// NewRecordForm renders the identifier-entry form. posted carries a previous
// submission so the typed value survives a validation round trip; pass nil
// on first render.
func (d *Driver) NewRecordForm(posted map[string]string) string {
	value := ""
	if posted != nil {
		value = fmt.Sprintf(` value="%s"`, html.EscapeString(posted[FormField]))
	}
	return `<table class="table table-bordered table-striped table-condensed">` +
		`<tr><th>Description</th><th>Field</th></tr><tbody>` +
		`<tr><td>*Enter External ID</td><td>` +
		`<input type="text" onkeypress="return disableEnter(event);" name="` +
		FormField + `"` + value + `/></td></tr></tbody></table>`
}

// ProcessNewRecordForm extracts and validates the submitted identifier,
// returning it as the new record id. A blank or rejected identifier returns
// "" with no error; the caller re-renders the form.
func (d *Driver) ProcessNewRecordForm(posted map[string]string, validate datasource.RecordIDValidator) (string, error) {
	id := strings.TrimSpace(posted[FormField])
	if id == "" {
		return "", nil
	}
	if validate != nil {
		ok, err := validate(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
	}
	return id, nil
}
