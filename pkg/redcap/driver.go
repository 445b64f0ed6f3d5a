package redcap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/goliatone/go-datasources/pkg/datasource"
	"github.com/goliatone/go-datasources/pkg/form"
	"github.com/goliatone/go-datasources/pkg/meta"
)

// Driver renders and saves REDCap data-entry forms for one configured
// project. Construct with NewDriver, then Configure before any form
// operation.
type Driver struct {
	client  Client
	builder *form.Builder
	cfg     *Config
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithBuilder substitutes a pre-configured form builder, typically to apply
// a theme.
func WithBuilder(b *form.Builder) DriverOption {
	return func(d *Driver) {
		if b != nil {
			d.builder = b
		}
	}
}

// NewDriver constructs a Driver over a project client.
func NewDriver(client Client, options ...DriverOption) (*Driver, error) {
	if client == nil {
		return nil, errors.New("redcap: client is required")
	}
	d := &Driver{client: client}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	if d.builder == nil {
		builder, err := form.NewBuilder()
		if err != nil {
			return nil, err
		}
		d.builder = builder
	}
	return d, nil
}

// Configure parses and installs the project configuration document.
func (d *Driver) Configure(config []byte) error {
	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}

var formSpecPattern = regexp.MustCompile(`^(\d+)(?:_(\d+))?$`)

// resolveSpec maps a numeric form spec ("N" or "N_M") onto a form name and
// event index. Classic projects ignore a supplied event number; longitudinal
// projects require one. ok is false for malformed or out-of-range specs.
func (d *Driver) resolveSpec(spec string) (formName string, eventIndex int, ok bool) {
	if d.cfg == nil {
		return "", 0, false
	}
	m := formSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return "", 0, false
	}
	formNum, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}

	forms := d.cfg.Forms()
	if formNum >= len(forms) {
		return "", 0, false
	}

	if !d.cfg.Longitudinal() {
		return forms[formNum], -1, true
	}
	if m[2] == "" {
		return "", 0, false
	}
	eventNum, err := strconv.Atoi(m[2])
	if err != nil || eventNum >= len(d.cfg.UniqueEventNames) {
		return "", 0, false
	}
	return forms[formNum], eventNum, true
}

// RenderForm assembles the data-entry form for one record and form spec,
// returning the markup and the field-type cache the caller may hand back to
// EncodeSubmission. A malformed or out-of-range spec yields an empty result
// rather than an error; broken project metadata is an error.
func (d *Driver) RenderForm(ctx context.Context, recordID, formSpec string) (*form.Result, error) {
	if d.cfg == nil {
		return nil, errors.New("redcap: driver is not configured")
	}
	formName, eventIndex, ok := d.resolveSpec(formSpec)
	if !ok {
		return &form.Result{Fields: make(form.FieldInfo)}, nil
	}

	fields, err := d.client.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	opts := ReadOptions{Records: []string{recordID}}
	if !d.cfg.Longitudinal() {
		// one form's values suffice; branch references still resolve
		// against the full dictionary
		opts.Forms = []string{formName}
	}
	records, err := d.client.Records(ctx, opts)
	if err != nil {
		return nil, err
	}

	return d.builder.Build(form.Request{
		Meta:          fields,
		Records:       records,
		FormName:      formName,
		RecordID:      recordID,
		EventIndex:    eventIndex,
		EventNames:    d.cfg.UniqueEventNames,
		EventLabels:   d.cfg.EventLabels,
		RecordIDField: d.cfg.RecordIDField,
	})
}

// EncodeSubmission serializes posted form values into the single-record
// import document. A non-empty cache from a previous RenderForm skips the
// metadata round trip; pass nil to encode against a fresh dictionary.
// Unlike rendering, a bad spec here is an error: silently dropping a save
// loses data.
func (d *Driver) EncodeSubmission(ctx context.Context, recordID, formSpec string, posted map[string]string, cache form.FieldInfo) (string, error) {
	if d.cfg == nil {
		return "", errors.New("redcap: driver is not configured")
	}
	formName, eventIndex, ok := d.resolveSpec(formSpec)
	if !ok {
		return "", fmt.Errorf("redcap: invalid form spec %q", formSpec)
	}

	recordIDField := d.cfg.RecordIDField

	var entries string
	if len(cache) > 0 && recordIDField != "" {
		entries = form.EncodeFromCache(posted, cache)
	} else {
		fields, err := d.client.Metadata(ctx, formName)
		if err != nil {
			return "", err
		}
		if recordIDField == "" && len(fields) > 0 {
			// the dictionary lists the identifier field first
			recordIDField = fields[0].Name
		}
		entries, err = form.Encode(posted, fields, formName, recordIDField)
		if err != nil {
			return "", err
		}
	}

	if recordIDField == "" {
		recordIDField = form.DefaultRecordIDField
	}
	eventName := ""
	if eventIndex >= 0 {
		eventName = d.cfg.UniqueEventNames[eventIndex]
	}
	return form.ImportDocument(recordIDField, recordID, eventName, entries), nil
}

// SubmitForm encodes and imports one form submission. An import that
// touches any number of records other than one fails with
// MultipleRecordsError.
func (d *Driver) SubmitForm(ctx context.Context, recordID, formSpec string, posted map[string]string, cache form.FieldInfo) error {
	document, err := d.EncodeSubmission(ctx, recordID, formSpec, posted, cache)
	if err != nil {
		return err
	}
	count, err := d.client.Import(ctx, document)
	if err != nil {
		return err
	}
	if count != 1 {
		return &datasource.MultipleRecordsError{Count: count}
	}
	return nil
}

// Get reads records. When exactly one record is requested, an empty answer
// or a missing endpoint translates to RecordDoesNotExistError; broader
// reads pass results through as-is.
func (d *Driver) Get(ctx context.Context, recordID string, opts ReadOptions) (meta.RecordSet, error) {
	if recordID != "" && !contains(opts.Records, recordID) {
		opts.Records = append(opts.Records, recordID)
	}
	single := len(opts.Records) == 1

	records, err := d.client.Records(ctx, opts)
	if err != nil {
		var notFound *datasource.NotFoundError
		if single && errors.As(err, &notFound) {
			return nil, d.recordDoesNotExist(opts.Records[0], notFound.Path)
		}
		return nil, err
	}
	if single && len(records) == 0 {
		return nil, d.recordDoesNotExist(opts.Records[0], "")
	}
	return records, nil
}

func (d *Driver) recordDoesNotExist(recordID, path string) error {
	url := ""
	if ep, ok := d.client.(interface{ Endpoint() string }); ok {
		url = ep.Endpoint()
	}
	return &datasource.RecordDoesNotExistError{URL: url, Path: path, RecordID: recordID}
}

// Completion statuses stored in <form>_complete.
const (
	StatusIncomplete = 0
	StatusUnverified = 1
	StatusComplete   = 2
)

// CompletedForms reads the completion status of every configured form for
// one record. Keys are form specs ("N" or "N_M"); forms still incomplete
// are absent from the map.
func (d *Driver) CompletedForms(ctx context.Context, recordID string) (map[string]int, error) {
	if d.cfg == nil {
		return nil, errors.New("redcap: driver is not configured")
	}

	forms := d.cfg.Forms()
	fields := make([]string, 0, len(forms)+1)
	if d.cfg.Longitudinal() {
		// the identifier field must be requested or the export omits
		// redcap_event_name
		idField := d.cfg.RecordIDField
		if idField == "" {
			idField = form.DefaultRecordIDField
		}
		fields = append(fields, idField)
	}
	for _, name := range forms {
		fields = append(fields, name+"_complete")
	}

	records, err := d.client.Records(ctx, ReadOptions{
		Records: []string{recordID},
		Fields:  fields,
	})
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]int)
	for _, rec := range records {
		eventIndex := -1
		if d.cfg.Longitudinal() {
			eventIndex = indexOf(d.cfg.UniqueEventNames, rec.Event())
			if eventIndex < 0 {
				continue
			}
		}
		for formIndex, name := range forms {
			value, ok := rec.Value(name + "_complete")
			if !ok {
				continue
			}
			status, err := strconv.Atoi(value)
			if err != nil || status == StatusIncomplete {
				continue
			}
			key := strconv.Itoa(formIndex)
			if eventIndex >= 0 {
				key += "_" + strconv.Itoa(eventIndex)
			}
			statuses[key] = status
		}
	}
	return statuses, nil
}

// SelectionForm renders the form/event selection table: one edit button per
// reachable form instance, colored by completion status. formURL prefixes
// each button's destination; statuses is the CompletedForms result (nil for
// all incomplete).
func (d *Driver) SelectionForm(formURL string, statuses map[string]int) (string, error) {
	if d.cfg == nil {
		return "", errors.New("redcap: driver is not configured")
	}

	var b strings.Builder
	b.WriteString(`<table class="table table-bordered table-striped table-condensed">`)

	if !d.cfg.Longitudinal() {
		b.WriteString(`<tr><th>Data Form</th><th></th></tr>`)
		for i, name := range d.cfg.FormNames {
			key := strconv.Itoa(i)
			fmt.Fprintf(&b, `<tr><td>%s</td>%s</tr>`,
				formTitle(name), editButton(formURL, key, statuses[key]))
		}
		b.WriteString(`</table>`)
		return b.String(), nil
	}

	fmt.Fprintf(&b, `<tr><th rowspan="2">Data Collection Instrument</th><th colspan="%d">Events</th></tr>`,
		len(d.cfg.EventLabels))
	b.WriteString(`<tr>`)
	for _, label := range d.cfg.EventLabels {
		fmt.Fprintf(&b, `<td>%s</td>`, label)
	}
	b.WriteString(`</tr>`)

	for formIndex, name := range d.cfg.FormOrder {
		fmt.Fprintf(&b, `<tr><td>%s</td>`, formTitle(name))
		for eventIndex, available := range d.cfg.FormData[name] {
			if !available {
				b.WriteString(`<td></td>`)
				continue
			}
			key := strconv.Itoa(formIndex) + "_" + strconv.Itoa(eventIndex)
			b.WriteString(editButton(formURL, key, statuses[key]))
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</table>`)
	return b.String(), nil
}

func editButton(formURL, key string, status int) string {
	class, icon := "btn-primary", "fa-circle-o"
	switch status {
	case StatusUnverified:
		class, icon = "btn-warning", "fa-adjust"
	case StatusComplete:
		class, icon = "btn-success", "fa-circle"
	}
	return fmt.Sprintf(`<td><button data-toggle="modal" data-backdrop="static"`+
		` data-keyboard="false" href="#pleaseWaitModal" class="btn btn-small %s"`+
		` onclick="location.href='%s%s/'">Edit <i class="fa %s"></i></button></td>`,
		class, formURL, key, icon)
}

func formTitle(name string) string {
	parts := strings.Split(name, "_")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		out = append(out, string(runes))
	}
	return strings.Join(out, " ")
}

func contains(list []string, value string) bool {
	return indexOf(list, value) >= 0
}

func indexOf(list []string, value string) int {
	for i, item := range list {
		if item == value {
			return i
		}
	}
	return -1
}
