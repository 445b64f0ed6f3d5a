// Package form assembles REDCap data-entry documents: field rows from the
// data dictionary, values from a stored record, branching-logic wiring from
// pkg/branch, and the XML codec for sending submissions back.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-datasources/internal/template"
	"github.com/goliatone/go-datasources/pkg/branch"
	"github.com/goliatone/go-datasources/pkg/meta"
)

// DefaultRecordIDField is the dictionary field holding the record identifier
// when the project does not configure its own.
const DefaultRecordIDField = "record_id"

const defaultTableClass = "table table-bordered table-striped table-condensed"

// missingRecordFragment is returned instead of a form when the record set is
// empty. A brand-new record with nothing submitted yet lands here, so this
// is a degraded render, never an error.
const missingRecordFragment = `<span style="color:red">Error retrieving record. ` +
	`If this is a new record no data has been saved to it yet.</span>`

// Builder assembles complete data-entry documents. It is safe for concurrent
// use: all per-render state lives in the request.
type Builder struct {
	engine     *template.Engine
	tableClass string
	cssVars    string
}

// Option customizes a Builder.
type Option func(*builderConfig)

type builderConfig struct {
	theme      *theme.RendererConfig
	tableClass string
}

// WithTheme applies chrome-class tokens and CSS variables from a theme
// renderer configuration. The "table" token overrides the table class.
func WithTheme(cfg *theme.RendererConfig) Option {
	return func(c *builderConfig) {
		c.theme = cfg
	}
}

// WithTableClass overrides the class list of the form tables directly.
func WithTableClass(class string) Option {
	return func(c *builderConfig) {
		c.tableClass = strings.TrimSpace(class)
	}
}

// NewBuilder constructs a Builder rendering through the embedded template
// bundle.
func NewBuilder(options ...Option) (*Builder, error) {
	cfg := &builderConfig{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	engine, err := template.New(template.WithFS(TemplatesFS()))
	if err != nil {
		return nil, fmt.Errorf("form: configure template engine: %w", err)
	}

	b := &Builder{
		engine:     engine,
		tableClass: defaultTableClass,
	}
	if cfg.tableClass != "" {
		b.tableClass = cfg.tableClass
	}
	if cfg.theme != nil {
		if class := strings.TrimSpace(cfg.theme.Tokens["table"]); class != "" {
			b.tableClass = class
		}
		b.cssVars = cssVarsStyle(cfg.theme.CSSVars)
	}
	return b, nil
}

// Request is one render invocation: the full dictionary, the record's
// complete export, and the identity of the form instance to draw.
type Request struct {
	Meta        []meta.Field
	Records     meta.RecordSet
	FormName    string
	RecordID    string
	EventIndex  int // -1 for non-longitudinal projects
	EventNames  []string
	EventLabels []string
	// RecordIDField names the identifier field to strip from the visible
	// form; DefaultRecordIDField when empty.
	RecordIDField string
}

// Result carries the assembled document and the field-type cache built while
// rendering. Callers may persist Fields (for example in a session) and hand
// it back to Encode to skip the metadata fetch on save.
type Result struct {
	HTML   string
	Fields FieldInfo
}

// Build assembles the document. The dependency map and every evaluator are
// computed before the first field renders, since wiring can reference fields
// later in the form. Structurally broken metadata (bad choice lists,
// malformed branch expressions) is an error; an empty record set degrades to
// an inline message.
func (b *Builder) Build(req Request) (*Result, error) {
	formName := strings.TrimSpace(req.FormName)
	if formName == "" {
		return nil, errors.New("form: form name is required")
	}
	if req.EventIndex >= 0 && req.EventIndex >= len(req.EventNames) {
		return nil, fmt.Errorf("form: event index %d out of range", req.EventIndex)
	}

	info := make(FieldInfo)
	if len(req.Records) == 0 {
		return &Result{HTML: missingRecordFragment, Fields: info}, nil
	}

	record := b.displayRecord(req)

	recordIDField := req.RecordIDField
	if recordIDField == "" {
		recordIDField = DefaultRecordIDField
	}

	full := make([]meta.Field, len(req.Meta), len(req.Meta)+1)
	copy(full, req.Meta)
	full = append(full, CompletionField(formName))

	formFields := make([]meta.Field, 0, len(full))
	for _, fld := range meta.FormFields(full, formName) {
		if fld.Name == recordIDField {
			continue
		}
		formFields = append(formFields, fld)
	}

	compiled, err := branch.Compile(formFields, branch.Context{
		Meta:       full,
		Records:    req.Records,
		FormName:   formName,
		EventIndex: req.EventIndex,
		EventNames: req.EventNames,
	})
	if err != nil {
		return nil, fmt.Errorf("form: %w", err)
	}

	var rows strings.Builder
	for _, fld := range formFields {
		row, err := buildRow(fld, record, compiled, info)
		if err != nil {
			return nil, fmt.Errorf("form: field %q: %w", fld.Name, err)
		}
		rows.WriteString(row)
	}

	var toggles strings.Builder
	for _, toggle := range compiled.Toggles {
		toggles.WriteString("\n\n")
		toggles.WriteString(toggle.Script)
	}

	html, err := b.engine.RenderTemplate("templates/form", map[string]any{
		"branch_logic": toggles.String(),
		"header":       b.headerHTML(formName, req),
		"rows":         rows.String(),
		"table_class":  b.tableClass,
		"css_vars":     b.cssVars,
	})
	if err != nil {
		return nil, fmt.Errorf("form: %w", err)
	}

	return &Result{HTML: html, Fields: info}, nil
}

// displayRecord selects the row whose values populate the form: the matching
// event row for longitudinal projects, the sole row otherwise. A missing
// event row is tolerated; the form renders blank.
func (b *Builder) displayRecord(req Request) meta.Record {
	if req.EventIndex >= 0 {
		rec, _ := req.Records.ForEvent(req.EventNames[req.EventIndex])
		return rec
	}
	rec, _ := req.Records.First()
	return rec
}

// CompletionField synthesizes the form-completion status dropdown appended
// to every instrument. The remote system tracks it as <form>_complete but
// never reports it in the dictionary.
func CompletionField(formName string) meta.Field {
	return meta.Field{
		Name:       formName + "_complete",
		Form:       formName,
		Type:       meta.FieldTypeDropdown,
		Label:      "Complete?",
		RawChoices: "0, Incomplete | 1, Unverified | 2, Complete",
	}
}

// knownFieldTypes gates row emission; anything else renders nothing.
func knownFieldType(ft meta.FieldType) bool {
	switch ft {
	case meta.FieldTypeText, meta.FieldTypeNotes, meta.FieldTypeDropdown,
		meta.FieldTypeCheckbox, meta.FieldTypeRadio,
		meta.FieldTypeYesNo, meta.FieldTypeTrueFalse:
		return true
	default:
		return false
	}
}

func buildRow(fld meta.Field, record meta.Record, compiled *branch.Compiled, info FieldInfo) (string, error) {
	if !knownFieldType(fld.Kind()) {
		return "", nil
	}

	control, err := buildControl(fld, record, compiled, info)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if header := strings.TrimSpace(fld.SectionHeader); header != "" {
		fmt.Fprintf(&b, `<tr><th colspan="2">%s</th></tr>`, sanitizeRichText(header))
		b.WriteString("\n")
	}

	style := ""
	if !compiled.Visible(fld.Name) {
		style = ` style="display:none"`
	}

	required := ""
	if fld.Required() {
		required = "* must provide value"
	}

	radioReset := ""
	if fld.Kind() == meta.FieldTypeRadio {
		radioReset = `<a class="pull-right radio_reset" href="javascript:void(0)">reset</a>`
	}

	fmt.Fprintf(&b, `<tr id="%s"%s>`, escape(fld.Name), style)
	fmt.Fprintf(&b, `<td><div>%s</div><div style="color:red; font-size:12px;">%s</div></td>`,
		sanitizeRichText(fld.Label), required)
	fmt.Fprintf(&b, `<td><div>%s</div><div style="color:blue; font-size:12px;">%s</div>%s</td>`,
		control, escape(fld.Note), radioReset)
	b.WriteString("</tr>\n")
	return b.String(), nil
}

func (b *Builder) headerHTML(formName string, req Request) string {
	title := titleWords(formName, "_")
	if req.EventIndex >= 0 && req.EventIndex < len(req.EventLabels) {
		return fmt.Sprintf(
			`<table class="%s"><tr><td>%s</td><td>Event Name: %s</td></tr></table>`,
			b.tableClass, escape(title),
			escape(titleWords(req.EventLabels[req.EventIndex], " ")))
	}
	return fmt.Sprintf(`<table class="%s"><tr><td>%s</td></tr></table>`, b.tableClass, escape(title))
}

// titleWords splits on sep and capitalizes each word, turning stored names
// like "demographics_form" into display titles.
func titleWords(s, sep string) string {
	parts := strings.Split(s, sep)
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

func cssVarsStyle(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(":root {\n")
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(vars[key])
		b.WriteString(";\n")
	}
	b.WriteString("}")
	return b.String()
}
