package branch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-datasources/pkg/meta"
)

// Context carries everything reference resolution needs: the full dictionary
// (references may point at fields on other instruments), the complete record
// set (sibling event rows resolve cross-event references), and the identity
// of the form instance being rendered.
type Context struct {
	Meta       []meta.Field
	Records    meta.RecordSet
	FormName   string
	EventIndex int // -1 for non-longitudinal projects
	EventNames []string
}

// CurrentEvent returns the unique event name of the form instance being
// rendered, or "" for non-longitudinal projects.
func (c Context) CurrentEvent() string {
	if c.EventIndex < 0 || c.EventIndex >= len(c.EventNames) {
		return ""
	}
	return c.EventNames[c.EventIndex]
}

func (c Context) recordFor(event string) meta.Record {
	if c.EventIndex < 0 {
		rec, _ := c.Records.First()
		return rec
	}
	rec, _ := c.Records.ForEvent(event)
	return rec
}

// DependencyMap records which fields' toggle procedures must re-run when a
// master field changes. Keys are field names or checkbox compound names;
// iteration order is insertion order so generated output is deterministic.
type DependencyMap struct {
	masters []string
	deps    map[string][]string
}

func newDependencyMap() *DependencyMap {
	return &DependencyMap{deps: make(map[string][]string)}
}

func (m *DependencyMap) add(master, dependent string) {
	existing, ok := m.deps[master]
	if !ok {
		m.masters = append(m.masters, master)
		m.deps[master] = []string{dependent}
		return
	}
	for _, d := range existing {
		if d == dependent {
			return
		}
	}
	m.deps[master] = append(existing, dependent)
}

// Dependents returns the fields whose visibility depends on master.
func (m *DependencyMap) Dependents(master string) []string {
	if m == nil {
		return nil
	}
	return m.deps[master]
}

// Masters returns every master key in first-seen order.
func (m *DependencyMap) Masters() []string {
	if m == nil {
		return nil
	}
	return m.masters
}

// Toggle is the generated live re-evaluation procedure for one dependent
// field.
type Toggle struct {
	Field    string
	FuncName string
	Script   string
}

// Compiled is the output of one compilation pass over a form's fields.
type Compiled struct {
	Deps    *DependencyMap
	Toggles []Toggle
	visible map[string]bool
}

// Visible reports the render-time visibility verdict for a field. Fields
// without branching logic are always visible.
func (c *Compiled) Visible(field string) bool {
	if c == nil || c.visible == nil {
		return true
	}
	v, ok := c.visible[field]
	if !ok {
		return true
	}
	return v
}

// OnChange returns the JavaScript statement list re-running every toggle
// keyed by the given field or compound name, or "" when nothing depends on
// it.
func (c *Compiled) OnChange(key string) string {
	if c == nil {
		return ""
	}
	deps := c.Deps.Dependents(key)
	if len(deps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, dep := range deps {
		b.WriteString(dep)
		b.WriteString("_branch_logic(); ")
	}
	return b.String()
}

// Compile parses the branching logic of every supplied form field, builds
// the dependency map, the render-time visibility snapshot, and the live
// toggle procedures. formFields are the fields of the instrument being
// rendered; ctx supplies the full dictionary and record set for reference
// resolution. The entire map is built before any field renders, since a
// field's wiring can reference fields that appear later in the form.
func Compile(formFields []meta.Field, ctx Context) (*Compiled, error) {
	out := &Compiled{
		Deps:    newDependencyMap(),
		visible: make(map[string]bool),
	}

	for _, fld := range formFields {
		expr, err := Parse(fld.BranchExpr)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fld.Name, err)
		}
		if expr == nil {
			continue
		}

		dep := fld.Name
		for _, ref := range expr.Refs(nil) {
			out.Deps.add(ref.Key(), dep)
		}

		out.visible[dep] = expr.Eval(ctx.snapshotResolver())

		live := expr.EmitJS(ctx.liveResolver())
		out.Toggles = append(out.Toggles, Toggle{
			Field:    dep,
			FuncName: dep + "_branch_logic",
			Script:   toggleScript(dep, live),
		})
	}
	return out, nil
}

// snapshotResolver reads reference values frozen at render time. A plain
// reference resolves in the event being rendered; an event-scoped reference
// resolves in its own event's record row.
func (c Context) snapshotResolver() ValueFunc {
	return func(ref Ref) (string, bool) {
		event := ref.Event
		if event == "" {
			event = c.CurrentEvent()
		}
		rec := c.recordFor(event)
		return rec.Value(ref.Key())
	}
}

// liveResolver substitutes a live value lookup for references that can
// change on the rendered form instance, and a frozen literal for everything
// else: a master that is not present on this form in this event can never
// change while the form is open.
func (c Context) liveResolver() JSFunc {
	current := c.CurrentEvent()
	return func(ref Ref) string {
		event := ref.Event
		if event == "" {
			event = current
		}
		if event == current && c.onForm(ref.Field) {
			return "getFieldValue(" + jsQuote(ref.Key()) + ")"
		}
		rec := c.recordFor(event)
		value, ok := rec.Value(ref.Key())
		if !ok {
			return "undefined"
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			// Canonical form: a stored "02" must not become a bare
			// octal-looking JS literal.
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return jsQuote(value)
	}
}

func (c Context) onForm(fieldName string) bool {
	fld, ok := meta.FindField(c.Meta, fieldName)
	return ok && fld.Form == c.FormName
}

// toggleScript emits the named toggle procedure. Hiding clears descendant
// input values and queues dependents for cascaded re-evaluation; the queue
// is deduplicated and drained by the static runtime helpers, which keeps
// dependency cycles terminating and repeated runs idempotent.
func toggleScript(field, liveExpr string) string {
	var b strings.Builder
	b.Grow(len(liveExpr) + 512)
	fmt.Fprintf(&b, "function %s_branch_logic(){\n", field)
	fmt.Fprintf(&b, "    var e = document.getElementById('%s');\n", field)
	b.WriteString("    var d = e.style.display;\n")
	b.WriteString("    var currentViz = !(d == 'none');\n")
	fmt.Fprintf(&b, "    var setViz = %s;\n", liveExpr)
	b.WriteString("    if(setViz && !currentViz){\n")
	fmt.Fprintf(&b, "        $('#%s').show();\n", field)
	b.WriteString("    } else if(!setViz && currentViz){\n")
	fmt.Fprintf(&b, "        $('#%s').hide();\n", field)
	fmt.Fprintf(&b, "        clear_hidden_fld_values('%s');\n", field)
	b.WriteString("        execute_cascaded_branchs();\n")
	b.WriteString("    }\n")
	b.WriteString("}")
	return b.String()
}
