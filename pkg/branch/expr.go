package branch

import (
	"strconv"
	"strings"
)

// cmpOp enumerates the comparison operators of the branching-logic grammar.
// REDCap's single `=` is normalized to opEq during parsing; it is never a
// valid operator in either evaluation target.
type cmpOp int

const (
	opEq cmpOp = iota
	opNe
	opLt
	opGt
	opLe
	opGe
)

func (op cmpOp) js() string {
	switch op {
	case opEq:
		return "=="
	case opNe:
		return "!="
	case opLt:
		return "<"
	case opGt:
		return ">"
	case opLe:
		return "<="
	default:
		return ">="
	}
}

// Ref is one bracketed field reference. Event is empty for same-event
// references; Choice is empty unless the reference addresses a checkbox
// option, in which case the reference desugars to the compound name.
type Ref struct {
	Event  string
	Field  string
	Choice string
}

// Key returns the name the reference resolves against in a record row and in
// the dependency map: the field name, or the checkbox compound name.
func (r Ref) Key() string {
	if r.Choice == "" {
		return r.Field
	}
	return r.Field + "___" + r.Choice
}

// operand is either a field reference or a literal.
type operand interface {
	isOperand()
}

type refOperand struct {
	ref Ref
}

type litOperand struct {
	text   string
	quoted bool
}

func (refOperand) isOperand() {}
func (litOperand) isOperand() {}

// Expr is a parsed branching-logic expression. The same tree serves both
// evaluation targets: Eval resolves references against a frozen record
// snapshot, EmitJS resolves them to live value lookups (or frozen literals
// for references that cannot change on the rendered form).
type Expr interface {
	// Eval computes the render-time visibility verdict. resolve returns the
	// snapshot value of a reference and whether it is set.
	Eval(resolve ValueFunc) bool
	// EmitJS renders the live-evaluation JavaScript expression. resolve
	// returns the JS fragment standing in for a reference.
	EmitJS(resolve JSFunc) string
	// Refs appends every field reference in the tree, in source order.
	Refs(dst []Ref) []Ref
}

// ValueFunc resolves a reference to its snapshot value. ok is false when the
// field is unset (absent or blank) in the relevant record row.
type ValueFunc func(Ref) (value string, ok bool)

// JSFunc resolves a reference to the JavaScript fragment that stands for it
// in the live expression.
type JSFunc func(Ref) string

type compareExpr struct {
	op    cmpOp
	left  operand
	right operand
}

type logicalExpr struct {
	and   bool
	left  Expr
	right Expr
}

func (e compareExpr) Eval(resolve ValueFunc) bool {
	lv, lok := resolveValue(e.left, resolve)
	rv, rok := resolveValue(e.right, resolve)

	switch e.op {
	case opEq:
		return valuesEqual(lv, rv)
	case opNe:
		return !valuesEqual(lv, rv)
	}

	// Ordering against an unset reference can never hold; the original
	// semantics force these to false instead of erroring.
	if !lok || !rok {
		return false
	}
	if ln, lerr := strconv.ParseFloat(lv, 64); lerr == nil {
		if rn, rerr := strconv.ParseFloat(rv, 64); rerr == nil {
			return orderedCompare(e.op, ln, rn)
		}
	}
	switch e.op {
	case opLt:
		return lv < rv
	case opGt:
		return lv > rv
	case opLe:
		return lv <= rv
	default:
		return lv >= rv
	}
}

func orderedCompare(op cmpOp, l, r float64) bool {
	switch op {
	case opLt:
		return l < r
	case opGt:
		return l > r
	case opLe:
		return l <= r
	default:
		return l >= r
	}
}

// valuesEqual implements snapshot equality: numeric when both sides parse as
// numbers (so "02" equals "2", as the remote system treats coded values),
// string equality otherwise, with unset behaving as the empty string. The
// branch_values_equal helper in the form runtime applies the same rule.
func valuesEqual(l, r string) bool {
	if ln, lerr := strconv.ParseFloat(l, 64); lerr == nil {
		if rn, rerr := strconv.ParseFloat(r, 64); rerr == nil {
			return ln == rn
		}
	}
	return l == r
}

func resolveValue(o operand, resolve ValueFunc) (string, bool) {
	switch v := o.(type) {
	case litOperand:
		return v.text, true
	case refOperand:
		return resolve(v.ref)
	default:
		return "", false
	}
}

// EmitJS renders equality through the branch_values_equal runtime helper,
// which applies the same numeric-when-both-parse rule as valuesEqual; a
// plain JS == would compare zero-padded coded values ('02' vs '2') as
// unequal strings while the snapshot verdict says equal. Ordering operators
// stay infix.
func (e compareExpr) EmitJS(resolve JSFunc) string {
	left := emitOperand(e.left, resolve)
	right := emitOperand(e.right, resolve)

	switch e.op {
	case opEq:
		return "branch_values_equal(" + left + ", " + right + ")"
	case opNe:
		return "!branch_values_equal(" + left + ", " + right + ")"
	}

	var b strings.Builder
	b.WriteString(left)
	b.WriteByte(' ')
	b.WriteString(e.op.js())
	b.WriteByte(' ')
	b.WriteString(right)
	return b.String()
}

func emitOperand(o operand, resolve JSFunc) string {
	switch v := o.(type) {
	case litOperand:
		if v.quoted {
			return jsQuote(v.text)
		}
		if _, err := strconv.ParseFloat(v.text, 64); err == nil {
			return v.text
		}
		// Bare non-numeric words would be identifiers in JavaScript.
		return jsQuote(v.text)
	case refOperand:
		return resolve(v.ref)
	default:
		return "undefined"
	}
}

func (e compareExpr) Refs(dst []Ref) []Ref {
	if ref, ok := e.left.(refOperand); ok {
		dst = append(dst, ref.ref)
	}
	if ref, ok := e.right.(refOperand); ok {
		dst = append(dst, ref.ref)
	}
	return dst
}

func (e logicalExpr) Eval(resolve ValueFunc) bool {
	if e.and {
		return e.left.Eval(resolve) && e.right.Eval(resolve)
	}
	return e.left.Eval(resolve) || e.right.Eval(resolve)
}

func (e logicalExpr) EmitJS(resolve JSFunc) string {
	op := " || "
	if e.and {
		op = " && "
	}
	return "(" + e.left.EmitJS(resolve) + op + e.right.EmitJS(resolve) + ")"
}

func (e logicalExpr) Refs(dst []Ref) []Ref {
	dst = e.left.Refs(dst)
	return e.right.Refs(dst)
}

// jsQuote renders a single-quoted JavaScript string literal.
func jsQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
