package branch

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-datasources/pkg/meta"
)

func testMeta() []meta.Field {
	return []meta.Field{
		{Name: "diabetes", Form: "history", Type: meta.FieldTypeYesNo},
		{Name: "diabetes_type", Form: "history", Type: meta.FieldTypeDropdown,
			RawChoices: "1, Type 1 | 2, Type 2", BranchExpr: "[diabetes] = '1'"},
		{Name: "meds", Form: "history", Type: meta.FieldTypeCheckbox,
			RawChoices: "1, Aspirin | 2, Statin"},
		{Name: "aspirin_dose", Form: "history", Type: meta.FieldTypeText,
			BranchExpr: "[meds(1)] = '1'"},
		{Name: "aspirin_note", Form: "history", Type: meta.FieldTypeNotes,
			BranchExpr: "[meds(1)] = '1'"},
		{Name: "screened", Form: "intake", Type: meta.FieldTypeYesNo},
	}
}

func TestCompileDependencyMap(t *testing.T) {
	t.Parallel()

	fields := testMeta()
	compiled, err := Compile(meta.FormFields(fields, "history"), Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{}},
		FormName:   "history",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"diabetes_type"}, compiled.Deps.Dependents("diabetes")); diff != "" {
		t.Fatalf("diabetes dependents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"aspirin_dose", "aspirin_note"}, compiled.Deps.Dependents("meds___1")); diff != "" {
		t.Fatalf("meds___1 dependents mismatch (-want +got):\n%s", diff)
	}
	if got := compiled.OnChange("meds___1"); got != "aspirin_dose_branch_logic(); aspirin_note_branch_logic(); " {
		t.Fatalf("OnChange(meds___1) = %q", got)
	}
	if got := compiled.OnChange("meds___2"); got != "" {
		t.Fatalf("nothing depends on meds___2, got %q", got)
	}
}

func TestCompileDependentsAreUnique(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "a", Form: "f", Type: meta.FieldTypeText},
		{Name: "b", Form: "f", Type: meta.FieldTypeText,
			BranchExpr: "[a] = '1' or [a] = '2'"},
	}
	compiled, err := Compile(fields, Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{}},
		FormName:   "f",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, compiled.Deps.Dependents("a")); diff != "" {
		t.Fatalf("dependents must be deduplicated (-want +got):\n%s", diff)
	}
}

func TestCompileSnapshotVisibility(t *testing.T) {
	t.Parallel()

	fields := testMeta()
	record := meta.Record{"diabetes": "", "meds___1": "1"}
	compiled, err := Compile(meta.FormFields(fields, "history"), Context{
		Meta:       fields,
		Records:    meta.RecordSet{record},
		FormName:   "history",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	// diabetes is unset: unset never equals '1'.
	if compiled.Visible("diabetes_type") {
		t.Fatalf("diabetes_type must start hidden")
	}
	if !compiled.Visible("aspirin_dose") {
		t.Fatalf("aspirin_dose must start visible")
	}
	// fields without branching logic default to visible
	if !compiled.Visible("diabetes") {
		t.Fatalf("fields without branch logic are always visible")
	}
}

func TestCompileLiveExpressionUsesGetters(t *testing.T) {
	t.Parallel()

	fields := testMeta()
	compiled, err := Compile(meta.FormFields(fields, "history"), Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{}},
		FormName:   "history",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	toggle := findToggle(t, compiled, "diabetes_type")
	if !strings.Contains(toggle.Script, "getFieldValue('diabetes')") {
		t.Fatalf("on-form master must resolve live:\n%s", toggle.Script)
	}
	if !strings.Contains(toggle.Script, "clear_hidden_fld_values('diabetes_type')") {
		t.Fatalf("hide path must clear descendant values:\n%s", toggle.Script)
	}
	if !strings.Contains(toggle.Script, "execute_cascaded_branchs();") {
		t.Fatalf("hide path must drain the cascade queue:\n%s", toggle.Script)
	}
}

func TestCompileCrossEventReferenceIsFrozen(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "screened", Form: "intake", Type: meta.FieldTypeYesNo},
		{Name: "weight", Form: "visit", Type: meta.FieldTypeText,
			BranchExpr: "[e1][screened] = '1'"},
	}
	records := meta.RecordSet{
		meta.Record{meta.EventField: "e1", "screened": "1"},
		meta.Record{meta.EventField: "e2"},
	}

	// Rendering the visit form under e2: the e1 reference cannot change
	// while this instance is open, so it freezes to the snapshot literal.
	compiled, err := Compile(meta.FormFields(fields, "visit"), Context{
		Meta:       fields,
		Records:    records,
		FormName:   "visit",
		EventIndex: 1,
		EventNames: []string{"e1", "e2"},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	toggle := findToggle(t, compiled, "weight")
	if strings.Contains(toggle.Script, "getFieldValue") {
		t.Fatalf("cross-event reference must be frozen at render time:\n%s", toggle.Script)
	}
	if !strings.Contains(toggle.Script, "var setViz = branch_values_equal(1, '1');") {
		t.Fatalf("frozen snapshot value expected in live expression:\n%s", toggle.Script)
	}
	if !compiled.Visible("weight") {
		t.Fatalf("weight must be visible: e1 screened is '1'")
	}
}

func TestCompileCrossEventUnsetFreezesToUndefined(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "screened", Form: "intake", Type: meta.FieldTypeYesNo},
		{Name: "weight", Form: "visit", Type: meta.FieldTypeText,
			BranchExpr: "[e1][screened] = '1'"},
	}
	records := meta.RecordSet{
		meta.Record{meta.EventField: "e1"},
		meta.Record{meta.EventField: "e2"},
	}
	compiled, err := Compile(meta.FormFields(fields, "visit"), Context{
		Meta:       fields,
		Records:    records,
		FormName:   "visit",
		EventIndex: 1,
		EventNames: []string{"e1", "e2"},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	toggle := findToggle(t, compiled, "weight")
	if !strings.Contains(toggle.Script, "branch_values_equal(undefined, '1')") {
		t.Fatalf("unset frozen reference must emit undefined:\n%s", toggle.Script)
	}
	if compiled.Visible("weight") {
		t.Fatalf("weight must start hidden when screened is unset")
	}
}

func TestCompileOffFormReferenceOnSameEventIsFrozen(t *testing.T) {
	t.Parallel()

	fields := testMeta()
	record := meta.Record{"screened": "1"}
	compiled, err := Compile([]meta.Field{
		{Name: "followup", Form: "history", Type: meta.FieldTypeText,
			BranchExpr: "[screened] = '1'"},
	}, Context{
		Meta:       fields,
		Records:    meta.RecordSet{record},
		FormName:   "history",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	toggle := findToggle(t, compiled, "followup")
	// screened lives on the intake form; it is not editable here.
	if strings.Contains(toggle.Script, "getFieldValue") {
		t.Fatalf("off-form master must be frozen:\n%s", toggle.Script)
	}
	if !compiled.Visible("followup") {
		t.Fatalf("followup must be visible with screened = 1")
	}
}

func TestCompileMalformedExpressionFailsLoudly(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "x", Form: "f", Type: meta.FieldTypeText, BranchExpr: "[broken"},
	}
	_, err := Compile(fields, Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{}},
		FormName:   "f",
		EventIndex: -1,
	})
	if err == nil {
		t.Fatalf("malformed branch expression must be reported, not swallowed")
	}
	if !strings.Contains(err.Error(), `"x"`) {
		t.Fatalf("error should name the offending field: %v", err)
	}
}

func TestCompileZeroPaddedCodedValue(t *testing.T) {
	t.Parallel()

	// A coded value stored as "02" must match the literal '2' both in the
	// render-time snapshot and in the emitted toggle script.
	fields := []meta.Field{
		{Name: "site", Form: "f", Type: meta.FieldTypeText},
		{Name: "site_note", Form: "f", Type: meta.FieldTypeText,
			BranchExpr: "[site] = '2'"},
	}
	compiled, err := Compile(fields, Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{"site": "02"}},
		FormName:   "f",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !compiled.Visible("site_note") {
		t.Fatalf("snapshot must treat '02' and '2' as equal")
	}
	toggle := findToggle(t, compiled, "site_note")
	if !strings.Contains(toggle.Script, "branch_values_equal(getFieldValue('site'), '2')") {
		t.Fatalf("live expression must use the numeric-aware equality helper:\n%s", toggle.Script)
	}
	if strings.Contains(toggle.Script, "getFieldValue('site') == '2'") {
		t.Fatalf("plain string comparison would diverge from the snapshot:\n%s", toggle.Script)
	}
}

func TestCompileFrozenZeroPaddedValueCanonicalized(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "site", Form: "intake", Type: meta.FieldTypeText},
		{Name: "site_note", Form: "f", Type: meta.FieldTypeText,
			BranchExpr: "[site] = '2'"},
	}
	compiled, err := Compile([]meta.Field{fields[1]}, Context{
		Meta:       fields,
		Records:    meta.RecordSet{meta.Record{"site": "02"}},
		FormName:   "f",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	toggle := findToggle(t, compiled, "site_note")
	// "02" would parse as an octal literal in non-strict JS.
	if !strings.Contains(toggle.Script, "branch_values_equal(2, '2')") {
		t.Fatalf("frozen numeric value must be emitted in canonical form:\n%s", toggle.Script)
	}
	if !compiled.Visible("site_note") {
		t.Fatalf("snapshot must treat '02' and '2' as equal")
	}
}

// The snapshot verdict and the emitted script must agree at the moment a
// form is rendered, whatever kind of reference the expression holds: a
// live getter reads the same stored value the snapshot saw, and frozen
// references embed that value directly.
func TestCompileSnapshotMatchesEmittedScript(t *testing.T) {
	t.Parallel()

	fields := []meta.Field{
		{Name: "screened", Form: "intake", Type: meta.FieldTypeYesNo},
		{Name: "diabetes", Form: "history", Type: meta.FieldTypeYesNo},
		{Name: "dep_live", Form: "history", Type: meta.FieldTypeText,
			BranchExpr: "[diabetes] = '1'"},
		{Name: "dep_frozen", Form: "history", Type: meta.FieldTypeText,
			BranchExpr: "[screened] = '1'"},
		{Name: "dep_cross", Form: "history", Type: meta.FieldTypeText,
			BranchExpr: "[e1][screened] = '1'"},
	}
	records := meta.RecordSet{
		meta.Record{meta.EventField: "e1", "screened": "1"},
		meta.Record{meta.EventField: "e2", "diabetes": "1", "screened": "1"},
	}
	compiled, err := Compile(meta.FormFields(fields, "history"), Context{
		Meta:       fields,
		Records:    records,
		FormName:   "history",
		EventIndex: 1,
		EventNames: []string{"e1", "e2"},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	cases := []struct {
		field   string
		visible bool
		inJS    string
	}{
		// diabetes is on this form: live getter against the same record
		// value the snapshot read.
		{"dep_live", true, "branch_values_equal(getFieldValue('diabetes'), '1')"},
		// screened lives on another form: frozen to the snapshot value.
		{"dep_frozen", true, "branch_values_equal(1, '1')"},
		// e1 is not the current event: frozen, and e1 has screened set.
		{"dep_cross", true, "branch_values_equal(1, '1')"},
	}
	for _, tc := range cases {
		if got := compiled.Visible(tc.field); got != tc.visible {
			t.Fatalf("Visible(%q) = %v, want %v", tc.field, got, tc.visible)
		}
		toggle := findToggle(t, compiled, tc.field)
		if !strings.Contains(toggle.Script, tc.inJS) {
			t.Fatalf("script for %q must embed %q:\n%s", tc.field, tc.inJS, toggle.Script)
		}
	}
}

func findToggle(t *testing.T, c *Compiled, field string) Toggle {
	t.Helper()
	for _, toggle := range c.Toggles {
		if toggle.Field == field {
			return toggle
		}
	}
	t.Fatalf("no toggle generated for %q", field)
	return Toggle{}
}
