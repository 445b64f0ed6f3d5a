package form

import (
	"strings"
	"testing"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-datasources/pkg/meta"
)

func demoMeta() []meta.Field {
	return []meta.Field{
		{Name: "record_id", Form: "screening", Type: "text", Label: "Record ID"},
		{
			Name: "diabetes", Form: "screening", Type: "yesno",
			Label:         "Has the subject been diagnosed with diabetes?",
			SectionHeader: "Medical History",
			RequiredRaw:   "Y",
		},
		{
			Name: "diabetes_type", Form: "screening", Type: "dropdown",
			Label:      "Type of diabetes",
			RawChoices: "1, Type 1 | 2, Type 2",
			BranchExpr: "[diabetes] = '1'",
			Note:       "leave blank if unknown",
		},
		{
			Name: "meds", Form: "screening", Type: "checkbox",
			Label:      "Current medications",
			RawChoices: "1, Aspirin | 2, Insulin",
		},
		{
			Name: "visit_date", Form: "screening", Type: "text",
			Label: "Visit date", Validation: "date_ymd",
		},
		{Name: "height", Form: "followup", Type: "text", Label: "Height"},
	}
}

func TestBuildRendersFormFieldsOnly(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7", "diabetes": "1"}},
		FormName:   "screening",
		RecordID:   "7",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if strings.Contains(res.HTML, `name="height"`) {
		t.Error("Build() rendered a field belonging to another form")
	}
	if strings.Contains(res.HTML, `name="record_id"`) {
		t.Error("Build() rendered the record identifier field")
	}
	for _, name := range []string{"diabetes", "diabetes_type", "meds___1", "meds___2", "visit_date"} {
		if !strings.Contains(res.HTML, `name="`+name+`"`) {
			t.Errorf("Build() missing input for %q", name)
		}
	}
}

func TestBuildSynthesizesCompletionField(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7", "screening_complete": "2"}},
		FormName:   "screening",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(res.HTML, `name="screening_complete"`) {
		t.Fatal("Build() missing the completion dropdown")
	}
	if !strings.Contains(res.HTML, `<option value="2" selected="selected"`) {
		t.Error("Build() did not select the stored completion status")
	}
	if got := res.Fields["screening_complete"].Type; got != meta.FieldTypeDropdown {
		t.Errorf("Fields[screening_complete].Type = %q, want dropdown", got)
	}
}

func TestBuildHidesUnsatisfiedDependents(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7", "diabetes": "0"}},
		FormName:   "screening",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(res.HTML, `<tr id="diabetes_type" style="display:none">`) {
		t.Error("Build() did not hide the unsatisfied dependent row")
	}
	if !strings.Contains(res.HTML, "function diabetes_type_branch_logic()") {
		t.Error("Build() missing the dependent's toggle function")
	}
	if !strings.Contains(res.HTML, `onchange="diabetes_type_branch_logic(); "`) {
		t.Error("Build() missing the master's onchange wiring")
	}
}

func TestBuildEmptyRecordSet(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    nil,
		FormName:   "screening",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(res.HTML, "Error retrieving record") {
		t.Errorf("Build() = %q, want the missing-record message", res.HTML)
	}
	if len(res.Fields) != 0 {
		t.Errorf("Build() recorded %d fields for an empty record set", len(res.Fields))
	}
}

func TestBuildLongitudinalHeaderAndRow(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	records := meta.RecordSet{
		{"record_id": "7", "redcap_event_name": "visit_1_arm_1", "diabetes": "1"},
		{"record_id": "7", "redcap_event_name": "visit_2_arm_1", "diabetes": "0"},
	}
	res, err := b.Build(Request{
		Meta:        demoMeta(),
		Records:     records,
		FormName:    "screening",
		EventIndex:  1,
		EventNames:  []string{"visit_1_arm_1", "visit_2_arm_1"},
		EventLabels: []string{"Visit 1", "Visit 2"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(res.HTML, "Event Name: Visit 2") {
		t.Error("Build() header missing the event label")
	}
	// the visit-2 row drives the widgets, so diabetes renders "No"
	if !strings.Contains(res.HTML, `checked="checked" name="diabetes" value="0"`) {
		t.Error("Build() did not populate values from the event's record row")
	}
}

func TestBuildEventIndexOutOfRange(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	_, err = b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7"}},
		FormName:   "screening",
		EventIndex: 3,
		EventNames: []string{"visit_1_arm_1"},
	})
	if err == nil {
		t.Fatal("Build() accepted an out-of-range event index")
	}
}

func TestBuildThemeOverrides(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(WithTheme(&theme.RendererConfig{
		Tokens:  map[string]string{"table": "form-grid"},
		CSSVars: map[string]string{"--form-accent": "#336699"},
	}))
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7"}},
		FormName:   "screening",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(res.HTML, `<table class="form-grid">`) {
		t.Error("Build() ignored the table token override")
	}
	if !strings.Contains(res.HTML, "--form-accent: #336699;") {
		t.Error("Build() missing the CSS variable block")
	}
}

func TestBuildRequiredAndNoteAnnotations(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(Request{
		Meta:       demoMeta(),
		Records:    meta.RecordSet{{"record_id": "7"}},
		FormName:   "screening",
		EventIndex: -1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(res.HTML, "* must provide value") {
		t.Error("Build() missing the required-field note")
	}
	if !strings.Contains(res.HTML, "leave blank if unknown") {
		t.Error("Build() missing the field note")
	}
	if !strings.Contains(res.HTML, `<tr><th colspan="2">Medical History</th></tr>`) {
		t.Error("Build() missing the section header row")
	}
}
