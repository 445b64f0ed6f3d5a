package exid

import (
	"strings"
	"testing"
)

func TestNewRecordFormEchoesPostedValue(t *testing.T) {
	t.Parallel()

	d := New()
	if !d.NewRecordFormRequired() {
		t.Fatal("NewRecordFormRequired() = false, want true")
	}

	blank := d.NewRecordForm(nil)
	if !strings.Contains(blank, `name="ex_id_form"`) {
		t.Errorf("NewRecordForm(nil) = %s", blank)
	}
	if strings.Contains(blank, "value=") {
		t.Error("NewRecordForm(nil) carried a value attribute")
	}

	repost := d.NewRecordForm(map[string]string{FormField: `ABC"123`})
	if !strings.Contains(repost, `value="ABC&#34;123"`) {
		t.Errorf("NewRecordForm() = %s, posted value not echoed escaped", repost)
	}
}

func TestProcessNewRecordForm(t *testing.T) {
	t.Parallel()

	d := New()

	id, err := d.ProcessNewRecordForm(map[string]string{FormField: " EX-42 "},
		func(id string) (bool, error) { return id == "EX-42", nil })
	if err != nil || id != "EX-42" {
		t.Errorf("ProcessNewRecordForm() = %q, %v", id, err)
	}

	id, err = d.ProcessNewRecordForm(map[string]string{FormField: "nope"},
		func(string) (bool, error) { return false, nil })
	if err != nil || id != "" {
		t.Errorf("ProcessNewRecordForm() rejected id = %q, %v", id, err)
	}

	id, err = d.ProcessNewRecordForm(map[string]string{FormField: "  "}, nil)
	if err != nil || id != "" {
		t.Errorf("ProcessNewRecordForm() blank id = %q, %v", id, err)
	}
}
