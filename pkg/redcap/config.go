package redcap

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config describes one REDCap project to the driver: either a flat list of
// form names (classic projects) or the event names, labels, and form/event
// availability grid (longitudinal projects).
type Config struct {
	FormNames        []string
	UniqueEventNames []string
	EventLabels      []string
	// FormData maps each form to its per-event availability; FormOrder
	// preserves the document order of the grid, which fixes the meaning of
	// the numeric form specs.
	FormData  map[string][]bool
	FormOrder []string
	// RecordIDField overrides the record identifier field name.
	RecordIDField string
}

type rawConfig struct {
	FormNames        []string  `yaml:"form_names"`
	UniqueEventNames []string  `yaml:"unique_event_names"`
	EventLabels      []string  `yaml:"event_labels"`
	FormData         yaml.Node `yaml:"form_data"`
	RecordIDField    string    `yaml:"record_id_field_name"`
}

// ParseConfig decodes a YAML or JSON configuration document. Form specs
// index into the grid by document order, so form_data is decoded through
// the node API rather than into a map.
func ParseConfig(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("redcap: parse configuration: %w", err)
	}

	cfg := &Config{
		FormNames:        raw.FormNames,
		UniqueEventNames: raw.UniqueEventNames,
		EventLabels:      raw.EventLabels,
		RecordIDField:    raw.RecordIDField,
	}

	if !raw.FormData.IsZero() {
		if raw.FormData.Kind != yaml.MappingNode {
			return nil, errors.New("redcap: parse configuration: form_data must be a mapping")
		}
		cfg.FormData = make(map[string][]bool, len(raw.FormData.Content)/2)
		for i := 0; i+1 < len(raw.FormData.Content); i += 2 {
			keyNode := raw.FormData.Content[i]
			valNode := raw.FormData.Content[i+1]

			var flags []int
			if err := valNode.Decode(&flags); err != nil {
				return nil, fmt.Errorf("redcap: parse configuration: form_data[%s]: %w", keyNode.Value, err)
			}
			avail := make([]bool, len(flags))
			for j, f := range flags {
				avail[j] = f == 1
			}
			cfg.FormOrder = append(cfg.FormOrder, keyNode.Value)
			cfg.FormData[keyNode.Value] = avail
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.FormNames) > 0 {
		return nil
	}
	if len(c.UniqueEventNames) == 0 {
		return errors.New("redcap: configuration needs form_names or unique_event_names")
	}
	if len(c.EventLabels) != len(c.UniqueEventNames) {
		return fmt.Errorf("redcap: %d event labels for %d events",
			len(c.EventLabels), len(c.UniqueEventNames))
	}
	if len(c.FormOrder) == 0 {
		return errors.New("redcap: longitudinal configuration needs form_data")
	}
	for _, form := range c.FormOrder {
		if got := len(c.FormData[form]); got != len(c.UniqueEventNames) {
			return fmt.Errorf("redcap: form_data[%s] has %d entries for %d events",
				form, got, len(c.UniqueEventNames))
		}
	}
	return nil
}

// Longitudinal reports whether the project has events.
func (c *Config) Longitudinal() bool {
	return len(c.FormNames) == 0
}

// Forms returns the ordered form names the numeric form specs index into.
func (c *Config) Forms() []string {
	if c.Longitudinal() {
		return c.FormOrder
	}
	return c.FormNames
}

// FormIndex returns the numeric index of a form name, or -1.
func (c *Config) FormIndex(name string) int {
	for i, form := range c.Forms() {
		if form == name {
			return i
		}
	}
	return -1
}
