package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-datasources/pkg/meta"
	"github.com/goliatone/go-datasources/pkg/redcap"
)

func main() {
	configPath := flag.String("config", "", "project configuration file (YAML or JSON)")
	endpoint := flag.String("url", "", "REDCap API endpoint")
	token := flag.String("token", "", "REDCap API token")
	metadataPath := flag.String("metadata", "", "metadata export, JSON or YAML (offline mode)")
	recordsPath := flag.String("records", "", "records export, JSON or YAML (offline mode)")
	recordID := flag.String("record", "", "record id to render")
	formSpec := flag.String("form", "", "form spec (N or N_M); prompts if empty")
	output := flag.String("output", "", "output file (stdout if empty)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("a -config file is required")
	}
	config, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	cfg, err := redcap.ParseConfig(config)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	client, err := buildClient(*endpoint, *token, *metadataPath, *recordsPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	driver, err := redcap.NewDriver(client)
	if err != nil {
		log.Fatalf("Failed to build driver: %v", err)
	}
	if err := driver.Configure(config); err != nil {
		log.Fatalf("Failed to configure driver: %v", err)
	}

	spec := *formSpec
	if spec == "" {
		spec, err = promptForForm(cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	res, err := driver.RenderForm(context.Background(), *recordID, spec)
	if err != nil {
		log.Fatalf("Failed to render form: %v", err)
	}
	if res.HTML == "" {
		log.Fatalf("No form for spec %q", spec)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(res.HTML), 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("Form written to %s\n", *output)
	} else {
		fmt.Println(res.HTML)
	}
}

func buildClient(endpoint, token, metadataPath, recordsPath string) (redcap.Client, error) {
	if endpoint != "" {
		if token == "" {
			return nil, errors.New("a -token is required with -url")
		}
		return redcap.NewAPIClient(endpoint, token), nil
	}
	if metadataPath == "" || recordsPath == "" {
		return nil, errors.New("need either -url and -token, or -metadata and -records")
	}

	metadata, err := readFixture(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	fields, err := meta.DecodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	data, err := readFixture(recordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	records, err := meta.DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	return &fixtureClient{fields: fields, records: records}, nil
}

// readFixture loads an exported fixture file and normalizes it to JSON.
// Exports come out of the API as JSON; hand-maintained fixtures are often
// YAML, which parses as a superset of JSON, so everything funnels through a
// YAML decode and a JSON re-encode.
func readFixture(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// promptForForm lists every reachable form instance and returns the spec of
// the chosen one.
func promptForForm(cfg *redcap.Config) (string, error) {
	specs := make(map[string]string)
	var options []string

	if !cfg.Longitudinal() {
		for i, name := range cfg.Forms() {
			label := fmt.Sprintf("%s (%d)", name, i)
			options = append(options, label)
			specs[label] = strconv.Itoa(i)
		}
	} else {
		for i, name := range cfg.Forms() {
			for j, available := range cfg.FormData[name] {
				if !available {
					continue
				}
				label := fmt.Sprintf("%s @ %s (%d_%d)", name, cfg.EventLabels[j], i, j)
				options = append(options, label)
				specs[label] = fmt.Sprintf("%d_%d", i, j)
			}
		}
	}

	var chosen string
	prompt := &survey.Select{
		Message: "Which form?",
		Options: options,
	}
	if err := survey.AskOne(prompt, &chosen); err != nil {
		return "", err
	}
	return specs[chosen], nil
}

// fixtureClient serves exported metadata and record files, for rendering
// forms without project access.
type fixtureClient struct {
	fields  []meta.Field
	records meta.RecordSet
}

func (c *fixtureClient) Metadata(ctx context.Context, forms ...string) ([]meta.Field, error) {
	if len(forms) == 0 {
		return c.fields, nil
	}
	var out []meta.Field
	for _, name := range forms {
		out = append(out, meta.FormFields(c.fields, name)...)
	}
	return out, nil
}

func (c *fixtureClient) Records(ctx context.Context, opts redcap.ReadOptions) (meta.RecordSet, error) {
	return c.records, nil
}

func (c *fixtureClient) Import(ctx context.Context, document string) (int, error) {
	return 0, errors.New("fixture client cannot import records")
}
