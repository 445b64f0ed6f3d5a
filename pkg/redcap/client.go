// Package redcap talks to a REDCap project: a thin API client over the
// token-authenticated form-post protocol, and a driver assembling data-entry
// forms from project metadata and stored records.
package redcap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-datasources/pkg/datasource"
	"github.com/goliatone/go-datasources/pkg/meta"
)

// ReadOptions narrows a record export. Empty slices mean "all".
type ReadOptions struct {
	Records []string
	Fields  []string
	Forms   []string
	Events  []string
}

// Client is the REDCap project API surface the driver needs. Tokens are
// scoped to one user and one project, so a Client binds to exactly one
// project.
type Client interface {
	// Metadata exports the data dictionary, optionally limited to forms.
	Metadata(ctx context.Context, forms ...string) ([]meta.Field, error)
	// Records exports stored records as flat rows.
	Records(ctx context.Context, opts ReadOptions) (meta.RecordSet, error)
	// Import writes a single-record XML document, returning the number of
	// records the project reports as touched.
	Import(ctx context.Context, document string) (int, error)
}

// APIClient is the HTTP implementation of Client. No retries: the caller
// owns failure policy.
type APIClient struct {
	endpoint string
	token    string
	httpc    *http.Client
}

// ClientOption customizes an APIClient.
type ClientOption func(*APIClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *APIClient) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// NewAPIClient constructs an APIClient for one project endpoint and token.
func NewAPIClient(endpoint, token string, options ...ClientOption) *APIClient {
	c := &APIClient{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		httpc:    http.DefaultClient,
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Endpoint returns the project API URL.
func (c *APIClient) Endpoint() string {
	return c.endpoint
}

// Metadata implements Client.
func (c *APIClient) Metadata(ctx context.Context, forms ...string) ([]meta.Field, error) {
	params := url.Values{
		"content": {"metadata"},
		"format":  {"json"},
	}
	if len(forms) > 0 {
		params.Set("forms", strings.Join(forms, ","))
	}
	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}
	fields, err := meta.DecodeMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("redcap: %w", err)
	}
	return fields, nil
}

// Records implements Client.
func (c *APIClient) Records(ctx context.Context, opts ReadOptions) (meta.RecordSet, error) {
	params := url.Values{
		"content": {"record"},
		"format":  {"json"},
		"type":    {"flat"},
	}
	setList(params, "records", opts.Records)
	setList(params, "fields", opts.Fields)
	setList(params, "forms", opts.Forms)
	setList(params, "events", opts.Events)

	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}
	records, err := meta.DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("redcap: %w", err)
	}
	return records, nil
}

var countPattern = regexp.MustCompile(`<count>\s*(\d+)\s*</count>`)

// Import implements Client. The response format changed across REDCap
// versions: newer projects answer <count>N</count>, older ones a bare
// integer; both are accepted.
func (c *APIClient) Import(ctx context.Context, document string) (int, error) {
	params := url.Values{
		"content":           {"record"},
		"format":            {"xml"},
		"type":              {"flat"},
		"overwriteBehavior": {"overwrite"},
		"data":              {document},
	}
	body, err := c.post(ctx, params)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(body))
	if m := countPattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	count, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("redcap: unexpected import response %q", text)
	}
	return count, nil
}

func setList(params url.Values, key string, values []string) {
	if len(values) > 0 {
		params.Set(key, strings.Join(values, ","))
	}
}

func (c *APIClient) post(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("redcap: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redcap: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("redcap: read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body, req.URL.Path); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps the REDCap status conventions onto the shared error
// taxonomy.
func checkStatus(status int, body []byte, path string) error {
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusBadRequest:
		return &datasource.ValidationError{Parts: parseValidationBody(string(body))}
	case status == http.StatusNotAcceptable:
		return &datasource.ValidationError{Parts: []datasource.ValidationPart{
			{Reason: "the data being imported was formatted incorrectly"},
		}}
	case status == http.StatusNotFound:
		return &datasource.NotFoundError{Path: path}
	case status >= 500:
		return &datasource.ServerError{Status: status}
	default:
		return fmt.Errorf("redcap: unexpected response status %d", status)
	}
}

// parseValidationBody splits a 400 body into per-field parts. Each line is
// "record,field,value,reason"; a line that does not fit becomes a bare
// reason.
func parseValidationBody(body string) []datasource.ValidationPart {
	var parts []datasource.ValidationPart
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimSpace(strings.Trim(line, `"`))
		if line == "" {
			continue
		}
		pieces := strings.SplitN(line, ",", 4)
		if len(pieces) < 4 {
			parts = append(parts, datasource.ValidationPart{Reason: line})
			continue
		}
		parts = append(parts, datasource.ValidationPart{
			Field:  strings.TrimSpace(pieces[1]),
			Value:  strings.TrimSpace(pieces[2]),
			Reason: strings.TrimSpace(strings.Trim(pieces[3], `"`)),
		})
	}
	return parts
}
