// Package datasource holds the error taxonomy shared by every external-system
// driver. Callers discriminate with errors.As; drivers never panic on remote
// failures.
package datasource

import (
	"fmt"
	"strings"
)

// NotFoundError reports a remote endpoint path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "datasource: page not found: " + e.Path
}

// ServerError reports a remote-side failure (HTTP 5xx).
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("datasource: error at server (status %d)", e.Status)
}

// ValidationPart is one field-level rejection reported by the remote system.
type ValidationPart struct {
	Field  string
	Value  string
	Reason string
}

// ValidationError reports submitted data the remote system refused. Every
// rejected field is carried so callers can surface all of them at once.
type ValidationError struct {
	Parts []ValidationPart
}

func (e *ValidationError) Error() string {
	if len(e.Parts) == 0 {
		return "datasource: submitted data was rejected"
	}
	msgs := make([]string, 0, len(e.Parts))
	for _, p := range e.Parts {
		msgs = append(msgs, fmt.Sprintf("you entered %q for the field %q: %s", p.Value, p.Field, p.Reason))
	}
	return "datasource: " + strings.Join(msgs, "; ")
}

// RecordDoesNotExistError reports a single-record lookup that matched
// nothing.
type RecordDoesNotExistError struct {
	URL      string
	Path     string
	RecordID string
}

func (e *RecordDoesNotExistError) Error() string {
	return fmt.Sprintf("datasource: no record found for id %q at %s:%s", e.RecordID, e.URL, e.Path)
}

// RecordCreationError reports a failed record creation, wrapping the remote
// cause.
type RecordCreationError struct {
	URL      string
	Path     string
	RecordID string
	Cause    error
}

func (e *RecordCreationError) Error() string {
	return fmt.Sprintf("datasource: record %q could not be created at %s:%s: %v",
		e.RecordID, e.URL, e.Path, e.Cause)
}

func (e *RecordCreationError) Unwrap() error {
	return e.Cause
}

// MultipleRecordsError reports an import that touched a number of records
// other than the single one intended.
type MultipleRecordsError struct {
	Count int
}

func (e *MultipleRecordsError) Error() string {
	return fmt.Sprintf("datasource: import touched %d records, expected exactly 1", e.Count)
}

// RecordIDValidator checks a proposed record identifier against the host
// platform, reporting whether it is acceptable for a new record.
type RecordIDValidator func(id string) (bool, error)
