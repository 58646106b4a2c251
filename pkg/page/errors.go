package page

import (
	"fmt"
	"strings"
)

// FetchError is returned when the markup can't be retrieved
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("can't fetch page %s: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is returned when the markup or an embedded document can't be decoded
type ParseError struct {
	What string // What was parsed
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse %s: %s", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError is returned when an expected key is missing from a document
type SchemaError struct {
	Document string
	Path     []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing key %s", e.Document, strings.Join(e.Path, "."))
}
