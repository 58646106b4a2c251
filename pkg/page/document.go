package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/simulot/bilidl/pkg/jscript"
)

// Document is a decoded embedded document
type Document struct {
	Name string
	Data map[string]interface{}
}

// Decode reads the object as JSON, and as a javascript object literal when it isn't JSON
func Decode(name, text string) (*Document, error) {
	var data map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	err := dec.Decode(&data)
	if err != nil {
		var jsErr error
		data, jsErr = jscript.Decode([]byte(text))
		if jsErr != nil {
			return nil, &ParseError{What: name, Err: err}
		}
	}
	if data == nil {
		return nil, &ParseError{What: name, Err: fmt.Errorf("not an object")}
	}
	return &Document{Name: name, Data: data}, nil
}

// Lookup follows the key path. A path element is a key for objects and an index for arrays.
func (d *Document) Lookup(path ...string) (interface{}, error) {
	var v interface{} = d.Data
	for i, k := range path {
		switch n := v.(type) {
		case map[string]interface{}:
			var ok bool
			v, ok = n[k]
			if !ok {
				return nil, d.missing(path[:i+1])
			}
		case []interface{}:
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, d.missing(path[:i+1])
			}
			v = n[idx]
		default:
			return nil, d.missing(path[:i+1])
		}
	}
	return v, nil
}

func (d *Document) missing(path []string) error {
	return &SchemaError{Document: d.Name, Path: append([]string(nil), path...)}
}

// Has tells if the key path exists and isn't null
func (d *Document) Has(path ...string) bool {
	v, err := d.Lookup(path...)
	return err == nil && v != nil
}

// String gives the string at the key path. Numbers are formatted.
func (d *Document) String(path ...string) (string, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	}
	return "", d.missing(path)
}

// Int gives the integer at the key path
func (d *Document) Int(path ...string) (int64, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), nil
		}
	case float64:
		return int64(n), nil
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, d.missing(path)
}

// List gives the array at the key path. A null value is an empty list.
func (d *Document) List(path ...string) ([]interface{}, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return nil, err
	}
	switch l := v.(type) {
	case []interface{}:
		return l, nil
	case nil:
		return nil, nil
	}
	return nil, d.missing(path)
}

// Sub wraps the object at the key path into a Document
func (d *Document) Sub(path ...string) (*Document, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, d.missing(path)
	}
	return &Document{Name: d.Name, Data: m}, nil
}

func itoa(i int) string { return strconv.Itoa(i) }
