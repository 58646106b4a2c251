package jscript

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// ParseObjectAtAnchor locate the object assignent at the anchor and return a Structure with its content
func ParseObjectAtAnchor(b []byte, anchor *regexp.Regexp) (*Structure, error) {
	b = ObjectAtAnchor(b, anchor)
	if b == nil {
		return nil, fmt.Errorf("can't find object in the buffer")
	}
	return ParseObject(b)
}

// Decode parses a javascript object literal into the values encoding/json
// produces with UseNumber: map[string]interface{}, []interface{}, string,
// json.Number, bool and nil.
func Decode(b []byte) (map[string]interface{}, error) {
	s, err := ParseObject(b)
	if err != nil {
		return nil, err
	}
	return s.Map(), nil
}

// Property get object property's value
func (s *Structure) Property(name string) *Value {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return nil
}

// Map converts the structure into a generic map. When a name is repeated, the last value wins.
func (s *Structure) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Properties))
	for _, p := range s.Properties {
		m[p.Name] = p.Value.Interface()
	}
	return m
}

// String return string when the Value has type String
func (v *Value) String() string {
	if v != nil && v.Str != nil {
		return *v.Str
	}
	return ""
}

// Null return true when the Value is null or undefined
func (v *Value) Null() bool {
	return v != nil && v.Ident != nil && (*v.Ident == "null" || *v.Ident == "undefined")
}

// Property return the value of the property named "name"
func (v *Value) Property(name string) *Value {
	if v != nil && v.Struct != nil {
		return v.Struct.Property(name)
	}
	return nil
}

// Strings return a slice of string when the value has type Array of string
func (v *Value) Strings() []string {
	a := []string{}
	if v == nil {
		return a
	}
	for _, s := range v.Ar {
		if s.Str != nil {
			a = append(a, *s.Str)
		}
	}
	return a
}

// Interface converts the value into its generic form
func (v *Value) Interface() interface{} {
	switch {
	case v == nil:
		return nil
	case v.Str != nil:
		return *v.Str
	case v.Number != nil:
		return json.Number(*v.Number)
	case v.Ident != nil:
		switch *v.Ident {
		case "true":
			return true
		case "false":
			return false
		case "null", "undefined":
			return nil
		}
		return *v.Ident
	case v.Struct != nil:
		return v.Struct.Map()
	}
	a := make([]interface{}, 0, len(v.Ar))
	for _, e := range v.Ar {
		a = append(a, e.Interface())
	}
	return a
}
