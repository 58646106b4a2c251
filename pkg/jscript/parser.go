package jscript

import (
	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

// This package reads object initialisations from a Javascript source, which is a bit different from JSON:
// property names may be unquoted and strings may use apostrophes.
//
// The object is first isolated with AnchorIndex/FindObjectEnd, then parsed
// into a generic structure with Alec Thomas's Participle package.

// Structure object is a slice of Properties surrounded by brackets
type Structure struct {
	Properties []*Property `parser:"\"{\" [ @@ { \",\" @@ } ] \"}\""`
}

// Property has a name and a Value
type Property struct {
	Name  string `parser:"( @Ident | @String | @Number ) \":\""`
	Value *Value `parser:"@@"`
}

// Value represents any possible values type:
// - a String
// - a Number, kept as written
// - an identifier (true, false, null...)
// - a nested structure
// - an Array of value
//
// Different value types are a pointer to member of the type
type Value struct {
	Str    *string    `parser:"  @String"`
	Number *string    `parser:"| @Number"`
	Ident  *string    `parser:"| @Ident"`
	Struct *Structure `parser:"| @@"`
	Ar     []*Value   `parser:"| \"[\" [ @@ { \",\" @@ } ] \"]\""`
}

// Tokens:
// "Quoted" and 'Apostrophe' strings with escaped quote,
// numbers, identifiers and the structure characters {}[],:
// Spaces are elided.
const jsLexer = `(\s+)` +
	`|(?P<String>'[^'\\]*(?:\\.[^'\\]*)*'|"[^"\\]*(?:\\.[^"\\]*)*")` +
	`|(?P<Number>-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)` +
	`|(?P<Ident>[\p{L}_$][\p{L}\d_$]*)` +
	`|(?P<Punct>[,{}\[\]:])`

var (
	jsLexerDef = lexer.Must(lexer.Regexp(jsLexer))
	jsParser   = participle.MustBuild(
		&Structure{},
		participle.Lexer(jsLexerDef),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
)

// ParseObject parse javascript object literal into a *Structure.
// Its returns a nil structure and an error when the object can't be parsed
func ParseObject(b []byte) (*Structure, error) {
	s := &Structure{}
	err := jsParser.ParseBytes(b, s)
	if err != nil {
		return nil, err
	}
	return s, nil
}
