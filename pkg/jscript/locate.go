package jscript

import (
	"regexp"
	"unicode/utf8"
)

// AnchorIndex finds in the bytes the first occurrence of the anchor, and
// gives back the index of the 1st '{' after the beginning of the anchor.
// If the pattern isn't found or if the opening bracket isn't found, the function returns -1.
func AnchorIndex(b []byte, anchor *regexp.Regexp) int {
	i := anchor.FindIndex(b)
	if i == nil {
		return -1
	}
	for p := i[0]; p < len(b); p++ {
		if b[p] == '{' {
			return p
		}
	}
	return -1
}

// FindObjectEnd parses the buffer b from objectStart position to the closing '}' respecting structure nesting and strings.
// It returns the index following the closing bracket, or -1 when the closing bracket isn't found in the buffer
func FindObjectEnd(b []byte, objectStart int) int {
	if objectStart < 0 || objectStart >= len(b) || b[objectStart] != '{' {
		return -1
	}

	var quote rune // quote of the current string, 0 outside strings
	escaped := false
	nesting := 0

	for p := objectStart + 1; p < len(b); {
		r, s := utf8.DecodeRune(b[p:])
		p += s
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '{':
			nesting++
		case '}':
			if nesting == 0 {
				return p
			}
			nesting--
		}
	}
	return -1
}

// ObjectAtAnchor searches an object starting at given anchor and
// returns a slice of bytes containing the object.
// It returns nil when the object is not found, or when the object is not correctly defined.
func ObjectAtAnchor(b []byte, anchor *regexp.Regexp) []byte {
	start := AnchorIndex(b, anchor)
	if start < 0 {
		return nil
	}
	return objectAt(b, start)
}

// FirstObject returns the first balanced object of the buffer, or nil
func FirstObject(b []byte) []byte {
	for p := range b {
		if b[p] == '{' {
			return objectAt(b, p)
		}
	}
	return nil
}

func objectAt(b []byte, start int) []byte {
	b = b[start:]
	end := FindObjectEnd(b, 0)
	if end < 0 {
		return nil
	}
	return b[:end]
}
