package page

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/simulot/bilidl/pkg/jscript"
)

// Boundary isolates the object literal from the text of a script
type Boundary interface {
	Isolate(text string) (string, error)
}

// BraceSpan takes the first balanced {...} of the text
type BraceSpan struct{}

func (BraceSpan) Isolate(text string) (string, error) {
	b := jscript.FirstObject([]byte(text))
	if b == nil {
		return "", errors.New("no balanced object")
	}
	return string(b), nil
}

func (BraceSpan) String() string { return "brace span" }

// DelimiterSplit splits the text on ';', drops Trailing segments, and keeps
// what follows the first '='
type DelimiterSplit struct {
	Trailing int
}

func (d DelimiterSplit) Isolate(text string) (string, error) {
	parts := strings.Split(text, ";")
	if len(parts) <= d.Trailing {
		return "", fmt.Errorf("expecting more than %d segments, got %d", d.Trailing, len(parts))
	}
	kept := strings.Join(parts[:len(parts)-d.Trailing], ";")
	i := strings.Index(kept, "=")
	if i < 0 {
		return "", errors.New("no assignment")
	}
	return strings.TrimSpace(kept[i+1:]), nil
}

func (d DelimiterSplit) String() string { return fmt.Sprintf("split minus %d", d.Trailing) }

// Locator tells where an embedded document is in the markup
type Locator struct {
	Script   int            // 1-based position of the script in the head, 0 for any script
	Anchor   *regexp.Regexp // When set, the script must match, and the text is taken from the match
	Boundary Boundary
}

// Text returns the script text holding the document
func (l Locator) Text(doc *goquery.Document) (string, error) {
	var text string
	found := false
	switch {
	case l.Script > 0:
		s := doc.Find("head > script").Eq(l.Script - 1)
		if s.Length() == 0 {
			return "", fmt.Errorf("no script #%d in head", l.Script)
		}
		text, found = s.Text(), true
		if l.Anchor != nil {
			text, found = fromAnchor(text, l.Anchor)
		}
	default:
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = s.Text()
			if l.Anchor == nil {
				found = true
			} else {
				text, found = fromAnchor(text, l.Anchor)
			}
			return !found
		})
	}
	if !found {
		return "", fmt.Errorf("no script matching %s", l)
	}
	return text, nil
}

func fromAnchor(text string, anchor *regexp.Regexp) (string, bool) {
	loc := anchor.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[0]:], true
}

// Isolate locates the script and extracts the object literal
func (l Locator) Isolate(doc *goquery.Document) (string, error) {
	text, err := l.Text(doc)
	if err != nil {
		return "", err
	}
	b := l.Boundary
	if b == nil {
		b = BraceSpan{}
	}
	return b.Isolate(text)
}

func (l Locator) String() string {
	s := []string{}
	if l.Script > 0 {
		s = append(s, fmt.Sprintf("script #%d", l.Script))
	}
	if l.Anchor != nil {
		s = append(s, fmt.Sprintf("anchor %q", l.Anchor.String()))
	}
	if len(s) == 0 {
		s = append(s, "first script")
	}
	return strings.Join(s, ", ")
}

// Variant is one known layout of the page
type Variant struct {
	Name         string
	InitialState Locator
	PlayInfo     Locator
}

// DefaultVariants are the layouts known so far, tried in this order
func DefaultVariants() []Variant {
	return []Variant{
		{
			Name: "anchored",
			InitialState: Locator{
				Anchor:   regexp.MustCompile(`__INITIAL_STATE__\s*=`),
				Boundary: BraceSpan{},
			},
			PlayInfo: Locator{
				Anchor:   regexp.MustCompile(`__playinfo__\s*=`),
				Boundary: BraceSpan{},
			},
		},
		{
			Name:         "script6",
			InitialState: Locator{Script: 6, Boundary: BraceSpan{}},
			PlayInfo:     Locator{Script: 5, Boundary: BraceSpan{}},
		},
		{
			Name:         "script5",
			InitialState: Locator{Script: 5, Boundary: DelimiterSplit{Trailing: 4}},
			PlayInfo:     Locator{Script: 4, Boundary: BraceSpan{}},
		},
	}
}
