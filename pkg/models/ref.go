package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// VideoPageURL is the page of a video given by its short code
const VideoPageURL = "https://www.bilibili.com/video/"

var (
	reBvid     = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)
	reAid      = regexp.MustCompile(`av\d+`)
	reBareCode = regexp.MustCompile(`^(BV[0-9A-Za-z]{10}|av\d+)$`)
)

// Ref identifies a video. It is immutable once parsed.
type Ref struct {
	URL  string // Canonical page URL
	Code string // Short code found in the reference, BV... or av..., may be empty
}

// ParseRef accepts a page URL or a short code and gives the canonical reference
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if reBareCode.MatchString(s) {
		return Ref{URL: VideoPageURL + s, Code: s}, nil
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (!strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https")) {
		return Ref{}, fmt.Errorf("%q is neither a video url nor a short code", s)
	}
	u.Fragment = ""
	u.RawQuery = ""
	canonical, err := purell.NormalizeURLString(u.String(), purell.FlagsUsuallySafeGreedy)
	if err != nil {
		return Ref{}, fmt.Errorf("can't normalize %q: %w", s, err)
	}
	return Ref{URL: canonical, Code: codeOf(u.Path)}, nil
}

// MustParseRef is ParseRef that panics on error
func MustParseRef(s string) Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

func codeOf(p string) string {
	if c := reBvid.FindString(p); c != "" {
		return c
	}
	return reAid.FindString(p)
}

// Bvid gives the BV code of the reference, or an empty string
func (r Ref) Bvid() string {
	if strings.HasPrefix(r.Code, "BV") {
		return r.Code
	}
	return ""
}

func (r Ref) String() string {
	if r.Code != "" {
		return r.Code
	}
	return r.URL
}
