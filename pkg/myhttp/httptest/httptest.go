// Package httptest provides an http.RoundTripper answering from memory or
// from files, and recording every request it gets.
package httptest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
)

// Handler answers a request
type Handler func(r *http.Request) (*http.Response, error)

// Call is a request received by the transport
type Call struct {
	Method string
	URL    string
	Header http.Header
}

type HttpTest struct {
	UrlToFilefn func(u string) string

	mu     sync.Mutex
	routes map[string]Handler
	calls  []Call
}

func New(conf ...func(ht *HttpTest)) *HttpTest {
	ht := &HttpTest{
		routes: map[string]Handler{},
	}
	for _, fn := range conf {
		fn(ht)
	}
	return ht
}

// WithURLToFile serves URLs without route from the file given by fn
func WithURLToFile(fn func(u string) string) func(ht *HttpTest) {
	return func(ht *HttpTest) {
		ht.UrlToFilefn = fn
	}
}

// Handle registers h for the URL. A route with a query string only matches
// the same query, a route without query matches any query.
func (ht *HttpTest) Handle(u string, h Handler) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.routes[u] = h
}

// HandleBytes answers the URL with the given status and body
func (ht *HttpTest) HandleBytes(u string, status int, body []byte) {
	ht.Handle(u, Bytes(status, body))
}

// RoundTrip implements http.RoundTripper
func (ht *HttpTest) RoundTrip(r *http.Request) (*http.Response, error) {
	full := ""
	short := ""
	if r != nil && r.URL != nil {
		full = r.URL.String()
		u := *r.URL
		u.RawQuery = ""
		short = u.String()
	}

	ht.mu.Lock()
	ht.calls = append(ht.calls, Call{Method: r.Method, URL: full, Header: r.Header.Clone()})
	h, ok := ht.routes[full]
	if !ok {
		h, ok = ht.routes[short]
	}
	ht.mu.Unlock()

	if ok {
		resp, err := h(r)
		if resp != nil && resp.Request == nil {
			resp.Request = r
		}
		return resp, err
	}
	if ht.UrlToFilefn != nil {
		return File(ht.UrlToFilefn(full))(r)
	}
	return Bytes(http.StatusNotFound, []byte("not found"))(r)
}

// Calls returns the requests received so far
func (ht *HttpTest) Calls() []Call {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return append([]Call(nil), ht.calls...)
}

// Count counts the requests received with the given method. An empty method counts all requests.
func (ht *HttpTest) Count(method string) int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	n := 0
	for _, c := range ht.calls {
		if method == "" || c.Method == method {
			n++
		}
	}
	return n
}

// Reset forgets received requests
func (ht *HttpTest) Reset() {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.calls = nil
}

// Bytes answers with a status and a body
func Bytes(status int, body []byte) Handler {
	return func(r *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Content-Length", strconv.Itoa(len(body)))
		return &http.Response{
			Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
			StatusCode:    status,
			Proto:         "HTTP/1.0",
			ProtoMajor:    1,
			ProtoMinor:    0,
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Close:         true,
			Request:       r,
			Header:        header,
		}, nil
	}
}

// File answers with the content of a file
func File(name string) Handler {
	return func(r *http.Request) (*http.Response, error) {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("FileTransport.RoundTrip: %v", err)
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("FileTransport.RoundTrip: %v", err)
		}

		header := make(http.Header)
		header.Add("Content-Type", "text/html")
		return &http.Response{
			Status:        "200 OK",
			StatusCode:    200,
			Proto:         "HTTP/1.0",
			ProtoMajor:    1,
			ProtoMinor:    0,
			Body:          f,
			ContentLength: fi.Size(),
			Close:         true,
			Request:       r,
			Header:        header,
		}, nil
	}
}

// Fail returns a transport error
func Fail(err error) Handler {
	return func(r *http.Request) (*http.Response, error) {
		return nil, err
	}
}

// Sequence answers the n-th call with the n-th handler, and repeats the
// last handler afterward.
func Sequence(handlers ...Handler) Handler {
	var (
		mu sync.Mutex
		n  int
	)
	return func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		if i >= len(handlers) {
			i = len(handlers) - 1
		}
		return handlers[i](r)
	}
}
