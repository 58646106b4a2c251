package page

import (
	"bytes"
	"context"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/simulot/bilidl/pkg/myhttp"
)

// Logger is satisfied by the log contexts of mylog
type Logger interface {
	Printf(fmt string, a ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Fetcher retrieves the markup of one page. The document is read once and
// kept for the life of the Fetcher.
type Fetcher struct {
	client *myhttp.Client
	url    string
	query  url.Values
	logger Logger

	mu  sync.Mutex
	doc *goquery.Document
}

func NewFetcher(client *myhttp.Client, pageURL string, query url.Values, logger Logger) *Fetcher {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Fetcher{
		client: client,
		url:    pageURL,
		query:  query,
		logger: logger,
	}
}

// URL of the page, query included
func (f *Fetcher) URL() string {
	if len(f.query) == 0 {
		return f.url
	}
	return f.url + "?" + f.query.Encode()
}

// Document gives the parsed markup of the page. A failed fetch isn't kept,
// the next call tries again.
func (f *Fetcher) Document(ctx context.Context) (*goquery.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc != nil {
		return f.doc, nil
	}

	f.logger.Printf("[PAGE] Get %s", f.URL())
	b, err := f.client.Get(ctx, f.url, nil, f.query)
	if err != nil {
		return nil, &FetchError{URL: f.URL(), Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, &ParseError{What: "markup of " + f.URL(), Err: err}
	}
	f.doc = doc
	return doc, nil
}
