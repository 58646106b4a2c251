// Package bilibili downloads videos from www.bilibili.com.
//
// A Client holds the shared configuration: HTTP client, muxer and page layouts.
// A Video is one resource. It keeps what has been read from its pages for its
// whole life, and is safe for concurrent use.
package bilibili

import (
	"context"
	"sort"
	"time"

	"github.com/simulot/bilidl/pkg/dispatcher"
	"github.com/simulot/bilidl/pkg/download"
	"github.com/simulot/bilidl/pkg/job"
	"github.com/simulot/bilidl/pkg/models"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/mylog"
	"github.com/simulot/bilidl/pkg/page"
)

// Referer sent with media requests
const Referer = "https://www.bilibili.com/"

type Client struct {
	http            *myhttp.Client
	httpOptions     []func(c *myhttp.Client)
	muxer           *download.Muxer
	variants        []page.Variant
	log             *mylog.MyLog
	resourceTimeout time.Duration
	concurrency     int
	publisher       dispatcher.Publisher
}

// WithHTTPClient sets the HTTP client. Options given with WithHTTPOptions are then ignored.
func WithHTTPClient(h *myhttp.Client) func(c *Client) {
	return func(c *Client) {
		c.http = h
	}
}

// WithHTTPOptions configures the HTTP client built by NewClient
func WithHTTPOptions(opts ...func(c *myhttp.Client)) func(c *Client) {
	return func(c *Client) {
		c.httpOptions = append(c.httpOptions, opts...)
	}
}

func WithMuxer(m *download.Muxer) func(c *Client) {
	return func(c *Client) {
		c.muxer = m
	}
}

// WithVariants sets the page layouts to try, in order
func WithVariants(v []page.Variant) func(c *Client) {
	return func(c *Client) {
		c.variants = v
	}
}

func WithLogger(l *mylog.MyLog) func(c *Client) {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPublisher reports the status changes of download jobs
func WithPublisher(p dispatcher.Publisher) func(c *Client) {
	return func(c *Client) {
		c.publisher = p
	}
}

// WithResourceTimeout bounds the time given to each resource of a batch.
// Zero means no limit.
func WithResourceTimeout(d time.Duration) func(c *Client) {
	return func(c *Client) {
		c.resourceTimeout = d
	}
}

// WithConcurrency sets the number of resources fetched at the same time.
// It defaults to the connection pool size of the HTTP client.
func WithConcurrency(n int) func(c *Client) {
	return func(c *Client) {
		c.concurrency = n
	}
}

func NewClient(conf ...func(c *Client)) *Client {
	c := &Client{
		log: mylog.Discard(),
	}
	for _, fn := range conf {
		fn(c)
	}
	if c.http == nil {
		opts := append([]func(*myhttp.Client){myhttp.WithLogger(c.log.Debug())}, c.httpOptions...)
		c.http = myhttp.NewClient(opts...)
	}
	if c.muxer == nil {
		c.muxer = download.NewMuxer(download.WithLogger(c.log.Debug()))
	}
	if len(c.variants) == 0 {
		c.variants = page.DefaultVariants()
	}
	if c.concurrency < 1 {
		c.concurrency = c.http.PoolSize()
	}
	return c
}

func (c *Client) publish(p models.Progress) {
	if c.publisher != nil {
		c.publisher.Publish(p)
	}
}

// HTTP gives the client's HTTP client
func (c *Client) HTTP() *myhttp.Client { return c.http }

// Request is a part of a resource to fetch. Part 0 stands for the first one.
type Request struct {
	Ref  models.Ref
	Part int
}

// Result is the outcome of a Request
type Result struct {
	Index   int // Position of the request in the batch
	Request Request
	Bvid    string // Short code, when known
	Data    []byte
	Err     error
	Video   *Video // Resource of the request, to query more details
}

// Fetch downloads the first part of the resource
func (c *Client) Fetch(ctx context.Context, ref models.Ref) ([]byte, error) {
	ctx, cancel := c.resourceContext(ctx)
	defer cancel()
	return c.NewVideo(ref).Fetch(ctx)
}

// FetchStream downloads all requests, at most concurrency at a time.
// Results are delivered as they come. The channel is closed when all requests are done.
// A failing request doesn't stop the others.
func (c *Client) FetchStream(ctx context.Context, reqs []Request) <-chan Result {
	out := make(chan Result, len(reqs))
	tasks := make([]job.Task, 0, len(reqs))
	for i, r := range reqs {
		i, r := i, r
		tasks = append(tasks, func(ctx context.Context) {
			out <- c.fetch(ctx, c.NewVideo(r.Ref), i, r)
		})
	}
	go func() {
		defer close(out)
		j := job.NewJob("batch", c.concurrency).WithLogger(c.log.Debug())
		j.RunTasks(ctx, tasks...)
	}()
	return out
}

// FetchBatch downloads all requests and returns when all of them are done.
// There is one result per request, in the order of the requests.
func (c *Client) FetchBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, 0, len(reqs))
	for r := range c.FetchStream(ctx, reqs) {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// FetchParts downloads the parts begin to end of the resource.
// An end of 0 stands for the last part.
func (c *Client) FetchParts(ctx context.Context, ref models.Ref, begin, end int) ([]Result, error) {
	v := c.NewVideo(ref)
	count, err := v.Parts(ctx)
	if err != nil {
		return nil, err
	}
	if begin < 1 {
		begin = 1
	}
	if end == 0 {
		end = count
	}
	for _, p := range []int{begin, end} {
		if p < 1 || p > count {
			return nil, &RangeError{Part: p, Count: count}
		}
	}
	if begin > end {
		return nil, &RangeError{Part: begin, Count: count}
	}

	out := make(chan Result, end-begin+1)
	tasks := []job.Task{}
	for p := begin; p <= end; p++ {
		i, r := p-begin, Request{Ref: ref, Part: p}
		tasks = append(tasks, func(ctx context.Context) {
			out <- c.fetch(ctx, v, i, r)
		})
	}
	job.NewJob("parts of "+ref.String(), c.concurrency).WithLogger(c.log.Debug()).RunTasks(ctx, tasks...)
	close(out)

	results := make([]Result, end-begin+1)
	for r := range out {
		results[r.Index] = r
	}
	return results, nil
}

func (c *Client) fetch(ctx context.Context, v *Video, index int, r Request) Result {
	ctx, cancel := c.resourceContext(ctx)
	defer cancel()

	part := r.Part
	if part == 0 {
		part = 1
	}
	res := Result{Index: index, Request: r, Video: v}
	res.Data, res.Err = v.FetchPart(ctx, part)
	if b, err := v.Bvid(ctx); err == nil {
		res.Bvid = b
	}
	if res.Err != nil {
		c.log.Error().Printf("[BILIBILI] %s part %d: %s", r.Ref, part, res.Err)
		return res
	}
	c.log.Info().Printf("[BILIBILI] %s part %d: %d bytes", r.Ref, part, len(res.Data))
	return res
}

func (c *Client) resourceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.resourceTimeout > 0 {
		return context.WithTimeout(ctx, c.resourceTimeout)
	}
	return context.WithCancel(ctx)
}
