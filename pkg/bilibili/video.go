package bilibili

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/simulot/bilidl/pkg/models"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/page"
	"github.com/simulot/bilidl/pkg/stream"
)

// Video is one resource of the site. The pages of each part are read once.
type Video struct {
	c   *Client
	ref models.Ref

	mu    sync.Mutex
	pages map[int]*page.State

	pmu       sync.Mutex
	preflight bool
}

func (c *Client) NewVideo(ref models.Ref) *Video {
	return &Video{
		c:     c,
		ref:   ref,
		pages: map[int]*page.State{},
	}
}

// Ref of the video
func (v *Video) Ref() models.Ref { return v.ref }

// state gives the page of the part. The first part is the video page, others are read from ?p=N.
func (v *Video) state(part int) *page.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.pages[part]; ok {
		return s
	}
	var q url.Values
	if part > 1 {
		q = url.Values{"p": {strconv.Itoa(part)}}
	}
	s := page.NewState(page.NewFetcher(v.c.http, v.ref.URL, q, v.c.log.Debug()), v.c.variants, v.c.log.Debug())
	v.pages[part] = s
	return s
}

// Metadata gives the description of the video, read from the first part
func (v *Video) Metadata(ctx context.Context) (*models.VideoMetadata, error) {
	return v.state(1).Metadata(ctx)
}

// Parts gives the declared number of parts
func (v *Video) Parts(ctx context.Context) (int, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return 0, err
	}
	return m.Parts, nil
}

func (v *Video) checkPart(ctx context.Context, part int) error {
	count, err := v.Parts(ctx)
	if err != nil {
		return err
	}
	if part < 1 || part > count {
		return &RangeError{Part: part, Count: count}
	}
	return nil
}

// Bvid gives the short code, from the reference when possible
func (v *Video) Bvid(ctx context.Context) (string, error) {
	if b := v.ref.Bvid(); b != "" {
		return b, nil
	}
	m, err := v.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return m.Bvid, nil
}

func (v *Video) Aid(ctx context.Context) (int64, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return 0, err
	}
	return m.Aid, nil
}

func (v *Video) Title(ctx context.Context) (string, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return m.Title, nil
}

func (v *Video) Description(ctx context.Context) (string, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return m.Description, nil
}

func (v *Video) Tags(ctx context.Context) ([]string, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return m.Tags, nil
}

// PartTitles gives the title of each part, when the page lists them
func (v *Video) PartTitles(ctx context.Context) ([]string, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return m.PartTitles, nil
}

// CoverURL gives the url of the full size cover
func (v *Video) CoverURL(ctx context.Context) (string, error) {
	m, err := v.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return FullSizeCover(m.CoverURL), nil
}

// FullSizeCover turns a cover url into the one of the original image
func FullSizeCover(u string) string {
	u = strings.ReplaceAll(u, `\`, "")
	return strings.Replace(u, "/i2.", "/i0.", 1)
}

// Cover downloads the cover image
func (v *Video) Cover(ctx context.Context) ([]byte, error) {
	u, err := v.CoverURL(ctx)
	if err != nil {
		return nil, err
	}
	return v.c.http.Get(ctx, u, http.Header{"Referer": {Referer}}, nil)
}

// Manifest of the part
func (v *Video) Manifest(ctx context.Context, part int) (*models.Manifest, error) {
	if err := v.checkPart(ctx, part); err != nil {
		return nil, err
	}
	return v.state(part).Manifest(ctx)
}

// Streams gives the best video and audio of the part
func (v *Video) Streams(ctx context.Context, part int) (models.StreamChoice, error) {
	m, err := v.Manifest(ctx, part)
	if err != nil {
		return models.StreamChoice{}, err
	}
	return stream.Select(*m)
}

// VideoURLs lists the video streams of the part, best first
func (v *Video) VideoURLs(ctx context.Context, part int) ([]string, error) {
	m, err := v.Manifest(ctx, part)
	if err != nil {
		return nil, err
	}
	return stream.VideoURLs(*m), nil
}

// AudioURLs lists the audio streams of the part, best first
func (v *Video) AudioURLs(ctx context.Context, part int) ([]string, error) {
	m, err := v.Manifest(ctx, part)
	if err != nil {
		return nil, err
	}
	return stream.AudioURLs(*m), nil
}

// FetchVideo downloads the best video stream of the part
func (v *Video) FetchVideo(ctx context.Context, part int) ([]byte, error) {
	choice, err := v.Streams(ctx, part)
	if err != nil {
		return nil, err
	}
	return v.media(ctx, choice.VideoURL)
}

// FetchAudio downloads the best audio stream of the part. It's empty when the part has no separate audio.
func (v *Video) FetchAudio(ctx context.Context, part int) ([]byte, error) {
	choice, err := v.Streams(ctx, part)
	if err != nil {
		return nil, err
	}
	if !choice.HasAudio() {
		return nil, nil
	}
	return v.media(ctx, choice.AudioURL)
}

// Fetch downloads the first part
func (v *Video) Fetch(ctx context.Context) ([]byte, error) {
	return v.FetchPart(ctx, 1)
}

// FetchPart downloads the streams of the part and combines them into one mp4 content
func (v *Video) FetchPart(ctx context.Context, part int) ([]byte, error) {
	if err := v.checkPart(ctx, part); err != nil {
		return nil, err
	}
	choice, err := v.Streams(ctx, part)
	if err != nil {
		return nil, err
	}

	job := v.c.muxer.NewJob()
	report := func(err error) {
		v.c.publish(models.Progress{JobID: job.ID, Ref: v.ref.String(), Part: part, Status: job.Status, Err: err})
	}
	report(nil)
	video, err := v.media(ctx, choice.VideoURL)
	if err != nil {
		job.Status = models.JobFailed
		report(err)
		return nil, err
	}
	job.Status = models.JobVideoFetched
	report(nil)

	var audio []byte
	if choice.HasAudio() {
		audio, err = v.media(ctx, choice.AudioURL)
		if err != nil {
			job.Status = models.JobFailed
			report(err)
			return nil, err
		}
		job.Status = models.JobAudioFetched
		report(nil)
	}

	b, err := v.c.muxer.CombineJob(ctx, job, video, audio)
	report(err)
	v.c.log.Debug().Printf("[BILIBILI] %s part %d: job %s %s", v.ref, part, job.ID, job.Status)
	return b, err
}

func mediaHeader() http.Header {
	return http.Header{
		"Referer": {Referer},
		"Range":   {"bytes=0-"},
	}
}

// media downloads a stream. The first media request of the video is preceded by an OPTIONS request.
func (v *Video) media(ctx context.Context, u string) ([]byte, error) {
	if err := v.preflightOnce(ctx, u); err != nil {
		return nil, err
	}
	v.c.log.Debug().Printf("[BILIBILI] Get media %s", u)
	resp, err := v.c.http.Do(ctx, &myhttp.Request{
		Method: http.MethodGet,
		URL:    u,
		Header: mediaHeader(),
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &myhttp.StatusError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
	}
	return resp.Body, nil
}

func (v *Video) preflightOnce(ctx context.Context, u string) error {
	v.pmu.Lock()
	defer v.pmu.Unlock()
	if v.preflight {
		return nil
	}
	_, err := v.c.http.Do(ctx, &myhttp.Request{
		Method: http.MethodOptions,
		URL:    u,
		Header: mediaHeader(),
	})
	if err != nil {
		return err
	}
	v.preflight = true
	return nil
}
