package bilibili

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/simulot/bilidl/pkg/dispatcher"
	"github.com/simulot/bilidl/pkg/download"
	"github.com/simulot/bilidl/pkg/models"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/myhttp/httptest"
	"github.com/simulot/bilidl/pkg/page"
	"github.com/simulot/bilidl/pkg/page/pagetest"
	"github.com/simulot/bilidl/pkg/stream"
)

const (
	bvid     = "BV1xx411c7mD"
	pageURL  = "https://www.bilibili.com/video/" + bvid
	videoURL = "https://upos.bilivideo.com/v1080.m4s"
	audioURL = "https://upos.bilivideo.com/a320.m4s"
	flvURL   = "https://upos.bilivideo.com/v.flv"
)

func testVideo(bvid string, parts int) pagetest.Video {
	return pagetest.Video{
		Aid:   170001,
		Bvid:  bvid,
		Title: "Title of " + bvid,
		Pic:   `http://i2.hdslb.com/bfs/archive/cover.jpg`,
		Parts: parts,
		Tags:  []string{"music"},
	}
}

// concatFFMPEG stands for ffmpeg and writes the video followed by the audio
func concatFFMPEG(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts needed")
	}
	p := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\ncat \"$5\" \"$7\" > \"$last\"\n"
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("Can't write fake ffmpeg: %s", err)
	}
	return p
}

func newTestClient(t *testing.T, ht *httptest.HttpTest, ffmpeg string) *Client {
	t.Helper()
	if ffmpeg == "" {
		ffmpeg = filepath.Join(t.TempDir(), "no-ffmpeg")
	}
	return NewClient(
		WithHTTPOptions(myhttp.WithTransport(ht), myhttp.WithBackoff(0, 0), myhttp.WithMaxAttempts(2)),
		WithMuxer(download.NewMuxer(download.WithFFMPEG(ffmpeg), download.WithTempDir(t.TempDir()))),
	)
}

func handleMedia(ht *httptest.HttpTest) {
	ht.Handle(videoURL, func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodOptions {
			return httptest.Bytes(http.StatusOK, nil)(r)
		}
		return httptest.Bytes(http.StatusPartialContent, []byte("VIDEO"))(r)
	})
	ht.HandleBytes(audioURL, http.StatusOK, []byte("AUDIO"))
	ht.HandleBytes(flvURL, http.StatusOK, []byte("FLV"))
}

func TestFetchStructured(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(
		pagetest.InitialState(testVideo(bvid, 1)),
		pagetest.DashPlayInfo([]string{videoURL, "https://upos.bilivideo.com/v720.m4s"}, []string{audioURL}),
	))
	handleMedia(ht)
	c := newTestClient(t, ht, concatFFMPEG(t))

	got, err := c.Fetch(context.Background(), models.MustParseRef(bvid))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if string(got) != "VIDEOAUDIO" {
		t.Errorf("Expecting %q, got %q", "VIDEOAUDIO", got)
	}

	calls := ht.Calls()
	want := []struct{ method, url string }{
		{http.MethodGet, pageURL},
		{http.MethodOptions, videoURL},
		{http.MethodGet, videoURL},
		{http.MethodGet, audioURL},
	}
	if len(calls) != len(want) {
		t.Fatalf("Expecting %d calls, got %d: %v", len(want), len(calls), calls)
	}
	for i, w := range want {
		if calls[i].Method != w.method || calls[i].URL != w.url {
			t.Errorf("Call %d: expecting %s %s, got %s %s", i, w.method, w.url, calls[i].Method, calls[i].URL)
		}
	}
	for _, call := range calls[1:] {
		if got := call.Header.Get("Referer"); got != Referer {
			t.Errorf("Expecting referer %q for %s %s, got %q", Referer, call.Method, call.URL, got)
		}
	}
}

func TestFetchLegacy(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Older(
		pagetest.InitialState(testVideo(bvid, 1)),
		pagetest.LegacyPlayInfo([]string{flvURL}),
	))
	handleMedia(ht)
	c := newTestClient(t, ht, "")

	v := c.NewVideo(models.MustParseRef(bvid))
	got, err := v.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if string(got) != "FLV" {
		t.Errorf("Expecting %q, got %q", "FLV", got)
	}
	audio, err := v.FetchAudio(context.Background(), 1)
	if err != nil || audio != nil {
		t.Errorf("Expecting no audio, got %q, %v", audio, err)
	}
}

func TestPartOutOfRange(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(
		pagetest.InitialState(testVideo(bvid, 2)),
		pagetest.DashPlayInfo([]string{videoURL}, []string{audioURL}),
	))
	handleMedia(ht)
	c := newTestClient(t, ht, "")
	v := c.NewVideo(models.MustParseRef(bvid))

	for _, part := range []int{0, 3, 10} {
		_, err := v.FetchPart(context.Background(), part)
		var rErr *RangeError
		if !errors.As(err, &rErr) {
			t.Fatalf("Part %d: expecting a RangeError, got %v", part, err)
		}
		if rErr.Count != 2 || rErr.Part != part {
			t.Errorf("Unexpected error content: %#v", rErr)
		}
	}
	if got := ht.Count(""); got != 1 {
		t.Errorf("Expecting only the page request, got %d requests", got)
	}
	if got := ht.Count(http.MethodOptions); got != 0 {
		t.Errorf("Expecting no preflight, got %d", got)
	}
}

func TestFetchPartsPreflightOnce(t *testing.T) {
	ht := httptest.New()
	initial := pagetest.InitialState(testVideo(bvid, 2))
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(initial, pagetest.LegacyPlayInfo([]string{flvURL})))
	ht.HandleBytes(pageURL+"?p=2", http.StatusOK, pagetest.Current(initial, pagetest.LegacyPlayInfo([]string{videoURL})))
	handleMedia(ht)
	c := newTestClient(t, ht, "")

	results, err := c.FetchParts(context.Background(), models.MustParseRef(bvid), 1, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expecting 2 results, got %d", len(results))
	}
	for i, want := range []string{"FLV", "VIDEO"} {
		if results[i].Err != nil {
			t.Errorf("Part %d: unexpected error %s", i+1, results[i].Err)
		}
		if string(results[i].Data) != want {
			t.Errorf("Part %d: expecting %q, got %q", i+1, want, results[i].Data)
		}
		if results[i].Bvid != bvid {
			t.Errorf("Part %d: expecting bvid %q, got %q", i+1, bvid, results[i].Bvid)
		}
		if results[i].Request.Part != i+1 {
			t.Errorf("Expecting part %d, got %d", i+1, results[i].Request.Part)
		}
	}
	if got := ht.Count(http.MethodOptions); got != 1 {
		t.Errorf("Expecting 1 preflight request, got %d", got)
	}

	if _, err := c.FetchParts(context.Background(), models.MustParseRef(bvid), 1, 3); err == nil {
		t.Errorf("Expecting an error for a range beyond the last part")
	}
}

func TestFetchPartsReversedRange(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(pagetest.InitialState(testVideo(bvid, 5)), pagetest.LegacyPlayInfo([]string{flvURL})))
	handleMedia(ht)
	c := newTestClient(t, ht, "")

	for _, r := range [][2]int{{3, 1}, {3, 2}, {5, 1}} {
		results, err := c.FetchParts(context.Background(), models.MustParseRef(bvid), r[0], r[1])
		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("FetchParts(%d, %d): expecting a RangeError, got %v", r[0], r[1], err)
			continue
		}
		if rangeErr.Part != r[0] || rangeErr.Count != 5 {
			t.Errorf("FetchParts(%d, %d): unexpected error %+v", r[0], r[1], rangeErr)
		}
		if results != nil {
			t.Errorf("FetchParts(%d, %d): expecting no result, got %d", r[0], r[1], len(results))
		}
	}
	if got := ht.Count(http.MethodGet); got != 1 {
		t.Errorf("Expecting only the page to be read, got %d GET", got)
	}
}

func TestFetchBatch(t *testing.T) {
	ht := httptest.New()
	codes := []string{"BV1aa411c7mD", "BV1bb411c7mD", "BV1cc411c7mD", "BV1dd411c7mD"}
	for i, code := range codes {
		initial := pagetest.InitialState(testVideo(code, 1))
		if i == 2 {
			initial = `{"aid":3}`
		}
		ht.HandleBytes(models.VideoPageURL+code, http.StatusOK, pagetest.Current(initial, pagetest.LegacyPlayInfo([]string{flvURL})))
	}
	handleMedia(ht)
	c := newTestClient(t, ht, "")

	reqs := []Request{}
	for _, code := range codes {
		reqs = append(reqs, Request{Ref: models.MustParseRef(code)})
	}
	results := c.FetchBatch(context.Background(), reqs)
	if len(results) != len(codes) {
		t.Fatalf("Expecting %d results, got %d", len(codes), len(results))
	}
	failures := 0
	for i, r := range results {
		if r.Index != i || r.Request.Ref.Code != codes[i] {
			t.Errorf("Result %d is for %s", i, r.Request.Ref)
		}
		if r.Err != nil {
			failures++
			var pe *page.ParseError
			var se *page.SchemaError
			if !errors.As(r.Err, &pe) && !errors.As(r.Err, &se) {
				t.Errorf("Expecting an extraction error, got %v", r.Err)
			}
			continue
		}
		if !bytes.Equal(r.Data, []byte("FLV")) {
			t.Errorf("Result %d: expecting %q, got %q", i, "FLV", r.Data)
		}
		if r.Bvid != codes[i] {
			t.Errorf("Result %d: expecting bvid %s, got %s", i, codes[i], r.Bvid)
		}
	}
	if failures != 1 {
		t.Errorf("Expecting exactly 1 failure, got %d", failures)
	}
}

func TestMetadataAccessors(t *testing.T) {
	ht := httptest.New()
	meta := testVideo(bvid, 2)
	meta.PartTitles = []string{"one", "two"}
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(pagetest.InitialState(meta), pagetest.EmptyPlayInfo()))
	ht.HandleBytes("http://i0.hdslb.com/bfs/archive/cover.jpg", http.StatusOK, []byte("JPEG"))
	c := newTestClient(t, ht, "")
	ctx := context.Background()

	v := c.NewVideo(models.MustParseRef(bvid))
	if b, err := v.Bvid(ctx); err != nil || b != bvid {
		t.Errorf("Bvid() = %q, %v", b, err)
	}
	if got := ht.Count(""); got != 0 {
		t.Errorf("Expecting the bvid without request, got %d requests", got)
	}
	if title, err := v.Title(ctx); err != nil || title != "Title of "+bvid {
		t.Errorf("Title() = %q, %v", title, err)
	}
	if aid, err := v.Aid(ctx); err != nil || aid != 170001 {
		t.Errorf("Aid() = %d, %v", aid, err)
	}
	if titles, err := v.PartTitles(ctx); err != nil || len(titles) != 2 || titles[1] != "two" {
		t.Errorf("PartTitles() = %v, %v", titles, err)
	}
	cover, err := v.Cover(ctx)
	if err != nil || string(cover) != "JPEG" {
		t.Errorf("Cover() = %q, %v", cover, err)
	}
	_, err = v.Fetch(ctx)
	if !errors.As(err, new(*stream.NoStreamError)) {
		t.Errorf("Expecting a NoStreamError, got %v", err)
	}

	av := c.NewVideo(models.MustParseRef("av170001"))
	ht.HandleBytes(models.VideoPageURL+"av170001", http.StatusOK, pagetest.Current(pagetest.InitialState(meta), pagetest.EmptyPlayInfo()))
	if b, err := av.Bvid(ctx); err != nil || b != bvid {
		t.Errorf("Bvid() from page = %q, %v", b, err)
	}
}

func TestFullSizeCover(t *testing.T) {
	tests := map[string]string{
		`http:\/\/i2.hdslb.com\/bfs\/archive\/a.jpg`: "http://i0.hdslb.com/bfs/archive/a.jpg",
		"https://i1.hdslb.com/bfs/archive/a.jpg":     "https://i1.hdslb.com/bfs/archive/a.jpg",
	}
	for in, want := range tests {
		if got := FullSizeCover(in); got != want {
			t.Errorf("FullSizeCover(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProgressReports(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(
		pagetest.InitialState(testVideo(bvid, 1)),
		pagetest.DashPlayInfo([]string{videoURL}, []string{audioURL}),
	))
	handleMedia(ht)
	d := dispatcher.NewDispatcher()
	c := newTestClient(t, ht, concatFFMPEG(t))
	c.publisher = d

	got := []models.JobStatus{}
	cancel := d.Subscribe(func(p models.Progress) {
		if p.Ref != bvid || p.Part != 1 {
			t.Errorf("Unexpected report %+v", p)
		}
		got = append(got, p.Status)
	})
	_, err := c.Fetch(context.Background(), models.MustParseRef(bvid))
	cancel()
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	want := []models.JobStatus{models.JobPending, models.JobVideoFetched, models.JobAudioFetched, models.JobCleaned}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("Expecting %v, got %v", want, got)
	}
}

func TestProgressReportsWithoutAudio(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(
		pagetest.InitialState(testVideo(bvid, 1)),
		pagetest.LegacyPlayInfo([]string{flvURL}),
	))
	handleMedia(ht)
	d := dispatcher.NewDispatcher()
	c := newTestClient(t, ht, "")
	c.publisher = d

	got := []models.JobStatus{}
	cancel := d.Subscribe(func(p models.Progress) {
		got = append(got, p.Status)
	})
	_, err := c.Fetch(context.Background(), models.MustParseRef(bvid))
	cancel()
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	want := []models.JobStatus{models.JobPending, models.JobVideoFetched, models.JobCleaned}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("Expecting %v, got %v", want, got)
	}
}
