package page

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/simulot/bilidl/pkg/models"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/myhttp/httptest"
	"github.com/simulot/bilidl/pkg/page/pagetest"
)

const pageURL = "https://www.bilibili.com/video/BV1xx411c7mD"

var testVideo = pagetest.Video{
	Aid:        170001,
	Bvid:       "BV1xx411c7mD",
	Title:      "Le titre",
	Desc:       "La description",
	Pic:        "http://i2.hdslb.com/bfs/archive/cover.jpg",
	Parts:      2,
	Tags:       []string{"music", "live"},
	PartTitles: []string{"first", "second"},
}

var wantMetadata = &models.VideoMetadata{
	Aid:         170001,
	Bvid:        "BV1xx411c7mD",
	Title:       "Le titre",
	Description: "La description",
	Parts:       2,
	Tags:        []string{"music", "live"},
	CoverURL:    "http://i2.hdslb.com/bfs/archive/cover.jpg",
	PartTitles:  []string{"first", "second"},
}

func newState(t *testing.T, markup []byte) (*State, *httptest.HttpTest) {
	t.Helper()
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusOK, markup)
	c := myhttp.NewClient(myhttp.WithTransport(ht), myhttp.WithBackoff(0, 0))
	return NewState(NewFetcher(c, pageURL, nil, nil), nil, nil), ht
}

func TestStateVariants(t *testing.T) {
	video := []string{"https://cdn/v1080.m4s", "https://cdn/v720.m4s"}
	audio := []string{"https://cdn/a320.m4s", "https://cdn/a128.m4s"}
	wantManifest := &models.Manifest{
		Video: []models.Representation{{URL: video[0], QualityRank: 80}, {URL: video[1], QualityRank: 79}},
		Audio: []models.Representation{{URL: audio[0], QualityRank: 30280}, {URL: audio[1], QualityRank: 30279}},
	}
	initial := pagetest.InitialState(testVideo)
	play := pagetest.DashPlayInfo(video, audio)

	tests := []struct {
		name   string
		markup []byte
	}{
		{"current layout", pagetest.Current(initial, play)},
		{"older layout", pagetest.Older(initial, play)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newState(t, tt.markup)
			m, err := s.Metadata(context.Background())
			if err != nil {
				t.Fatalf("Unexpected error: %s", err)
			}
			if diff := cmp.Diff(wantMetadata, m); diff != "" {
				t.Errorf("Metadata() mismatch (-want +got):\n%s", diff)
			}
			mf, err := s.Manifest(context.Background())
			if err != nil {
				t.Fatalf("Unexpected error: %s", err)
			}
			if diff := cmp.Diff(wantManifest, mf); diff != "" {
				t.Errorf("Manifest() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStateIsComputedOnce(t *testing.T) {
	s, ht := newState(t, pagetest.Current(pagetest.InitialState(testVideo), pagetest.LegacyPlayInfo([]string{"https://cdn/v.flv"})))
	ctx := context.Background()
	first, err := s.InitialState(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	for i := 0; i < 3; i++ {
		d, err := s.InitialState(ctx)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if d != first {
			t.Errorf("Expecting the same document on each call")
		}
		if _, err := s.Manifest(ctx); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if _, err := s.Metadata(ctx); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
	}
	if got := ht.Count(""); got != 1 {
		t.Errorf("Expecting 1 page request, got %d", got)
	}
}

func TestLegacyManifest(t *testing.T) {
	s, _ := newState(t, pagetest.Current(pagetest.InitialState(testVideo), pagetest.LegacyPlayInfo([]string{"https://cdn/v1.flv", "https://cdn/v2.flv"})))
	m, err := s.Manifest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	want := &models.Manifest{Legacy: []string{"https://cdn/v1.flv", "https://cdn/v2.flv"}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Manifest() mismatch (-want +got):\n%s", diff)
	}
}

func TestDashWithoutAudio(t *testing.T) {
	s, _ := newState(t, pagetest.Current(pagetest.InitialState(testVideo), pagetest.DashPlayInfo([]string{"https://cdn/v.m4s"}, nil)))
	m, err := s.Manifest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if len(m.Video) != 1 || len(m.Audio) != 0 {
		t.Errorf("Expecting 1 video and no audio, got %#v", m)
	}
}

func TestSchemaError(t *testing.T) {
	initial := `{"aid":1,"bvid":"BV1xx411c7mD","videoData":{"videos":1}}`
	s, _ := newState(t, pagetest.Current(initial, pagetest.EmptyPlayInfo()))
	_, err := s.Metadata(context.Background())
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Expecting a SchemaError, got %v", err)
	}
	if want := []string{"videoData", "title"}; !reflect.DeepEqual(se.Path, want) {
		t.Errorf("Expecting path %v, got %v", want, se.Path)
	}
	if se.Document != InitialStateDocument {
		t.Errorf("Expecting document %q, got %q", InitialStateDocument, se.Document)
	}
}

func TestNoEmbeddedDocument(t *testing.T) {
	s, _ := newState(t, []byte(`<html><head><script>var a=1;</script></head><body></body></html>`))
	_, err := s.PlayInfo(context.Background())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expecting a ParseError, got %v", err)
	}
}

func TestFetchError(t *testing.T) {
	ht := httptest.New()
	ht.HandleBytes(pageURL, http.StatusNotFound, nil)
	c := myhttp.NewClient(myhttp.WithTransport(ht), myhttp.WithBackoff(0, 0))
	f := NewFetcher(c, pageURL, nil, nil)
	s := NewState(f, nil, nil)

	_, err := s.Metadata(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expecting a FetchError, got %v", err)
	}
	var se *myhttp.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("Expecting the status to be kept, got %v", err)
	}

	// A failed fetch is tried again
	ht.HandleBytes(pageURL, http.StatusOK, pagetest.Current(pagetest.InitialState(testVideo), pagetest.EmptyPlayInfo()))
	if _, err := s.Metadata(context.Background()); err != nil {
		t.Errorf("Unexpected error: %s", err)
	}
}
