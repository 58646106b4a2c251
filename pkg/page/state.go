package page

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/simulot/bilidl/pkg/models"
)

// Names of the embedded documents
const (
	InitialStateDocument = "initial state"
	PlayInfoDocument     = "play info"
)

// DocumentSource gives the markup of a page
type DocumentSource interface {
	Document(ctx context.Context) (*goquery.Document, error)
}

// State extracts the documents embedded in one page. Each document is
// extracted once, on first use, and kept for the life of the State.
type State struct {
	source   DocumentSource
	variants []Variant
	logger   Logger

	mu       sync.Mutex
	initial  *Document
	play     *Document
	errInit  error
	errPlay  error
	metadata *models.VideoMetadata
	manifest *models.Manifest
}

// NewState extracts documents from the source, trying each variant in order.
// The DefaultVariants are used when none is given.
func NewState(source DocumentSource, variants []Variant, logger Logger) *State {
	if len(variants) == 0 {
		variants = DefaultVariants()
	}
	if logger == nil {
		logger = nullLogger{}
	}
	return &State{
		source:   source,
		variants: variants,
		logger:   logger,
	}
}

// InitialState is the document describing the video
func (s *State) InitialState(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialState(ctx)
}

func (s *State) initialState(ctx context.Context) (*Document, error) {
	if s.initial != nil || s.errInit != nil {
		return s.initial, s.errInit
	}
	doc, err := s.source.Document(ctx)
	if err != nil {
		return nil, err
	}
	s.initial, s.errInit = s.probe(doc, InitialStateDocument, func(v Variant) Locator { return v.InitialState }, "videoData")
	return s.initial, s.errInit
}

// PlayInfo is the document describing the streams
func (s *State) PlayInfo(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playInfo(ctx)
}

func (s *State) playInfo(ctx context.Context) (*Document, error) {
	if s.play != nil || s.errPlay != nil {
		return s.play, s.errPlay
	}
	doc, err := s.source.Document(ctx)
	if err != nil {
		return nil, err
	}
	s.play, s.errPlay = s.probe(doc, PlayInfoDocument, func(v Variant) Locator { return v.PlayInfo }, "data")
	return s.play, s.errPlay
}

// probe tries the variants in turn and keeps the first document having the key.
// When all variants fail, the error of the last one is returned.
func (s *State) probe(doc *goquery.Document, name string, locator func(Variant) Locator, key string) (*Document, error) {
	var err error
	for _, v := range s.variants {
		var d *Document
		d, err = extract(doc, name, locator(v), key)
		if err == nil {
			s.logger.Printf("[PAGE] %s found with variant %q", name, v.Name)
			return d, nil
		}
		s.logger.Printf("[PAGE] %s not found with variant %q: %s", name, v.Name, err)
	}
	if err == nil {
		err = &ParseError{What: name, Err: errors.New("no variant to try")}
	}
	return nil, err
}

func extract(doc *goquery.Document, name string, l Locator, key string) (*Document, error) {
	text, err := l.Isolate(doc)
	if err != nil {
		return nil, &ParseError{What: name, Err: err}
	}
	d, err := Decode(name, text)
	if err != nil {
		return nil, err
	}
	if _, err := d.Lookup(key); err != nil {
		return nil, err
	}
	return d, nil
}

// Metadata of the video
func (s *State) Metadata(ctx context.Context) (*models.VideoMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata != nil {
		return s.metadata, nil
	}
	d, err := s.initialState(ctx)
	if err != nil {
		return nil, err
	}
	m, err := MetadataOf(d)
	if err != nil {
		return nil, err
	}
	s.metadata = m
	return m, nil
}

// Manifest of the streams
func (s *State) Manifest(ctx context.Context) (*models.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest != nil {
		return s.manifest, nil
	}
	d, err := s.playInfo(ctx)
	if err != nil {
		return nil, err
	}
	m, err := ManifestOf(d)
	if err != nil {
		return nil, err
	}
	s.manifest = m
	return m, nil
}

// MetadataOf reads the video metadata from the initial state
// aid and bvid are at the root, or in videoData for some page versions.
func MetadataOf(d *Document) (*models.VideoMetadata, error) {
	var err error
	m := &models.VideoMetadata{}

	if m.Aid, err = d.Int("aid"); err != nil {
		if m.Aid, err = d.Int("videoData", "aid"); err != nil {
			return nil, err
		}
	}
	if m.Bvid, err = d.String("bvid"); err != nil {
		if m.Bvid, err = d.String("videoData", "bvid"); err != nil {
			return nil, err
		}
	}
	if m.Title, err = d.String("videoData", "title"); err != nil {
		return nil, err
	}
	parts, err := d.Int("videoData", "videos")
	if err != nil {
		return nil, err
	}
	m.Parts = int(parts)

	if d.Has("videoData", "desc") {
		if m.Description, err = d.String("videoData", "desc"); err != nil {
			return nil, err
		}
	}
	if d.Has("videoData", "pic") {
		if m.CoverURL, err = d.String("videoData", "pic"); err != nil {
			return nil, err
		}
	}

	if d.Has("tags") {
		tags, err := d.List("tags")
		if err != nil {
			return nil, err
		}
		for i := range tags {
			t, err := d.String("tags", itoa(i), "tag_name")
			if err != nil {
				return nil, err
			}
			m.Tags = append(m.Tags, t)
		}
	}

	if d.Has("videoData", "pages") {
		pages, err := d.List("videoData", "pages")
		if err != nil {
			return nil, err
		}
		for i := range pages {
			t, err := d.String("videoData", "pages", itoa(i), "part")
			if err != nil {
				return nil, err
			}
			m.PartTitles = append(m.PartTitles, t)
		}
	}
	return m, nil
}

// ManifestOf reads the stream lists from the play info.
// The structured form is under data.dash, the legacy one under data.durl.
// A manifest with neither is returned empty.
func ManifestOf(d *Document) (*models.Manifest, error) {
	m := &models.Manifest{}
	if d.Has("data", "dash") {
		var err error
		if m.Video, err = representations(d, "data", "dash", "video"); err != nil {
			return nil, err
		}
		if d.Has("data", "dash", "audio") {
			if m.Audio, err = representations(d, "data", "dash", "audio"); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	if d.Has("data", "durl") {
		l, err := d.List("data", "durl")
		if err != nil {
			return nil, err
		}
		for i := range l {
			u, err := d.String("data", "durl", itoa(i), "url")
			if err != nil {
				return nil, err
			}
			m.Legacy = append(m.Legacy, u)
		}
	}
	return m, nil
}

func representations(d *Document, path ...string) ([]models.Representation, error) {
	l, err := d.List(path...)
	if err != nil {
		return nil, err
	}
	r := make([]models.Representation, 0, len(l))
	for i := range l {
		p := append(append([]string(nil), path...), itoa(i))
		u, err := d.String(append(p, "baseUrl")...)
		if err != nil {
			var errAlt error
			if u, errAlt = d.String(append(p, "base_url")...); errAlt != nil {
				return nil, err
			}
		}
		rank, _ := d.Int(append(p, "id")...)
		r = append(r, models.Representation{URL: strings.TrimSpace(u), QualityRank: int(rank)})
	}
	return r, nil
}
