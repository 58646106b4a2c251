package models

// VideoMetadata describes a video as found in the page's initial state
type VideoMetadata struct {
	Aid         int64    // Numeric id
	Bvid        string   // Short code
	Title       string   //
	Description string   //
	Parts       int      // Declared number of parts
	Tags        []string // In page order
	CoverURL    string   // As given by the page
	PartTitles  []string // Optional, one per part
}

// Representation is one stream of the playback manifest
type Representation struct {
	URL         string
	QualityRank int // Quality id given by the origin, informative only
}

// Manifest is the playback description of a video part.
// Either Video is set, the structured form with separate audio, or Legacy,
// a list of progressive URLs. Lists are best first.
type Manifest struct {
	Video  []Representation
	Audio  []Representation
	Legacy []string
}

// Structured is true when the manifest has separate video and audio lists
func (m Manifest) Structured() bool {
	return len(m.Video) > 0
}

// StreamChoice is the selected pair of streams. AudioURL is empty when
// the video has no separate audio.
type StreamChoice struct {
	VideoURL string
	AudioURL string
}

// HasAudio is true when a separate audio stream must be fetched
func (c StreamChoice) HasAudio() bool {
	return c.AudioURL != ""
}
