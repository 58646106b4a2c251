// Package stream selects the streams to download from a playback manifest.
//
// Lists of the manifest are ordered by the origin, best quality first. The
// selection keeps that order and takes the first entry of each list.
package stream

import (
	"fmt"

	"github.com/simulot/bilidl/pkg/models"
)

// NoStreamError is returned when the manifest has no stream at all
type NoStreamError struct {
	Reason string
}

func (e *NoStreamError) Error() string {
	return fmt.Sprintf("no stream in manifest: %s", e.Reason)
}

// Select gives the best video and audio of the manifest.
// The structured form gives video and audio, the legacy form gives only a video.
func Select(m models.Manifest) (models.StreamChoice, error) {
	if m.Structured() {
		c := models.StreamChoice{VideoURL: m.Video[0].URL}
		if len(m.Audio) > 0 {
			c.AudioURL = m.Audio[0].URL
		}
		if c.VideoURL == "" {
			return models.StreamChoice{}, &NoStreamError{Reason: "empty video url"}
		}
		return c, nil
	}
	if len(m.Legacy) > 0 && m.Legacy[0] != "" {
		return models.StreamChoice{VideoURL: m.Legacy[0]}, nil
	}
	return models.StreamChoice{}, &NoStreamError{Reason: "neither dash nor durl"}
}

// VideoURLs lists all video urls, best first
func VideoURLs(m models.Manifest) []string {
	if m.Structured() {
		return urls(m.Video)
	}
	return append([]string(nil), m.Legacy...)
}

// AudioURLs lists all audio urls, best first. It's empty for the legacy form.
func AudioURLs(m models.Manifest) []string {
	return urls(m.Audio)
}

func urls(r []models.Representation) []string {
	l := make([]string, 0, len(r))
	for _, e := range r {
		l = append(l, e.URL)
	}
	return l
}
