// Package download combines separately downloaded video and audio streams
// with ffmpeg, through temporary files that never outlive the operation.
package download

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/simulot/bilidl/pkg/models"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// DefaultStallTimeout is the time ffmpeg may stay silent before being killed
const DefaultStallTimeout = 60 * time.Second

// MuxError is returned when ffmpeg fails. Output holds the last lines
// written by ffmpeg.
type MuxError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *MuxError) Error() string {
	s := fmt.Sprintf("ffmpeg failed with exit code %d", e.ExitCode)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.Output != "" {
		s += ": " + e.Output
	}
	return s
}

func (e *MuxError) Unwrap() error { return e.Err }

// Muxer merges a video stream and an audio stream into a mp4 file
type Muxer struct {
	path    string
	tempDir string
	stall   time.Duration
	l       logger
}

func NewMuxer(conf ...func(m *Muxer)) *Muxer {
	m := &Muxer{
		path:  "ffmpeg",
		stall: DefaultStallTimeout,
		l:     nullLogger{},
	}
	for _, fn := range conf {
		fn(m)
	}
	if m.tempDir == "" {
		m.tempDir = os.TempDir()
	}
	return m
}

// WithFFMPEG sets the path of ffmpeg
func WithFFMPEG(path string) func(m *Muxer) {
	return func(m *Muxer) {
		if path != "" {
			m.path = path
		}
	}
}

// WithTempDir sets where temporary files are written
func WithTempDir(dir string) func(m *Muxer) {
	return func(m *Muxer) {
		m.tempDir = dir
	}
}

// WithStallTimeout sets the time ffmpeg may stay silent. Zero disables the watchdog.
func WithStallTimeout(d time.Duration) func(m *Muxer) {
	return func(m *Muxer) {
		m.stall = d
	}
}

func WithLogger(l logger) func(m *Muxer) {
	return func(m *Muxer) {
		if l != nil {
			m.l = l
		}
	}
}

// NewJob gives unique temporary paths for one combination
func (m *Muxer) NewJob() *models.DownloadJob {
	id := uuid.New()
	base := filepath.Join(m.tempDir, "bilidl-"+id.String())
	return &models.DownloadJob{
		ID:         id,
		VideoPath:  base + ".mp4",
		AudioPath:  base + ".m4a",
		OutputPath: base + ".merged.mp4",
		Status:     models.JobPending,
	}
}

// Combine merges video and audio. Without audio, the video is returned as it is.
func (m *Muxer) Combine(ctx context.Context, video, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return video, nil
	}
	return m.CombineJob(ctx, m.NewJob(), video, audio)
}

// CombineJob merges video and audio using the job's paths.
// The three files are removed before returning, whatever the outcome.
func (m *Muxer) CombineJob(ctx context.Context, job *models.DownloadJob, video, audio []byte) (b []byte, err error) {
	if len(audio) == 0 {
		job.Status = models.JobCleaned
		return video, nil
	}
	batch := NewBatch().WithLogger(m.l)
	defer func() {
		if rbErr := batch.Rollback(); rbErr != nil {
			m.l.Printf("[FFMPEG] Can't clean temporary files of job %s: %s", job.ID, rbErr)
			if err == nil {
				err = rbErr
				b = nil
			}
		}
		if err != nil {
			job.Status = models.JobFailed
			return
		}
		job.Status = models.JobCleaned
	}()

	if err = batch.Do(WriteFile(job.VideoPath, video)); err != nil {
		return nil, err
	}
	if err = batch.Do(WriteFile(job.AudioPath, audio)); err != nil {
		return nil, err
	}
	if err = batch.Do(Produce(job.OutputPath)); err != nil {
		return nil, err
	}
	if err = m.run(ctx, job.VideoPath, job.AudioPath, job.OutputPath); err != nil {
		return nil, err
	}
	b, err = os.ReadFile(job.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("can't read ffmpeg output: %w", err)
	}
	job.Status = models.JobMuxed
	return b, nil
}

// Args gives ffmpeg's command line: video copied, audio encoded in aac
func Args(video, audio, output string) []string {
	return []string{
		"-hide_banner", // I don't want banner
		"-nostdin",
		"-y", // Override output file
		"-i", video,
		"-i", audio,
		"-c:v", "copy", // copy video
		"-c:a", "aac",
		"-strict", "experimental",
		output,
	}
}

func (m *Muxer) run(ctx context.Context, video, audio, output string) error {
	m.l.Printf("[FFMPEG] Combine %s and %s", filepath.Base(video), filepath.Base(audio))
	cmd := exec.CommandContext(ctx, m.path, Args(video, audio, output)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &MuxError{ExitCode: -1, Err: err}
	}
	if err = cmd.Start(); err != nil {
		return &MuxError{ExitCode: -1, Err: err}
	}

	wd := newWatchDog(m.stall, func() {
		m.l.Printf("[FFMPEG] No output since %s, kill it", m.stall)
		_ = cmd.Process.Kill()
	})
	out := &lastOutput{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		out.read(stderr, wd.Kick)
	}()
	<-done
	wd.Stop()
	err = cmd.Wait()
	if err == nil {
		return nil
	}

	mErr := &MuxError{ExitCode: -1, Output: out.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		mErr.ExitCode = exitErr.ExitCode()
	} else {
		mErr.Err = err
	}
	switch {
	case ctx.Err() != nil:
		mErr.Err = ctx.Err()
	case wd.Fired():
		mErr.Err = errors.New("ffmpeg stalled")
	}
	m.l.Printf("[FFMPEG] ERROR: %s", mErr)
	return mErr
}

// lastOutput keeps the lines written after the last progress line
type lastOutput struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *lastOutput) read(r io.Reader, kick func()) {
	sc := bufio.NewScanner(r)
	sc.Split(scanLines)
	for sc.Scan() {
		kick()
		l := sc.Bytes()
		o.mu.Lock()
		switch {
		case bytes.HasPrefix(l, []byte("frame=")), bytes.HasPrefix(l, []byte("size=")):
			o.b.Reset()
		case len(l) > 0 && l[0] != ' ':
			if o.b.Len() > 0 {
				o.b.WriteString("\n")
			}
			o.b.Write(l)
		}
		o.mu.Unlock()
	}
}

func (o *lastOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[0 : len(data)-1]
	}
	return data
}

// scanLines splits on \n and on \r, ffmpeg rewrites its progress line with \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, dropCR(data[0:i]), nil
	}
	// If we're at EOF, we have a final, non-terminated line. Return it.
	if atEOF {
		return len(data), dropCR(data), nil
	}
	// Request more data.
	return 0, nil, nil
}
