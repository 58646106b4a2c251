package models

import "github.com/google/uuid"

type JobStatus int

const (
	JobPending JobStatus = iota
	JobVideoFetched
	JobAudioFetched
	JobMuxed
	JobCleaned
	JobFailed
)

var jobStatusNames = []string{"pending", "video_fetched", "audio_fetched", "muxed", "cleaned", "failed"}

func (s JobStatus) String() string {
	if s < 0 || int(s) >= len(jobStatusNames) {
		return "unknown"
	}
	return jobStatusNames[s]
}

// DownloadJob is the transient state of one fetch: where the streams are
// written and the combined result read back.
type DownloadJob struct {
	ID         uuid.UUID
	VideoPath  string
	AudioPath  string
	OutputPath string
	Status     JobStatus
}

// Progress reports a status change of a download job
type Progress struct {
	JobID  uuid.UUID
	Ref    string
	Part   int
	Status JobStatus
	Err    error
}
