package extract

import "time"

type Stage string

const (
	StageBookDetection   Stage = "book_detection"
	StageVolumeSearch    Stage = "volume_search"
	StageVolumeAttempt   Stage = "volume_attempt"
	StagePageCapture     Stage = "page_capture"
	StageContentAnalysis Stage = "content_analysis"
	StageValidation      Stage = "validation"
	StageCompleted       Stage = "completed"
	StageError           Stage = "error"
)

// Update is one stage-transition event on the progress side channel.
type Update struct {
	Stage     Stage          `json:"stage"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives progress events. Delivery is fire-and-forget: an
// implementation must not block and can never alter the pipeline outcome.
type Sink interface {
	Emit(u Update)
}

// NoopSink is the default when no caller is listening.
type NoopSink struct{}

func (NoopSink) Emit(Update) {}
