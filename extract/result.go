package extract

import "pagelift/analyze"

type ErrorType string

const (
	ErrorNotABook         ErrorType = "not_a_book"
	ErrorBookNotFound     ErrorType = "book_not_found"
	ErrorNoPreview        ErrorType = "no_preview"
	ErrorExtractionFailed ErrorType = "extraction_failed"
)

type DebugInfo struct {
	TotalPagesCaptured     int   `json:"totalPagesCaptured"`
	ContentPagesIdentified []int `json:"contentPagesIdentified"`
	ActualPageExtracted    int   `json:"actualPageExtracted"`
}

// Result is the single record a request produces. On success Confidence is
// the evaluator's score for the returned extraction; Validated reports
// whether that score cleared the acceptance threshold or the result is a
// best-effort fallback the caller should treat with care.
type Result struct {
	Success    bool             `json:"success"`
	Text       string           `json:"text,omitempty"`
	BookType   analyze.BookType `json:"bookType,omitempty"`
	Title      string           `json:"title,omitempty"`
	Author     string           `json:"author,omitempty"`
	VolumeID   string           `json:"volumeId,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Validated  bool             `json:"validated"`
	Debug      *DebugInfo       `json:"debugInfo,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorType  ErrorType        `json:"errorType,omitempty"`
}
