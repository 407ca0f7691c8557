package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pagelift/gemini"

	"go.uber.org/zap"
)

// Result is the outcome of running book detection over a cover photo.
// Confidence is advisory; only IsBook and Title presence gate the pipeline.
type Result struct {
	IsBook     bool    `json:"isBook"`
	Title      string  `json:"title,omitempty"`
	Author     string  `json:"author,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ParseError means the vision response carried no usable detection JSON.
// The pipeline treats it as fatal: without structured detection there is no
// search key to continue with.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("detection response unparseable: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

type VisionClient interface {
	ClassifyImage(ctx context.Context, prompt string, img gemini.Image) (string, error)
}

type Detector struct {
	vision VisionClient
	prompt string
	logger *zap.Logger
}

// NewDetector builds a detector. An empty prompt selects the built-in one.
func NewDetector(vision VisionClient, prompt string, logger *zap.Logger) *Detector {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Detector{vision: vision, prompt: prompt, logger: logger}
}

func (d *Detector) DetectBook(ctx context.Context, cover gemini.Image) (*Result, error) {
	raw, err := d.vision.ClassifyImage(ctx, d.prompt, cover)
	if err != nil {
		return nil, fmt.Errorf("detect book: %w", err)
	}

	span, err := gemini.ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	// title/author come back as JSON null for non-books.
	var wire struct {
		IsBook     bool    `json:"isBook"`
		Title      *string `json:"title"`
		Author     *string `json:"author"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(span, &wire); err != nil {
		return nil, &ParseError{Cause: err}
	}

	res := &Result{IsBook: wire.IsBook, Confidence: wire.Confidence}
	if wire.Title != nil {
		res.Title = strings.TrimSpace(*wire.Title)
	}
	if wire.Author != nil {
		res.Author = strings.TrimSpace(*wire.Author)
	}

	d.logger.Info("book detection finished",
		zap.Bool("is_book", res.IsBook),
		zap.String("title", res.Title),
		zap.String("author", res.Author),
		zap.Float64("confidence", res.Confidence))

	return res, nil
}

const defaultPrompt = `Analyze this image carefully and determine if it contains a book cover.

If it is a book cover:
1. Extract the book title exactly as it appears
2. Extract the author name(s) exactly as they appear
3. Provide a confidence score (0-1) for your detection

If it is NOT a book cover:
1. Clearly state it's not a book
2. Provide a confidence score (0-1) for your determination

Respond in JSON format:
{
  "isBook": boolean,
  "title": "string or null",
  "author": "string or null",
  "confidence": number
}`
