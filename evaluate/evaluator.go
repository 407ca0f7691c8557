package evaluate

import (
	"context"
	"encoding/json"
	"fmt"

	"pagelift/analyze"
	"pagelift/gemini"

	"go.uber.org/zap"
)

// Proposed is a candidate extraction to be judged against the cover photo.
type Proposed struct {
	Title      string
	Author     string
	BookType   analyze.BookType
	Text       string
	PageNumber int
}

type Evaluation struct {
	IsValid    bool     `json:"isValid"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Issues     []string `json:"issues,omitempty"`
}

type VisionClient interface {
	ClassifyImage(ctx context.Context, prompt string, img gemini.Image) (string, error)
}

type Evaluator struct {
	vision VisionClient
	prompt string
	logger *zap.Logger
}

// NewEvaluator builds an evaluator. An empty prompt selects the built-in
// one; an override must keep the five verbs (title, author, type, page,
// text preview).
func NewEvaluator(vision VisionClient, prompt string, logger *zap.Logger) *Evaluator {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Evaluator{vision: vision, prompt: prompt, logger: logger}
}

const previewChars = 500

// Evaluate judges whether the proposed extraction belongs to the book on
// the cover and is substantive. It never returns an error: a failed call
// degrades to a zero-confidence invalid judgment so the candidate loop can
// keep going.
func (e *Evaluator) Evaluate(ctx context.Context, cover gemini.Image, p Proposed) Evaluation {
	// Truncate on rune boundaries; extracted text is routinely multibyte.
	preview := p.Text
	if runes := []rune(preview); len(runes) > previewChars {
		preview = string(runes[:previewChars]) + "..."
	}

	prompt := fmt.Sprintf(e.prompt, p.Title, p.Author, p.BookType, p.PageNumber, preview)

	raw, err := e.vision.ClassifyImage(ctx, prompt, cover)
	if err != nil {
		return e.conservative("evaluation call failed", err)
	}

	span, err := gemini.ExtractJSON(raw)
	if err != nil {
		return e.conservative("evaluation response unparseable", err)
	}

	var ev Evaluation
	if err := json.Unmarshal(span, &ev); err != nil {
		return e.conservative("evaluation response undecodable", err)
	}

	e.logger.Info("extraction evaluated",
		zap.Bool("is_valid", ev.IsValid),
		zap.Float64("confidence", ev.Confidence),
		zap.Strings("issues", ev.Issues))

	return ev
}

func (e *Evaluator) conservative(msg string, err error) Evaluation {
	e.logger.Warn(msg, zap.Error(err))
	return Evaluation{
		IsValid:    false,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("%s: %v", msg, err),
		Issues:     []string{"evaluator unavailable"},
	}
}

const defaultPrompt = `You are a book extraction quality evaluator. Your task is to determine if the extracted content matches the book shown in the cover image and if the extraction quality is acceptable.

Cover Image Analysis:
- Analyze the book cover image to identify the book title and author

Extracted Content Review:
Title: %s
Author: %s
Classification: %s
Extracted from page: %d
Content preview (first 500 chars): %s

Evaluation Criteria:
1. Does the title and author from extraction match the book cover?
2. Is the extracted text actual book content (not auxiliary pages like TOC, copyright, etc.)?
3. For fiction: Is it narrative content from the story?
4. For non-fiction: Is it substantive content (not just preface/acknowledgments)?
5. Is the text quality sufficient (not garbled, cut off, or mostly blank)?

Provide your evaluation in this exact JSON format:
{
  "isValid": true/false,
  "confidence": 0.0-1.0,
  "reasoning": "Detailed explanation of your evaluation",
  "issues": ["List of any issues found"]
}

IMPORTANT:
- Set isValid to true ONLY if the content definitely matches the book AND contains meaningful content
- Set confidence based on how certain you are (1.0 = absolutely certain, 0.0 = no confidence)
- Common issues to check: wrong book, only auxiliary pages, poor text quality, mostly blank pages`
