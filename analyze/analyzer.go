package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"pagelift/capture"
	"pagelift/gemini"

	"go.uber.org/zap"
)

type BookType string

const (
	Fiction    BookType = "fiction"
	NonFiction BookType = "non-fiction"
)

type Classification struct {
	Type       BookType `json:"type"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

type Extraction struct {
	PageNumber int    `json:"pageNumber"`
	Content    string `json:"content"`
}

// Analysis is the structured judgment over one candidate's page sequence.
// ContentPages holds the 1-based indices judged to be real prose, never
// front matter, always within the captured range.
type Analysis struct {
	Classification Classification `json:"classification"`
	ContentPages   []int          `json:"contentPages"`
	Extracted      Extraction     `json:"extractedText"`
}

type VisionClient interface {
	ClassifyImages(ctx context.Context, prompt string, imgs []gemini.Image) (string, error)
}

type Analyzer struct {
	vision VisionClient
	prompt string
	logger *zap.Logger
}

// NewAnalyzer builds an analyzer. An empty prompt selects the built-in one;
// an override must keep the single %d verb for the page count.
func NewAnalyzer(vision VisionClient, prompt string, logger *zap.Logger) *Analyzer {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Analyzer{vision: vision, prompt: prompt, logger: logger}
}

// How many leading pages the retry uses when the full-sequence call fails.
const fallbackPageLimit = 5

// Analyze classifies the book and extracts the rule-selected page from one
// vision call over the whole sequence. If that call fails it retries once
// with only the leading pages before giving up on the candidate.
func (a *Analyzer) Analyze(ctx context.Context, pages []capture.Page) (*Analysis, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to analyze")
	}

	res, err := a.analyze(ctx, pages)
	if err != nil && len(pages) > fallbackPageLimit {
		a.logger.Warn("full analysis failed, retrying with leading pages",
			zap.Int("pages", fallbackPageLimit), zap.Error(err))
		res, err = a.analyze(ctx, pages[:fallbackPageLimit])
	}
	if err != nil {
		return nil, fmt.Errorf("analyze pages: %w", err)
	}

	a.logger.Info("content analysis finished",
		zap.String("type", string(res.Classification.Type)),
		zap.Float64("confidence", res.Classification.Confidence),
		zap.Ints("content_pages", res.ContentPages),
		zap.Int("extracted_page", res.Extracted.PageNumber))

	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, pages []capture.Page) (*Analysis, error) {
	imgs := make([]gemini.Image, len(pages))
	for i, p := range pages {
		imgs[i] = gemini.Image{Data: p.PNG, MIME: "image/png"}
	}

	raw, err := a.vision.ClassifyImages(ctx, fmt.Sprintf(a.prompt, len(pages)), imgs)
	if err != nil {
		return nil, err
	}

	span, err := gemini.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var res Analysis
	if err := json.Unmarshal(span, &res); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	if res.Classification.Type != Fiction && res.Classification.Type != NonFiction {
		return nil, fmt.Errorf("unexpected classification %q", res.Classification.Type)
	}
	if res.Extracted.Content == "" {
		return nil, fmt.Errorf("analysis returned no extracted text")
	}

	res.ContentPages = normalizePages(res.ContentPages, len(pages))
	if len(res.ContentPages) == 0 {
		return nil, fmt.Errorf("analysis identified no content pages")
	}

	// The model occasionally reports a page it never listed as content;
	// re-anchor the number on the deterministic rule in that case.
	if !containsPage(res.ContentPages, res.Extracted.PageNumber) {
		res.Extracted.PageNumber = SelectTargetPage(res.Classification.Type, res.ContentPages)
	}

	return &res, nil
}

// SelectTargetPage applies the extraction rule: fiction reads from the
// second content page, non-fiction from the first. A fiction book whose
// preview exposes a single content page falls back to that page. Returns 0
// when no content page exists.
func SelectTargetPage(t BookType, contentPages []int) int {
	if len(contentPages) == 0 {
		return 0
	}
	pages := append([]int(nil), contentPages...)
	sort.Ints(pages)
	if t == Fiction && len(pages) >= 2 {
		return pages[1]
	}
	return pages[0]
}

// normalizePages sorts, deduplicates and drops indices outside
// [1, totalPages].
func normalizePages(pages []int, totalPages int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > totalPages || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func containsPage(pages []int, n int) bool {
	for _, p := range pages {
		if p == n {
			return true
		}
	}
	return false
}

const defaultPrompt = `You are analyzing %d sequential pages from a book. Your task is to:

1. CLASSIFY the book as either 'fiction' or 'non-fiction' based on:
   - Writing style and narrative structure
   - Content type (story vs informational)
   - Language patterns and tone
   - Subject matter

2. IDENTIFY which pages contain actual book content vs auxiliary pages:
   - Skip: title pages, copyright pages, table of contents, preface, acknowledgments, dedication pages
   - Include: actual chapter content, introduction (if part of main content)

3. EXTRACT text from the appropriate page:
   - If FICTION: Extract text from the SECOND page of actual content (use the first content page with more than 50 characters if the second is itself auxiliary or nearly blank)
   - If NON-FICTION: Extract text from the FIRST page of actual content with more than 50 characters

Important: When extracting text, include ALL text visible on the selected page, maintaining paragraph breaks and formatting where possible.

Return a JSON response with:
{
  "classification": {
    "type": "fiction" or "non-fiction",
    "confidence": 0.0-1.0,
    "reasoning": "brief explanation of why you classified it this way"
  },
  "contentPages": [array of page numbers (1-based) that contain actual content],
  "extractedText": {
    "pageNumber": number (which page number 1-based was extracted),
    "content": "full text content from the selected page, preserving paragraphs"
  }
}

IMPORTANT: Return ONLY valid JSON, no additional text or explanation outside the JSON structure.`
