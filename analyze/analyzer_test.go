package analyze

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pagelift/capture"
	"pagelift/gemini"

	"go.uber.org/zap"
)

// fakeVision fails any call with more than maxImages images when maxImages
// is set, mimicking the model choking on long sequences.
type fakeVision struct {
	response  string
	err       error
	maxImages int
	calls     []int
}

func (f *fakeVision) ClassifyImages(ctx context.Context, prompt string, imgs []gemini.Image) (string, error) {
	f.calls = append(f.calls, len(imgs))
	if f.err != nil {
		return "", f.err
	}
	if f.maxImages > 0 && len(imgs) > f.maxImages {
		return "", errors.New("request too large")
	}
	return f.response, nil
}

func capturedPages(n int) []capture.Page {
	pages := make([]capture.Page, n)
	for i := range pages {
		pages[i] = capture.Page{Index: i + 1, PNG: []byte{byte(i + 1)}}
	}
	return pages
}

func analysisJSON(bookType string, contentPages string, pageNumber int) string {
	return fmt.Sprintf(`{
		"classification": {"type": %q, "confidence": 0.9, "reasoning": "style"},
		"contentPages": %s,
		"extractedText": {"pageNumber": %d, "content": "It was a bright cold day in April."}
	}`, bookType, contentPages, pageNumber)
}

func TestSelectTargetPage(t *testing.T) {
	testCases := []struct {
		name     string
		bookType BookType
		pages    []int
		expected int
	}{
		{"FictionSecondContentPage", Fiction, []int{2, 3, 5}, 3},
		{"NonFictionFirstContentPage", NonFiction, []int{2, 3, 5}, 2},
		{"FictionUnsortedInput", Fiction, []int{5, 2, 3}, 3},
		{"FictionSinglePage", Fiction, []int{4}, 4},
		{"NonFictionSinglePage", NonFiction, []int{4}, 4},
		{"NoContentPages", Fiction, nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectTargetPage(tc.bookType, tc.pages); got != tc.expected {
				t.Errorf("expected page %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	vision := &fakeVision{response: analysisJSON("fiction", "[2,3,5]", 3)}
	a := NewAnalyzer(vision, "", zap.NewNop())

	res, err := a.Analyze(context.Background(), capturedPages(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Classification.Type != Fiction {
		t.Errorf("expected fiction, got %s", res.Classification.Type)
	}
	if res.Extracted.PageNumber != 3 {
		t.Errorf("expected page 3, got %d", res.Extracted.PageNumber)
	}
	if len(vision.calls) != 1 || vision.calls[0] != 6 {
		t.Errorf("expected one call with 6 images, got %v", vision.calls)
	}
}

func TestAnalyzeFallbackToLeadingPages(t *testing.T) {
	vision := &fakeVision{
		response:  analysisJSON("non-fiction", "[2,4]", 2),
		maxImages: 5,
	}
	a := NewAnalyzer(vision, "", zap.NewNop())

	res, err := a.Analyze(context.Background(), capturedPages(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Extracted.PageNumber != 2 {
		t.Errorf("expected page 2, got %d", res.Extracted.PageNumber)
	}
	if len(vision.calls) != 2 || vision.calls[0] != 8 || vision.calls[1] != 5 {
		t.Errorf("expected full call then 5-page retry, got %v", vision.calls)
	}
}

func TestAnalyzeFallbackExhausted(t *testing.T) {
	vision := &fakeVision{err: errors.New("model unavailable")}
	a := NewAnalyzer(vision, "", zap.NewNop())

	if _, err := a.Analyze(context.Background(), capturedPages(8)); err == nil {
		t.Fatal("expected error after fallback retry failed")
	}
	if len(vision.calls) != 2 {
		t.Errorf("expected exactly one retry, got %d calls", len(vision.calls))
	}
}

func TestAnalyzeShortSequenceNoRetry(t *testing.T) {
	vision := &fakeVision{err: errors.New("model unavailable")}
	a := NewAnalyzer(vision, "", zap.NewNop())

	if _, err := a.Analyze(context.Background(), capturedPages(4)); err == nil {
		t.Fatal("expected error")
	}
	if len(vision.calls) != 1 {
		t.Errorf("retry with fewer pages is pointless for a short sequence, got %d calls", len(vision.calls))
	}
}

func TestAnalyzeFiltersOutOfRangePages(t *testing.T) {
	vision := &fakeVision{response: analysisJSON("non-fiction", "[0,2,3,12]", 2)}
	a := NewAnalyzer(vision, "", zap.NewNop())

	res, err := a.Analyze(context.Background(), capturedPages(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.ContentPages) != 2 || res.ContentPages[0] != 2 || res.ContentPages[1] != 3 {
		t.Errorf("expected content pages [2 3], got %v", res.ContentPages)
	}
}

func TestAnalyzeReanchorsInvalidPageNumber(t *testing.T) {
	// The model extracted from page 9, which it never listed as content.
	vision := &fakeVision{response: analysisJSON("fiction", "[2,3,5]", 9)}
	a := NewAnalyzer(vision, "", zap.NewNop())

	res, err := a.Analyze(context.Background(), capturedPages(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Extracted.PageNumber != 3 {
		t.Errorf("expected rule-selected page 3, got %d", res.Extracted.PageNumber)
	}
}

func TestAnalyzeRejectsBadResponses(t *testing.T) {
	testCases := []struct {
		name     string
		response string
	}{
		{"UnknownType", analysisJSON("poetry", "[1,2]", 1)},
		{"NoJSON", "the pages look like a novel"},
		{"NoContentPages", analysisJSON("fiction", "[]", 1)},
		{"AllPagesOutOfRange", analysisJSON("fiction", "[40,50]", 40)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAnalyzer(&fakeVision{response: tc.response}, "", zap.NewNop())
			if _, err := a.Analyze(context.Background(), capturedPages(3)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := NewAnalyzer(&fakeVision{}, "", zap.NewNop())
	if _, err := a.Analyze(context.Background(), nil); err == nil {
		t.Error("expected error for empty page sequence")
	}
}
