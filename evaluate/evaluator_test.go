package evaluate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"pagelift/analyze"
	"pagelift/gemini"

	"go.uber.org/zap"
)

type fakeVision struct {
	response string
	err      error
	prompt   string
}

func (f *fakeVision) ClassifyImage(ctx context.Context, prompt string, img gemini.Image) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

var testProposed = Proposed{
	Title:      "The Hobbit",
	Author:     "J.R.R. Tolkien",
	BookType:   analyze.Fiction,
	Text:       "In a hole in the ground there lived a hobbit.",
	PageNumber: 3,
}

var testCover = gemini.Image{Data: []byte("jpeg-bytes"), MIME: "image/jpeg"}

func TestEvaluate(t *testing.T) {
	vision := &fakeVision{response: `Evaluation follows.
{"isValid": true, "confidence": 0.93, "reasoning": "title and opening line match"}`}
	e := NewEvaluator(vision, "", zap.NewNop())

	ev := e.Evaluate(context.Background(), testCover, testProposed)
	if !ev.IsValid {
		t.Error("expected valid evaluation")
	}
	if ev.Confidence != 0.93 {
		t.Errorf("expected confidence 0.93, got %v", ev.Confidence)
	}
}

func TestEvaluateTruncatesPreviewOnRuneBoundary(t *testing.T) {
	vision := &fakeVision{response: `{"isValid": true, "confidence": 0.9}`}
	e := NewEvaluator(vision, "", zap.NewNop())

	long := testProposed
	long.Text = strings.Repeat("ü", previewChars+100)

	e.Evaluate(context.Background(), testCover, long)

	if !utf8.ValidString(vision.prompt) {
		t.Fatal("prompt contains invalid UTF-8 after truncation")
	}
	want := strings.Repeat("ü", previewChars) + "..."
	if !strings.Contains(vision.prompt, want) {
		t.Error("prompt missing the rune-bounded preview")
	}
	if strings.Contains(vision.prompt, strings.Repeat("ü", previewChars+1)) {
		t.Error("preview longer than the configured limit")
	}
}

func TestEvaluateDegradesOnFailure(t *testing.T) {
	testCases := []struct {
		name   string
		vision *fakeVision
	}{
		{"CallError", &fakeVision{err: errors.New("model unavailable")}},
		{"NoJSON", &fakeVision{response: "looks fine to me"}},
		{"MalformedJSON", &fakeVision{response: `{"isValid": "yes"}`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEvaluator(tc.vision, "", zap.NewNop())
			ev := e.Evaluate(context.Background(), testCover, testProposed)
			if ev.IsValid {
				t.Error("degraded evaluation must not be valid")
			}
			if ev.Confidence != 0 {
				t.Errorf("degraded evaluation must have zero confidence, got %v", ev.Confidence)
			}
			if len(ev.Issues) == 0 {
				t.Error("degraded evaluation should carry an issue")
			}
		})
	}
}
