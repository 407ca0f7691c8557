package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pagelift/analyze"
	"pagelift/capture"
	"pagelift/catalog"
	"pagelift/detect"
	"pagelift/evaluate"
	"pagelift/gemini"

	"go.uber.org/zap"
)

// Capability interfaces for the five stages. The pipeline owns the
// fatal-vs-skip decision; the stages only raise typed failures.

type Detector interface {
	DetectBook(ctx context.Context, cover gemini.Image) (*detect.Result, error)
}

type Finder interface {
	FindCandidates(ctx context.Context, title, author string, max int) []catalog.Volume
}

type Capturer interface {
	CapturePages(ctx context.Context, previewLink string) ([]capture.Page, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, pages []capture.Page) (*analyze.Analysis, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, cover gemini.Image, p evaluate.Proposed) evaluate.Evaluation
}

// Pipeline runs one extraction request end to end: detect the book on the
// cover, search the catalog, then walk the ranked candidates sequentially
// until one extraction validates or everything is exhausted. Stateless;
// safe for concurrent requests.
type Pipeline struct {
	detector  Detector
	finder    Finder
	capturer  Capturer
	analyzer  Analyzer
	evaluator Evaluator

	maxVolumes int
	threshold  float64
	progress   Sink
	logger     *zap.Logger
}

func NewPipeline(
	detector Detector,
	finder Finder,
	capturer Capturer,
	analyzer Analyzer,
	evaluator Evaluator,
	maxVolumes int,
	threshold float64,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		detector:   detector,
		finder:     finder,
		capturer:   capturer,
		analyzer:   analyzer,
		evaluator:  evaluator,
		maxVolumes: maxVolumes,
		threshold:  threshold,
		progress:   NoopSink{},
		logger:     logger,
	}
}

// WithProgress returns a copy of the pipeline publishing stage transitions
// to sink. The pipeline carries no per-request state, so the copy can run
// concurrently with the original.
func (p *Pipeline) WithProgress(sink Sink) *Pipeline {
	cp := *p
	if sink != nil {
		cp.progress = sink
	}
	return &cp
}

// Run produces exactly one Result. It never panics out: anything unexpected
// is absorbed into an extraction_failed result so the caller's process
// stays up.
func (p *Pipeline) Run(ctx context.Context, cover gemini.Image) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic recovered", zap.Any("panic", r))
			res = p.fail(ErrorExtractionFailed, fmt.Sprintf("extraction failed: %v", r))
		}
	}()

	p.emit(StageBookDetection, "analyzing cover image", nil)
	det, err := p.detector.DetectBook(ctx, cover)
	if err != nil {
		p.logger.Error("book detection failed", zap.Error(err))
		return p.fail(ErrorExtractionFailed, "could not analyze the cover image")
	}
	if !det.IsBook {
		return p.fail(ErrorNotABook, "the image does not contain a book cover")
	}
	if det.Title == "" {
		return p.fail(ErrorExtractionFailed, "could not read a title from the cover")
	}

	p.emit(StageVolumeSearch, "searching catalog", map[string]any{
		"title":  det.Title,
		"author": det.Author,
	})
	vols := p.finder.FindCandidates(ctx, det.Title, det.Author, p.maxVolumes)
	if len(vols) == 0 {
		res := p.fail(ErrorBookNotFound, "book not found in catalog")
		res.Title = det.Title
		res.Author = det.Author
		return res
	}
	// The candidate cap holds here even when a Finder implementation
	// returns more volumes than asked for.
	if len(vols) > p.maxVolumes {
		vols = vols[:p.maxVolumes]
	}

	best := bestAttempt{}
	previewMissing := true
	for i, vol := range vols {
		p.emit(StageVolumeAttempt, fmt.Sprintf("trying volume %d of %d", i+1, len(vols)), map[string]any{
			"volumeNumber": i + 1,
			"totalVolumes": len(vols),
			"volumeTitle":  vol.Title,
			"volumeId":     vol.ID,
		})

		outcome, err := p.tryCandidate(ctx, cover, det, vol)
		if err != nil {
			if !errors.Is(err, capture.ErrNoPreview) {
				previewMissing = false
			}
			p.logger.Warn("candidate skipped",
				zap.String("volume_id", vol.ID),
				zap.Int("candidate", i+1),
				zap.Error(err))
			continue
		}
		previewMissing = false

		p.emit(StageValidation, "extraction evaluated", map[string]any{
			"volumeId":   vol.ID,
			"isValid":    outcome.eval.IsValid,
			"confidence": outcome.eval.Confidence,
		})

		// First candidate over the bar wins; the remaining ones would only
		// cost more catalog, browser and model calls.
		if outcome.eval.IsValid && outcome.eval.Confidence >= p.threshold {
			outcome.result.Validated = true
			p.emit(StageCompleted, "extraction validated", map[string]any{
				"volumeId":   vol.ID,
				"confidence": outcome.eval.Confidence,
			})
			return outcome.result
		}

		best = best.consider(*outcome)
	}

	if best.ok {
		p.logger.Info("no candidate validated, returning best attempt",
			zap.Float64("confidence", best.confidence))
		p.emit(StageCompleted, "returning unvalidated best attempt", map[string]any{
			"confidence": best.confidence,
		})
		return best.result
	}

	if previewMissing {
		return p.fail(ErrorNoPreview, "no preview available for any matching volume")
	}
	return p.fail(ErrorExtractionFailed, "failed to extract valid content from any available preview")
}

// candidateOutcome is one candidate's extraction plus its judgment.
type candidateOutcome struct {
	result Result
	eval   evaluate.Evaluation
}

func (p *Pipeline) tryCandidate(ctx context.Context, cover gemini.Image, det *detect.Result, vol catalog.Volume) (*candidateOutcome, error) {
	p.emit(StagePageCapture, "capturing preview pages", map[string]any{"volumeId": vol.ID})
	pages, err := p.capturer.CapturePages(ctx, vol.PreviewLink)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("capture: %w", capture.ErrNoPreview)
	}

	p.emit(StageContentAnalysis, "analyzing captured pages", map[string]any{
		"volumeId":   vol.ID,
		"totalPages": len(pages),
	})
	an, err := p.analyzer.Analyze(ctx, pages)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	eval := p.evaluator.Evaluate(ctx, cover, evaluate.Proposed{
		Title:      det.Title,
		Author:     det.Author,
		BookType:   an.Classification.Type,
		Text:       an.Extracted.Content,
		PageNumber: an.Extracted.PageNumber,
	})

	return &candidateOutcome{
		result: Result{
			Success:    true,
			Text:       an.Extracted.Content,
			BookType:   an.Classification.Type,
			Title:      det.Title,
			Author:     det.Author,
			VolumeID:   vol.ID,
			Confidence: eval.Confidence,
			Debug: &DebugInfo{
				TotalPagesCaptured:     len(pages),
				ContentPagesIdentified: an.ContentPages,
				ActualPageExtracted:    an.Extracted.PageNumber,
			},
		},
		eval: eval,
	}, nil
}

// bestAttempt threads the best sub-threshold extraction through the
// candidate loop. Confidence starts at zero, so only attempts that beat the
// previously recorded best are kept.
type bestAttempt struct {
	ok         bool
	confidence float64
	result     Result
}

func (b bestAttempt) consider(o candidateOutcome) bestAttempt {
	if o.eval.Confidence > b.confidence {
		return bestAttempt{ok: true, confidence: o.eval.Confidence, result: o.result}
	}
	return b
}

func (p *Pipeline) fail(kind ErrorType, msg string) Result {
	p.emit(StageError, msg, map[string]any{"errorType": string(kind)})
	return Result{Error: msg, ErrorType: kind}
}

func (p *Pipeline) emit(stage Stage, msg string, details map[string]any) {
	p.progress.Emit(Update{
		Stage:     stage,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now(),
	})
}
