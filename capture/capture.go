package capture

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoPreview signals the preview surface reported that no preview exists
// for this volume. Candidate-scoped: the caller moves on to the next one.
var ErrNoPreview = errors.New("preview not available")

// Page is one captured preview page. Index is the 1-based capture order.
type Page struct {
	Index int
	PNG   []byte
}

// Session is an open preview surface positioned on its first page.
type Session interface {
	// Capture screenshots the currently displayed page.
	Capture(ctx context.Context) ([]byte, error)
	// Advance moves to the next page. False means the surface cannot
	// advance any further.
	Advance(ctx context.Context) (bool, error)
	Close()
}

// Opener locates a volume's preview and opens a session on it. The
// navigation mechanics behind it are the least stable part of the system,
// which is exactly why they sit behind this interface.
type Opener interface {
	Open(ctx context.Context, previewLink string) (Session, error)
}

type Capturer struct {
	opener   Opener
	maxPages int
	logger   *zap.Logger
}

func NewCapturer(opener Opener, maxPages int, logger *zap.Logger) *Capturer {
	return &Capturer{opener: opener, maxPages: maxPages, logger: logger}
}

// CapturePages walks the preview one page at a time, capturing each page up
// to the configured maximum. It stops early when the surface cannot advance
// or when two consecutive captures are identical, which means the advance
// silently failed and further input would only loop on the same page.
func (c *Capturer) CapturePages(ctx context.Context, previewLink string) ([]Page, error) {
	sess, err := c.opener.Open(ctx, previewLink)
	if err != nil {
		return nil, fmt.Errorf("open preview: %w", err)
	}
	defer sess.Close()

	var pages []Page
	var lastSum [sha256.Size]byte
	for i := 1; i <= c.maxPages; i++ {
		shot, err := sess.Capture(ctx)
		if err != nil {
			if len(pages) == 0 {
				return nil, fmt.Errorf("capture page %d: %w", i, err)
			}
			c.logger.Warn("capture failed mid-sequence, keeping earlier pages",
				zap.Int("page", i), zap.Error(err))
			break
		}

		sum := sha256.Sum256(shot)
		if i > 1 && sum == lastSum {
			c.logger.Debug("page did not change after advance, stopping", zap.Int("page", i))
			break
		}
		lastSum = sum
		pages = append(pages, Page{Index: i, PNG: shot})

		if i == c.maxPages {
			break
		}
		ok, err := sess.Advance(ctx)
		if err != nil {
			c.logger.Warn("page advance failed", zap.Int("page", i), zap.Error(err))
			break
		}
		if !ok {
			break
		}
	}

	c.logger.Info("page capture finished", zap.Int("pages", len(pages)))
	return pages, nil
}
