package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// Browser opens preview links in headless Chrome. One fresh browser context
// per session; preview surfaces misbehave when state leaks between volumes.
type Browser struct {
	logger     *zap.Logger
	opts       []chromedp.ExecAllocatorOption
	navTimeout time.Duration
	stepWait   time.Duration
}

func NewBrowser(logger *zap.Logger, navTimeout, stepWait time.Duration) *Browser {
	return &Browser{
		logger:     logger,
		navTimeout: navTimeout,
		stepWait:   stepWait,
		opts: append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Headless,
			chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),

			// Stealth options
			chromedp.Flag("accept-language", "en-US,en;q=0.9"),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("exclude-switches", "enable-automation"),
			chromedp.Flag("disable-extensions", ""),
		),
	}
}

// NormalizePreviewLink ensures the reader parameters the preview surface
// needs to open the paged view instead of the about page.
func NormalizePreviewLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	if q.Get("gbpv") == "" {
		q.Set("gbpv", "1")
	}
	if q.Get("pg") == "" {
		q.Set("pg", "PP1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Browser) Open(ctx context.Context, previewLink string) (Session, error) {
	if strings.TrimSpace(previewLink) == "" {
		return nil, ErrNoPreview
	}
	target := NormalizePreviewLink(previewLink)

	// ================
	// Browser Context
	// ================
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		taskCancel()
		allocCancel()
	}

	b.logger.Info("opening preview", zap.String("url", target))

	navCtx, navCancel := context.WithTimeout(taskCtx, b.navTimeout)
	defer navCancel()
	err := chromedp.Run(navCtx,
		emulation.SetDeviceMetricsOverride(1400, 900, 1, false),
		chromedp.Navigate(target),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("navigate to preview: %w", err)
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html)); err == nil {
		if previewMissing(html) {
			cancel()
			return nil, ErrNoPreview
		}
	}

	s := &browserSession{
		logger:   b.logger,
		ctx:      taskCtx,
		cancel:   cancel,
		stepWait: b.stepWait,
	}
	s.dismissDialogs()
	return s, nil
}

func previewMissing(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range []string{
		"no preview available",
		"no ebook available",
		"snippet view",
	} {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

type browserSession struct {
	logger   *zap.Logger
	ctx      context.Context
	cancel   func()
	stepWait time.Duration
}

// The next-page control moves around between surface revisions; keep the
// selector list short and fall back to keyboard input when none hits.
var nextSelectors = []string{
	`button[aria-label="Next page"]`,
	`button[aria-label="Go to next page"]`,
	`div[role="button"][aria-label*="Next"]`,
	`div[role="toolbar"] button[aria-label*="Next"]`,
}

var dismissSelectors = []string{
	`div[role="dialog"] button[aria-label="Close"]`,
	`button[aria-label="Dismiss"]`,
}

func (s *browserSession) Capture(ctx context.Context) ([]byte, error) {
	capCtx, capCancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer capCancel()

	var buf []byte
	err := chromedp.Run(capCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (s *browserSession) Advance(ctx context.Context) (bool, error) {
	// Click strategies first; keyboard focus is the least reliable input on
	// real preview surfaces, so it stays the fallback.
	for _, sel := range nextSelectors {
		clickCtx, clickCancel := context.WithTimeout(s.ctx, 2*time.Second)
		err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		clickCancel()
		if err == nil {
			s.settle()
			return true, nil
		}
	}

	s.logger.Debug("next button not found, trying keyboard navigation")
	if err := chromedp.Run(s.ctx, chromedp.KeyEvent(kb.ArrowRight)); err != nil {
		return false, fmt.Errorf("advance page: %w", err)
	}
	s.settle()
	return true, nil
}

func (s *browserSession) Close() {
	s.cancel()
}

func (s *browserSession) settle() {
	_ = chromedp.Run(s.ctx, chromedp.Sleep(s.stepWait))
}

func (s *browserSession) dismissDialogs() {
	for _, sel := range dismissSelectors {
		clickCtx, clickCancel := context.WithTimeout(s.ctx, 500*time.Millisecond)
		err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		clickCancel()
		if err == nil {
			s.logger.Debug("dismissed dialog", zap.String("selector", sel))
			s.settle()
			return
		}
	}
}
