package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultCallTimeout = 2 * time.Minute

// Image is raw encoded image bytes plus the declared mime type. Callers are
// expected to hand over images that are already validated and normalized.
type Image struct {
	Data []byte
	MIME string
}

// Client calls a single Gemini model with one or more images and a prompt.
// One Client per model; they are cheap and share nothing.
type Client struct {
	apiKey      string
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

func NewClient(apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		temperature: 0.3,
		timeout:     timeout,
		logger:      logger,
	}
}

func (c *Client) ClassifyImage(ctx context.Context, prompt string, img Image) (string, error) {
	return c.generate(ctx, prompt, []Image{img})
}

func (c *Client) ClassifyImages(ctx context.Context, prompt string, imgs []Image) (string, error) {
	return c.generate(ctx, prompt, imgs)
}

func (c *Client) generate(ctx context.Context, prompt string, imgs []Image) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini: api key is empty")
	}

	// The pipeline runs on a context with no deadline, so the bound on a
	// single model call is applied here.
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.model)
	m.SetTemperature(c.temperature)

	parts := make([]genai.Part, 0, len(imgs)+1)
	for _, img := range imgs {
		parts = append(parts, genai.ImageData(imageFormat(img.MIME), img.Data))
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from gemini")
	}

	c.logger.Debug("gemini call finished",
		zap.String("model", c.model),
		zap.Int("images", len(imgs)),
		zap.Int("response_chars", sb.Len()))

	return sb.String(), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// imageFormat maps a mime type to the bare format genai.ImageData expects,
// e.g. "image/png" -> "png".
func imageFormat(mime string) string {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
	if format == "" {
		return "jpeg"
	}
	return format
}
