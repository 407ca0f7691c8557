package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://www.googleapis.com/books/v1/volumes"

// Volume is one catalog entry hypothesized to be the photographed book.
// PreviewLink is the opaque handle page capture navigates to; it may be
// empty for author matches the catalog has no preview for.
type Volume struct {
	ID          string   `json:"volumeId"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	PreviewLink string   `json:"previewLink,omitempty"`
}

type Finder struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

func NewFinder(logger *zap.Logger) *Finder {
	return &Finder{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// FindCandidates returns up to max volumes ranked by how plausibly they are
// the book the caller asked for. The primary query restricts both title and
// author; when it comes up short the search broadens to title only and
// merges, preferring author matches with preview, then author matches
// without, then anything with preview, then the first result as a last
// resort. Within each tier the catalog's own relevance order is kept.
// Catalog errors degrade to an empty list so the caller can report a clean
// not-found instead of a transport error.
func (f *Finder) FindCandidates(ctx context.Context, title, author string, max int) []Volume {
	if max <= 0 || strings.TrimSpace(title) == "" {
		return nil
	}

	var out []Volume
	seen := make(map[string]bool)
	add := func(v Volume) bool {
		if !seen[v.ID] {
			seen[v.ID] = true
			out = append(out, v)
		}
		return len(out) >= max
	}

	if author != "" {
		query := fmt.Sprintf("intitle:%q inauthor:%q", title, author)
		items, err := f.search(ctx, query, 10)
		if err != nil {
			f.logger.Warn("title+author catalog search failed", zap.String("query", query), zap.Error(err))
		}
		for _, it := range items {
			if it.PreviewLink == "" {
				continue
			}
			if add(it) {
				return out
			}
		}
	}

	query := fmt.Sprintf("intitle:%q", title)
	items, err := f.search(ctx, query, 20)
	if err != nil {
		f.logger.Warn("title-only catalog search failed", zap.String("query", query), zap.Error(err))
		return out
	}

	if author != "" {
		for _, it := range items {
			if it.PreviewLink != "" && authorMatches(it.Authors, author) {
				if add(it) {
					return out
				}
			}
		}
		for _, it := range items {
			if authorMatches(it.Authors, author) {
				if add(it) {
					return out
				}
			}
		}
	}

	for _, it := range items {
		if it.PreviewLink != "" {
			if add(it) {
				return out
			}
		}
	}

	if len(out) == 0 && len(items) > 0 {
		add(items[0])
	}

	f.logger.Info("catalog search finished",
		zap.String("title", title),
		zap.String("author", author),
		zap.Int("candidates", len(out)))

	return out
}

// authorMatches tolerates partial names in either direction, e.g.
// "J.R.R. Tolkien" on the cover against "Tolkien" in the catalog.
func authorMatches(authors []string, want string) bool {
	w := strings.ToLower(strings.TrimSpace(want))
	if w == "" {
		return false
	}
	for _, a := range authors {
		al := strings.ToLower(strings.TrimSpace(a))
		if al == "" {
			continue
		}
		if strings.Contains(al, w) || strings.Contains(w, al) {
			return true
		}
	}
	return false
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title       string   `json:"title"`
			Authors     []string `json:"authors"`
			PreviewLink string   `json:"previewLink"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (f *Finder) search(ctx context.Context, query string, maxResults int) ([]Volume, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("printType", "books")
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("projection", "full")

	apiURL := f.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	volumes := make([]Volume, 0, len(body.Items))
	for _, item := range body.Items {
		volumes = append(volumes, Volume{
			ID:          item.ID,
			Title:       item.VolumeInfo.Title,
			Authors:     item.VolumeInfo.Authors,
			PreviewLink: item.VolumeInfo.PreviewLink,
		})
	}
	return volumes, nil
}
