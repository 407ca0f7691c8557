package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestFinder(handler http.HandlerFunc) (*Finder, *httptest.Server) {
	srv := httptest.NewServer(handler)
	f := NewFinder(zap.NewNop())
	f.baseURL = srv.URL
	return f, srv
}

func volumeJSON(id, title, author, previewLink string) string {
	authors := "[]"
	if author != "" {
		authors = fmt.Sprintf(`[%q]`, author)
	}
	preview := ""
	if previewLink != "" {
		preview = fmt.Sprintf(`, "previewLink": %q`, previewLink)
	}
	return fmt.Sprintf(`{"id": %q, "volumeInfo": {"title": %q, "authors": %s%s}}`,
		id, title, authors, preview)
}

func itemsJSON(items ...string) string {
	return fmt.Sprintf(`{"totalItems": %d, "items": [%s]}`, len(items), strings.Join(items, ","))
}

func TestFindCandidatesPrimaryQuery(t *testing.T) {
	f, srv := newTestFinder(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "inauthor:") {
			t.Errorf("expected only the title+author query, got %q", q)
		}
		fmt.Fprint(w, itemsJSON(
			volumeJSON("v1", "The Hobbit", "J.R.R. Tolkien", "https://books.example/v1"),
			volumeJSON("v2", "The Hobbit", "J.R.R. Tolkien", "https://books.example/v2"),
			volumeJSON("v3", "The Hobbit", "J.R.R. Tolkien", "https://books.example/v3"),
		))
	})
	defer srv.Close()

	vols := f.FindCandidates(context.Background(), "The Hobbit", "Tolkien", 2)
	if len(vols) != 2 {
		t.Fatalf("expected cap of 2 candidates, got %d", len(vols))
	}
	if vols[0].ID != "v1" || vols[1].ID != "v2" {
		t.Errorf("catalog relevance order not preserved: %+v", vols)
	}
}

func TestFindCandidatesMergesFallback(t *testing.T) {
	f, srv := newTestFinder(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "inauthor:") {
			fmt.Fprint(w, itemsJSON(
				volumeJSON("v1", "Dune", "Frank Herbert", "https://books.example/v1"),
			))
			return
		}
		fmt.Fprint(w, itemsJSON(
			// Already found by the primary query; must be deduplicated.
			volumeJSON("v1", "Dune", "Frank Herbert", "https://books.example/v1"),
			// Unrelated author but has a preview.
			volumeJSON("v2", "Dune Encyclopedia", "Willis McNelly", "https://books.example/v2"),
			// Author match without preview.
			volumeJSON("v3", "Dune Messiah", "Frank Herbert", ""),
			// Author match with preview; outranks the two above.
			volumeJSON("v4", "Children of Dune", "Herbert", "https://books.example/v4"),
		))
	})
	defer srv.Close()

	vols := f.FindCandidates(context.Background(), "Dune", "Frank Herbert", 5)
	got := make([]string, len(vols))
	for i, v := range vols {
		got[i] = v.ID
	}
	want := []string{"v1", "v4", "v3", "v2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFindCandidatesAuthorSubstringBothDirections(t *testing.T) {
	if !authorMatches([]string{"J.R.R. Tolkien"}, "Tolkien") {
		t.Error("catalog author containing query author should match")
	}
	if !authorMatches([]string{"Tolkien"}, "J.R.R. Tolkien") {
		t.Error("query author containing catalog author should match")
	}
	if authorMatches([]string{"Frank Herbert"}, "Tolkien") {
		t.Error("unrelated authors should not match")
	}
	if authorMatches([]string{""}, "") {
		t.Error("empty strings should not match")
	}
}

func TestFindCandidatesLastResort(t *testing.T) {
	f, srv := newTestFinder(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemsJSON(
			volumeJSON("v1", "Obscure Title", "Somebody Else", ""),
			volumeJSON("v2", "Obscure Title II", "Somebody Else", ""),
		))
	})
	defer srv.Close()

	vols := f.FindCandidates(context.Background(), "Obscure Title", "Nonmatching Author", 5)
	if len(vols) != 1 || vols[0].ID != "v1" {
		t.Errorf("expected first result as last resort, got %+v", vols)
	}
}

func TestFindCandidatesFailsSoftly(t *testing.T) {
	f, srv := newTestFinder(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	defer srv.Close()

	vols := f.FindCandidates(context.Background(), "Any Title", "Any Author", 5)
	if len(vols) != 0 {
		t.Errorf("expected empty list on catalog error, got %+v", vols)
	}
}

func TestFindCandidatesEmptyTitle(t *testing.T) {
	f, srv := newTestFinder(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no catalog request expected for empty title")
	})
	defer srv.Close()

	if vols := f.FindCandidates(context.Background(), "  ", "Author", 5); vols != nil {
		t.Errorf("expected nil, got %+v", vols)
	}
}
