package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"stella/internal/domain"
)

func TestBraveNews(t *testing.T) {
	t.Parallel()

	p := NewBrave("brave-key", testTracer)
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/res/v1/news/search") {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if req.Header.Get("X-Subscription-Token") != "brave-key" {
				t.Fatal("missing subscription token")
			}
			q := req.URL.Query()
			if q.Get("freshness") != "pd" || !strings.Contains(q.Get("q"), "semiconductors") {
				t.Fatalf("unexpected query: %s", req.URL.RawQuery)
			}
			body := `{"results":[
				{"title":"Chip stocks <strong>rally</strong>","url":"https://e.x/a",
				 "description":"Chipmakers rose<br>sharply.","page_age":"2025-01-03T10:00:00",
				 "meta_url":{"hostname":"example.com"}}
			]}`
			return jsonResponse(http.StatusOK, body), nil
		}),
	}

	items, err := p.News(context.Background(), "semiconductors", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Chip stocks rally" || items[0].Summary != "Chipmakers rosesharply." {
		t.Fatalf("markup not stripped: %+v", items[0])
	}
	if items[0].Source != "example.com" {
		t.Fatalf("source = %q", items[0].Source)
	}
}

func TestBraveAPIError(t *testing.T) {
	t.Parallel()

	p := NewBrave("brave-key", testTracer)
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{"error":"bad token"}`), nil
		}),
	}

	_, err := p.News(context.Background(), "markets", 5)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestBraveFetchOnlyNews(t *testing.T) {
	t.Parallel()

	p := NewBrave("brave-key", testTracer)
	if _, err := p.Fetch(context.Background(), "TSLA", domain.KindPriceData); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable for non-news kind, got %v", err)
	}
}
