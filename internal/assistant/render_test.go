package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"stella/internal/domain"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestHumanAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{2.5e12, "2.50T"},
		{3.1e9, "3.10B"},
		{4.2e6, "4.20M"},
		{950000, "950000"},
	}
	for _, tc := range cases {
		if got := humanAmount(tc.in); got != tc.want {
			t.Errorf("humanAmount(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderNewsItemsCapped(t *testing.T) {
	var items []domain.NewsItem
	for i := 0; i < maxNewsLines+4; i++ {
		items = append(items, domain.NewsItem{Title: fmt.Sprintf("headline %d", i)})
	}
	out := renderNewsItems(items)
	if n := strings.Count(out, "- headline"); n != maxNewsLines {
		t.Fatalf("expected %d lines, got %d", maxNewsLines, n)
	}
}

func TestRenderNewsItemsEmpty(t *testing.T) {
	if got := renderNewsItems(nil); !strings.Contains(got, msgNewsGap) {
		t.Fatalf("expected %q, got %q", msgNewsGap, got)
	}
}

func TestRenderProfile(t *testing.T) {
	p := domain.CompanyProfile{
		Symbol:        "TSLA",
		Name:          "Tesla, Inc.",
		Sector:        "Consumer Cyclical",
		MarketCap:     8.0e11,
		PERatio:       65.2,
		DividendYield: 0,
		Description:   "Electric vehicles and energy storage.",
	}
	out := renderProfile(p)
	for _, want := range []string{"## Tesla, Inc. (TSLA)", "Sector: Consumer Cyclical", "Market cap: 800.00B", "P/E ratio: 65.20", "Electric vehicles"} {
		if !strings.Contains(out, want) {
			t.Fatalf("profile missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Dividend yield") {
		t.Fatalf("zero dividend yield should be omitted:\n%s", out)
	}
}

func TestRenderNewsDigestMultiEntity(t *testing.T) {
	b := domain.NewBundle([]string{"TSLA", "AAPL"})
	b.Set(domain.FetchResult{
		Entity: "TSLA", Kind: domain.KindNews, Source: "stub",
		Payload: mustJSON(t, []domain.NewsItem{{Title: "Tesla news"}}),
	})
	b.Set(domain.FetchResult{
		Entity: "AAPL", Kind: domain.KindNews, Source: "stub",
		Payload: mustJSON(t, []domain.NewsItem{{Title: "Apple news"}}),
	})

	out := renderNewsDigest(b)
	for _, want := range []string{"**TSLA**", "- Tesla news", "**AAPL**", "- Apple news"} {
		if !strings.Contains(out, want) {
			t.Fatalf("digest missing %q:\n%s", want, out)
		}
	}
}
