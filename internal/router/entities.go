package router

import (
	"regexp"
	"sort"
	"strings"
)

// aliasTable maps well-known company names to tickers. Consulted before the
// classifier so common queries never need an external call. Order does not
// matter; matches are sorted by query position.
var aliasTable = []struct {
	alias  string
	ticker string
}{
	{"apple", "AAPL"},
	{"nvidia", "NVDA"},
	{"tesla", "TSLA"},
	{"samsung", "005930.KS"},
	{"mcdonalds", "MCD"},
	{"microsoft", "MSFT"},
	{"alibaba", "BABA"},
	{"hyundai", "005380.KS"},
	{"bank of america", "BAC"},
	{"jpmorgan", "JPM"},
}

var aliasPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(aliasTable))
	for i, a := range aliasTable {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(a.alias) + `\b`)
	}
	return out
}()

// tickerRe picks up raw ticker mentions like TSLA or NVDA.
var tickerRe = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// tickerStoplist holds uppercase words that look like tickers but never
// are in this context.
var tickerStoplist = map[string]bool{
	"ABOUT": true, "AI": true, "AND": true, "CEO": true, "CFO": true,
	"CPI": true, "CTO": true, "EPS": true, "ETF": true, "EU": true,
	"EUR": true, "FED": true, "FOR": true, "GDP": true, "IPO": true,
	"NEWS": true, "NYSE": true, "OK": true, "PE": true, "SEC": true,
	"STOCK": true, "THE": true, "UK": true, "US": true, "USA": true,
	"USD": true, "YTD": true,
}

// ScanEntities extracts ticker entities from free text: known company
// aliases first-class, plus anything that already looks like a ticker.
// Results are deduplicated in order of appearance.
func ScanEntities(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	type match struct {
		pos    int
		ticker string
	}
	var matches []match

	lower := strings.ToLower(text)
	for i, re := range aliasPatterns {
		if loc := re.FindStringIndex(lower); loc != nil {
			matches = append(matches, match{loc[0], aliasTable[i].ticker})
		}
	}
	for _, loc := range tickerRe.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		if tickerStoplist[word] {
			continue
		}
		matches = append(matches, match{loc[0], word})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if seen[m.ticker] {
			continue
		}
		seen[m.ticker] = true
		out = append(out, m.ticker)
	}
	return out
}
