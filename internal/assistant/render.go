package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"stella/internal/domain"
)

// User-facing fallback strings. The assistant never errors at a caller;
// these are what degraded paths say instead.
const (
	msgNoSubject  = `I couldn't find a company or ticker in that. Try naming one, for example "report on TSLA".`
	msgNoFollowup = "There's nothing to follow up on yet. Ask about a company first."
	msgDataGap    = "Price data temporarily unavailable."
	msgNewsGap    = "No recent news available."
)

const maxNewsLines = 8

func metricsFrom(b *domain.Bundle, entity string) (domain.Metrics, bool) {
	var m domain.Metrics
	if !decodePayload(b, entity, domain.KindPriceData, &m) {
		return domain.Metrics{}, false
	}
	return m, m.Quote.Price > 0
}

func quoteFrom(b *domain.Bundle, entity string) (domain.Quote, bool) {
	var q domain.Quote
	if !decodePayload(b, entity, domain.KindHighlight, &q) {
		return domain.Quote{}, false
	}
	return q, q.Price > 0
}

func profileFrom(b *domain.Bundle, entity string) (domain.CompanyProfile, bool) {
	var p domain.CompanyProfile
	if !decodePayload(b, entity, domain.KindOverview, &p) {
		return domain.CompanyProfile{}, false
	}
	return p, p.Name != "" || p.Description != ""
}

func newsFrom(b *domain.Bundle, entity string) []domain.NewsItem {
	var items []domain.NewsItem
	if !decodePayload(b, entity, domain.KindNews, &items) {
		return nil
	}
	return items
}

func decodePayload(b *domain.Bundle, entity string, kind domain.Kind, out any) bool {
	if b == nil {
		return false
	}
	r, ok := b.Get(entity, kind)
	if !ok || len(r.Payload) == 0 {
		return false
	}
	return json.Unmarshal(r.Payload, out) == nil
}

func bundleHasNews(b *domain.Bundle) bool {
	if b == nil {
		return false
	}
	for _, e := range b.Entities {
		if len(newsFrom(b, e)) > 0 {
			return true
		}
	}
	return false
}

// renderReportish is the deterministic body for report and follow-up
// tasks: per-entity price metrics plus recent headlines.
func (a *Assistant) renderReportish(b *domain.Bundle) string {
	if b == nil || len(b.Entities) == 0 {
		return msgDataGap
	}
	sections := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s\n\n", e)
		if m, ok := metricsFrom(b, e); ok {
			sb.WriteString(renderMetrics(m))
		} else {
			sb.WriteString(msgDataGap)
			sb.WriteString("\n")
		}
		sb.WriteString("\nRecent news:\n")
		sb.WriteString(renderNewsItems(newsFrom(b, e)))
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func (a *Assistant) renderOverview(b *domain.Bundle) string {
	if b == nil || len(b.Entities) == 0 {
		return msgDataGap
	}
	sections := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		var sb strings.Builder
		if p, ok := profileFrom(b, e); ok {
			sb.WriteString(renderProfile(p))
		} else {
			fmt.Fprintf(&sb, "## %s\n\nCompany profile temporarily unavailable.\n", e)
		}
		if m, ok := metricsFrom(b, e); ok {
			sb.WriteString("\n")
			sb.WriteString(renderQuote(m.Quote))
		}
		sb.WriteString("\nRecent news:\n")
		sb.WriteString(renderNewsItems(newsFrom(b, e)))
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// renderHighlights builds the per-symbol snapshot table. This stays
// deterministic even with an LLM configured; only the news digest below
// it is generated.
func (a *Assistant) renderHighlights(b *domain.Bundle) string {
	if b == nil || len(b.Entities) == 0 {
		return msgNoSubject
	}
	rows := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		var sb strings.Builder
		fmt.Fprintf(&sb, "**%s**\n", e)
		q, ok := quoteFrom(b, e)
		if !ok {
			sb.WriteString("Current Price: unavailable\n")
			rows = append(rows, strings.TrimRight(sb.String(), "\n"))
			continue
		}
		fmt.Fprintf(&sb, "Current Price: %.2f\n", q.Price)
		fmt.Fprintf(&sb, "Daily Change: %+.2f%%\n", q.ChangePct)
		if q.Volume > 0 {
			fmt.Fprintf(&sb, "Volume: %.0f\n", q.Volume)
		}
		if a.signal != nil {
			label, prob := a.signal(e, q.ChangePct)
			if label != "" {
				fmt.Fprintf(&sb, "Signal: %s (%.0f%%)\n", label, prob*100)
			}
		}
		rows = append(rows, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(rows, "\n\n")
}

// renderNewsDigest is the deterministic body for the news tasks.
func renderNewsDigest(b *domain.Bundle) string {
	if b == nil || len(b.Entities) == 0 {
		return msgNewsGap
	}
	if len(b.Entities) == 1 {
		return strings.TrimRight(renderNewsItems(newsFrom(b, b.Entities[0])), "\n")
	}
	sections := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		sections = append(sections, fmt.Sprintf("**%s**\n%s", e, strings.TrimRight(renderNewsItems(newsFrom(b, e)), "\n")))
	}
	return strings.Join(sections, "\n\n")
}

// renderNewsSections formats per-entity headlines for the highlights news
// prompt. Empty when no entity has news.
func renderNewsSections(b *domain.Bundle) string {
	if b == nil {
		return ""
	}
	sections := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		items := newsFrom(b, e)
		if len(items) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("**%s**\n%s", e, strings.TrimRight(renderNewsItems(items), "\n")))
	}
	return strings.Join(sections, "\n\n")
}

func renderMetrics(m domain.Metrics) string {
	var sb strings.Builder
	sb.WriteString(renderQuote(m.Quote))
	if m.SMA20 > 0 {
		fmt.Fprintf(&sb, "20-day SMA: %.2f\n", m.SMA20)
	}
	if m.AvgVolume > 0 {
		fmt.Fprintf(&sb, "10-day avg volume: %.0f\n", m.AvgVolume)
	}
	if m.RangePos52W > 0 {
		fmt.Fprintf(&sb, "52-week range position: %.0f%%\n", m.RangePos52W*100)
	}
	return sb.String()
}

func renderQuote(q domain.Quote) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\n", q.Symbol)
	cur := q.Currency
	if cur == "" {
		cur = "USD"
	}
	fmt.Fprintf(&sb, "Price: %.2f %s (%+.2f%% today)\n", q.Price, cur, q.ChangePct)
	if q.PrevClose > 0 {
		fmt.Fprintf(&sb, "Previous close: %.2f\n", q.PrevClose)
	}
	if q.Volume > 0 {
		fmt.Fprintf(&sb, "Volume: %.0f\n", q.Volume)
	}
	if q.High52W > 0 && q.Low52W > 0 {
		fmt.Fprintf(&sb, "52-week range: %.2f - %.2f\n", q.Low52W, q.High52W)
	}
	return sb.String()
}

func renderProfile(p domain.CompanyProfile) string {
	var sb strings.Builder
	name := p.Name
	if name == "" {
		name = p.Symbol
	}
	fmt.Fprintf(&sb, "## %s (%s)\n\n", name, p.Symbol)
	if p.Sector != "" {
		fmt.Fprintf(&sb, "Sector: %s\n", p.Sector)
	}
	if p.Industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", p.Industry)
	}
	if p.Exchange != "" {
		fmt.Fprintf(&sb, "Exchange: %s\n", p.Exchange)
	}
	if p.MarketCap > 0 {
		fmt.Fprintf(&sb, "Market cap: %s\n", humanAmount(p.MarketCap))
	}
	if p.PERatio > 0 {
		fmt.Fprintf(&sb, "P/E ratio: %.2f\n", p.PERatio)
	}
	if p.DividendYield > 0 {
		fmt.Fprintf(&sb, "Dividend yield: %.2f%%\n", p.DividendYield*100)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", p.Description)
	}
	return sb.String()
}

func renderNewsItems(items []domain.NewsItem) string {
	if len(items) == 0 {
		return msgNewsGap + "\n"
	}
	if len(items) > maxNewsLines {
		items = items[:maxNewsLines]
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it.Title)
		if it.Source != "" {
			fmt.Fprintf(&sb, " (%s)", it.Source)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// humanAmount renders large money amounts the way finance sites do.
func humanAmount(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	}
	return fmt.Sprintf("%.0f", v)
}
