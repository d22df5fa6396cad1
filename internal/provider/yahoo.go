package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stella/internal/domain"
	"stella/internal/ta"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com"
	// Yahoo rejects requests without a browser-looking agent.
	yahooUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Yahoo serves quotes, daily bars, and ticker news from the public Yahoo
// Finance endpoints. It is the free primary source in most chains.
type Yahoo struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
}

func NewYahoo(tracer trace.Tracer) *Yahoo {
	return &Yahoo{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: yahooBaseURL,
		tracer:  tracer,
	}
}

func (p *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency            string  `json:"currency"`
				Symbol              string  `json:"symbol"`
				RegularMarketPrice  float64 `json:"regularMarketPrice"`
				ChartPreviousClose  float64 `json:"chartPreviousClose"`
				PreviousClose       float64 `json:"previousClose"`
				RegularMarketVolume float64 `json:"regularMarketVolume"`
				RegularMarketTime   int64   `json:"regularMarketTime"`
				FiftyTwoWeekHigh    float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow     float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Yahoo) chart(ctx context.Context, symbol, rng, interval string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		p.baseURL, url.PathEscape(symbol), rng, interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo chart: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: yahoo API error %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var payload yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: yahoo chart: %v", domain.ErrMalformedPayload, err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo chart: %s: %s", domain.ErrProviderUnavailable,
			payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: yahoo chart: empty result for %s", domain.ErrProviderUnavailable, symbol)
	}
	return &payload, nil
}

// Quote returns the spot quote for one symbol from chart metadata.
func (p *Yahoo) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.quote", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	payload, err := p.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("%w: yahoo quote: no market price for %s", domain.ErrProviderUnavailable, symbol)
	}

	prev := meta.ChartPreviousClose
	if prev == 0 {
		prev = meta.PreviousClose
	}
	q := &domain.Quote{
		Symbol:     meta.Symbol,
		Price:      meta.RegularMarketPrice,
		PrevClose:  prev,
		Volume:     meta.RegularMarketVolume,
		Currency:   meta.Currency,
		High52W:    meta.FiftyTwoWeekHigh,
		Low52W:     meta.FiftyTwoWeekLow,
		MarketTime: meta.RegularMarketTime,
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if prev > 0 {
		q.Change = q.Price - prev
		q.ChangePct = q.Change / prev * 100
	}
	return q, nil
}

// Daily returns day bars for the given range ("3mo", "1y", ...).
func (p *Yahoo) Daily(ctx context.Context, symbol, rng string) ([]domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.daily", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("range", rng),
	))
	defer span.End()

	payload, err := p.chart(ctx, symbol, rng, "1d")
	if err != nil {
		return nil, err
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: yahoo daily: no bars for %s", domain.ErrProviderUnavailable, symbol)
	}
	bars := result.Indicators.Quote[0]

	candles := make([]domain.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.Close) || bars.Close[i] == 0 {
			continue
		}
		c := domain.Candle{
			Symbol:   symbol,
			Interval: "1d",
			OpenTime: time.Unix(ts, 0).UTC(),
			Close:    bars.Close[i],
		}
		if i < len(bars.Open) {
			c.Open = bars.Open[i]
		}
		if i < len(bars.High) {
			c.High = bars.High[i]
		}
		if i < len(bars.Low) {
			c.Low = bars.Low[i]
		}
		if i < len(bars.Volume) {
			c.Volume = bars.Volume[i]
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: yahoo daily: no bars for %s", domain.ErrProviderUnavailable, symbol)
	}
	return candles, nil
}

// Metrics combines the quote with statistics over the last quarter of daily
// bars. Missing history degrades to a quote-only result, not an error.
func (p *Yahoo) Metrics(ctx context.Context, symbol string) (*domain.Metrics, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.metrics", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	quote, err := p.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m := &domain.Metrics{Quote: *quote}

	candles, err := p.Daily(ctx, symbol, "3mo")
	if err != nil {
		return m, nil
	}
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	m.SMA20 = ta.SMA(closes, 20)
	m.AvgVolume = ta.SMA(volumes, 10)
	if quote.High52W > quote.Low52W && quote.Low52W > 0 {
		m.RangePos52W = (quote.Price - quote.Low52W) / (quote.High52W - quote.Low52W)
	}
	return m, nil
}

// News returns recent headlines for a ticker or topic via the search
// endpoint.
func (p *Yahoo) News(ctx context.Context, query string, limit int) ([]domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.news", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	if limit <= 0 {
		limit = 8
	}
	u := fmt.Sprintf("%s/v1/finance/search?q=%s&newsCount=%d&quotesCount=0",
		p.baseURL, url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo news: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: yahoo API error %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var payload struct {
		News []struct {
			Title               string `json:"title"`
			Publisher           string `json:"publisher"`
			Link                string `json:"link"`
			ProviderPublishTime int64  `json:"providerPublishTime"`
		} `json:"news"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: yahoo news: %v", domain.ErrMalformedPayload, err)
	}

	items := make([]domain.NewsItem, 0, len(payload.News))
	for _, row := range payload.News {
		title := cleanNews(row.Title, 300)
		if title == "" {
			continue
		}
		item := domain.NewsItem{
			Title:  title,
			URL:    sanitizeText(row.Link, 500),
			Source: sanitizeText(row.Publisher, 120),
		}
		if row.ProviderPublishTime > 0 {
			item.PublishedAt = time.Unix(row.ProviderPublishTime, 0).UTC()
		}
		items = append(items, item)
	}
	return items, nil
}

// Fetch dispatches one (entity, kind) request onto the matching typed call.
func (p *Yahoo) Fetch(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, error) {
	switch kind {
	case domain.KindPriceData:
		m, err := p.Metrics(ctx, entity)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	case domain.KindHighlight:
		q, err := p.Quote(ctx, entity)
		if err != nil {
			return nil, err
		}
		return json.Marshal(q)
	case domain.KindNews:
		items, err := p.News(ctx, entity, 8)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: yahoo: no news for %s", domain.ErrProviderUnavailable, entity)
		}
		return json.Marshal(items)
	default:
		return nil, fmt.Errorf("%w: yahoo does not serve %s", domain.ErrProviderUnavailable, kind)
	}
}
