package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"stella/internal/domain"
	"stella/internal/ta"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const alphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantage serves quotes, daily series, company overviews, and ticker
// news sentiment. The free tier is tightly rate limited, so every call goes
// through a token bucket and throttle notes count as provider failures.
type AlphaVantage struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewAlphaVantage(apiKey string, rpm int, tracer trace.Tracer) *AlphaVantage {
	return &AlphaVantage{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: alphaVantageBaseURL,
		apiKey:  apiKey,
		limiter: PerMinute(rpm),
		tracer:  tracer,
	}
}

func (p *AlphaVantage) Name() string { return "alphavantage" }

func (p *AlphaVantage) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: alphavantage rate limit wait: %v", domain.ErrProviderUnavailable, err)
	}

	params.Set("apikey", p.apiKey)
	u := strings.TrimRight(p.baseURL, "/") + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: alphavantage: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: alphavantage API error %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: alphavantage: %v", domain.ErrProviderUnavailable, err)
	}

	// Throttle and error notes come back with status 200.
	var note struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &note); err == nil {
		if note.Note != "" || note.Information != "" || note.ErrorMessage != "" {
			msg := note.Note + note.Information + note.ErrorMessage
			return nil, fmt.Errorf("%w: alphavantage: %s", domain.ErrProviderUnavailable, sanitizeText(msg, 200))
		}
	}
	return body, nil
}

// avFloat parses Alpha Vantage's stringly-typed numerics; "1.23%" included.
func avFloat(v string) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "%")
	if v == "" || v == "None" || v == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// GlobalQuote returns the spot quote for one symbol.
func (p *AlphaVantage) GlobalQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.global-quote", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	body, err := p.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Quote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			Volume        string `json:"06. volume"`
			PreviousClose string `json:"08. previous close"`
			Change        string `json:"09. change"`
			ChangePercent string `json:"10. change percent"`
		} `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: alphavantage quote: %v", domain.ErrMalformedPayload, err)
	}
	if payload.Quote.Symbol == "" || avFloat(payload.Quote.Price) == 0 {
		return nil, fmt.Errorf("%w: alphavantage: no quote for %s", domain.ErrProviderUnavailable, symbol)
	}

	return &domain.Quote{
		Symbol:    payload.Quote.Symbol,
		Price:     avFloat(payload.Quote.Price),
		PrevClose: avFloat(payload.Quote.PreviousClose),
		Change:    avFloat(payload.Quote.Change),
		ChangePct: avFloat(payload.Quote.ChangePercent),
		Volume:    avFloat(payload.Quote.Volume),
	}, nil
}

// Daily returns recent day bars, oldest first.
func (p *AlphaVantage) Daily(ctx context.Context, symbol string) ([]domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.daily", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")

	body, err := p.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Series map[string]struct {
			Open   string `json:"1. open"`
			High   string `json:"2. high"`
			Low    string `json:"3. low"`
			Close  string `json:"4. close"`
			Volume string `json:"5. volume"`
		} `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: alphavantage daily: %v", domain.ErrMalformedPayload, err)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("%w: alphavantage: no daily series for %s", domain.ErrProviderUnavailable, symbol)
	}

	dates := make([]string, 0, len(payload.Series))
	for d := range payload.Series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	candles := make([]domain.Candle, 0, len(dates))
	for _, d := range dates {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		bar := payload.Series[d]
		candles = append(candles, domain.Candle{
			Symbol:   symbol,
			Interval: "1d",
			OpenTime: day.UTC(),
			Open:     avFloat(bar.Open),
			High:     avFloat(bar.High),
			Low:      avFloat(bar.Low),
			Close:    avFloat(bar.Close),
			Volume:   avFloat(bar.Volume),
		})
	}
	return candles, nil
}

// Metrics combines the quote with statistics over the compact daily series.
func (p *AlphaVantage) Metrics(ctx context.Context, symbol string) (*domain.Metrics, error) {
	quote, err := p.GlobalQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m := &domain.Metrics{Quote: *quote}

	candles, err := p.Daily(ctx, symbol)
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
	return m, nil
}

// News returns ticker news from the sentiment feed.
func (p *AlphaVantage) News(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.news", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	if limit <= 0 {
		limit = 8
	}
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", strings.ToUpper(symbol))
	params.Set("limit", strconv.Itoa(limit))

	body, err := p.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Feed []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			TimePublished string `json:"time_published"`
			Summary       string `json:"summary"`
			Source        string `json:"source"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: alphavantage news: %v", domain.ErrMalformedPayload, err)
	}

	items := make([]domain.NewsItem, 0, len(payload.Feed))
	for _, row := range payload.Feed {
		if len(items) >= limit {
			break
		}
		title := cleanNews(row.Title, 300)
		if title == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			Title:       title,
			Summary:     cleanNews(row.Summary, 420),
			URL:         sanitizeText(row.URL, 500),
			Source:      sanitizeText(row.Source, 120),
			PublishedAt: parseNewsTime(row.TimePublished),
		})
	}
	return items, nil
}

// Overview returns descriptive company data.
func (p *AlphaVantage) Overview(ctx context.Context, symbol string) (*domain.CompanyProfile, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.overview", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	body, err := p.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Symbol        string `json:"Symbol"`
		Name          string `json:"Name"`
		Description   string `json:"Description"`
		Sector        string `json:"Sector"`
		Industry      string `json:"Industry"`
		Exchange      string `json:"Exchange"`
		Currency      string `json:"Currency"`
		MarketCap     string `json:"MarketCapitalization"`
		PERatio       string `json:"PERatio"`
		DividendYield string `json:"DividendYield"`
		High52W       string `json:"52WeekHigh"`
		Low52W        string `json:"52WeekLow"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: alphavantage overview: %v", domain.ErrMalformedPayload, err)
	}
	if payload.Symbol == "" && payload.Name == "" {
		return nil, fmt.Errorf("%w: alphavantage: no overview for %s", domain.ErrProviderUnavailable, symbol)
	}

	return &domain.CompanyProfile{
		Symbol:        payload.Symbol,
		Name:          sanitizeText(payload.Name, 200),
		Description:   cleanNews(payload.Description, 2000),
		Sector:        sanitizeText(payload.Sector, 120),
		Industry:      sanitizeText(payload.Industry, 120),
		Exchange:      sanitizeText(payload.Exchange, 60),
		Currency:      sanitizeText(payload.Currency, 20),
		MarketCap:     avFloat(payload.MarketCap),
		PERatio:       avFloat(payload.PERatio),
		DividendYield: avFloat(payload.DividendYield),
		High52W:       avFloat(payload.High52W),
		Low52W:        avFloat(payload.Low52W),
	}, nil
}

// Fetch dispatches one (entity, kind) request onto the matching typed call.
func (p *AlphaVantage) Fetch(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, error) {
	switch kind {
	case domain.KindPriceData:
		m, err := p.Metrics(ctx, entity)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	case domain.KindHighlight:
		q, err := p.GlobalQuote(ctx, entity)
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
			return nil, fmt.Errorf("%w: alphavantage: no news for %s", domain.ErrProviderUnavailable, entity)
		}
		return json.Marshal(items)
	case domain.KindOverview:
		profile, err := p.Overview(ctx, entity)
		if err != nil {
			return nil, err
		}
		return json.Marshal(profile)
	default:
		return nil, fmt.Errorf("%w: alphavantage does not serve %s", domain.ErrProviderUnavailable, kind)
	}
}
