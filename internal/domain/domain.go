package domain

import (
	"encoding/json"
	"time"
)

// Task identifies what the user wants done with a query.
type Task string

const (
	TaskReport      Task = "report"
	TaskOverview    Task = "overview"
	TaskCompanyNews Task = "company_news"
	TaskGeneralNews Task = "general_news"
	TaskHighlights  Task = "highlights"
	TaskFollowup    Task = "followup"
)

// Kind is a category of financial data with its own freshness requirement.
type Kind string

const (
	KindPriceData Kind = "price_data"
	KindNews      Kind = "news"
	KindOverview  Kind = "overview"
	KindHighlight Kind = "highlight"
)

// AllKinds lists every data kind the cache and fetcher understand.
var AllKinds = []Kind{KindPriceData, KindNews, KindOverview, KindHighlight}

// Source records where a fetch result came from. Besides the two fixed
// values below it carries the name of whichever provider produced the data.
type Source string

const (
	SourceCache Source = "cache"
	SourceNone  Source = "none"
)

// RouteDecision is the router's answer for one query: the task to run and
// the entities it is about, in first-seen order with duplicates removed.
type RouteDecision struct {
	Task     Task     `json:"task"`
	Entities []string `json:"entities"`
	RawQuery string   `json:"raw_query"`
}

// FetchResult is the outcome of one (entity, kind) fetch. Source tells where
// the payload came from; SourceNone with Err set means the cache and every
// provider in the chain failed. Error mirrors Err for serialization.
type FetchResult struct {
	Entity  string          `json:"entity"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Source  Source          `json:"source"`
	Err     error           `json:"-"`
	Error   string          `json:"error,omitempty"`
}

// FailedResult builds the degraded FetchResult for an (entity, kind) pair
// whose cache lookup and provider chain produced nothing.
func FailedResult(entity string, kind Kind, err error) FetchResult {
	r := FetchResult{Entity: entity, Kind: kind, Source: SourceNone, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Bundle aggregates fetch results for one query. Entities preserves the
// caller's requested order for presentation; completion order is irrelevant.
type Bundle struct {
	Entities []string                        `json:"entities"`
	Results  map[string]map[Kind]FetchResult `json:"results"`
}

func NewBundle(entities []string) *Bundle {
	return &Bundle{
		Entities: append([]string(nil), entities...),
		Results:  make(map[string]map[Kind]FetchResult, len(entities)),
	}
}

func (b *Bundle) Set(r FetchResult) {
	if b.Results == nil {
		b.Results = make(map[string]map[Kind]FetchResult)
	}
	byKind, ok := b.Results[r.Entity]
	if !ok {
		byKind = make(map[Kind]FetchResult)
		b.Results[r.Entity] = byKind
	}
	byKind[r.Kind] = r
}

func (b *Bundle) Get(entity string, kind Kind) (FetchResult, bool) {
	byKind, ok := b.Results[entity]
	if !ok {
		return FetchResult{}, false
	}
	r, ok := byKind[kind]
	return r, ok
}

// Answer is what a task handler hands back to a front-end.
type Answer struct {
	Task     Task     `json:"task"`
	Entities []string `json:"entities"`
	Text     string   `json:"text"`
	Data     *Bundle  `json:"data,omitempty"`
}

// Quote is a spot market quote for one symbol.
type Quote struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	PrevClose  float64 `json:"prev_close"`
	Change     float64 `json:"change"`
	ChangePct  float64 `json:"change_pct"`
	Volume     float64 `json:"volume"`
	Currency   string  `json:"currency,omitempty"`
	High52W    float64 `json:"high_52w,omitempty"`
	Low52W     float64 `json:"low_52w,omitempty"`
	MarketTime int64   `json:"market_time_unix,omitempty"`
}

// Metrics is the richer price picture behind the report task: the spot
// quote plus a few statistics derived from recent daily bars. Derived fields
// are zero when the provider had no usable history.
type Metrics struct {
	Quote       Quote   `json:"quote"`
	SMA20       float64 `json:"sma_20,omitempty"`
	AvgVolume   float64 `json:"avg_volume_10d,omitempty"`
	RangePos52W float64 `json:"range_pos_52w,omitempty"`
}

// NewsItem is one headline from any news-capable provider, markup already
// stripped. PublishedAt is zero when the upstream gave no parseable time.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// CompanyProfile is descriptive company data backing the overview task.
type CompanyProfile struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Sector        string  `json:"sector,omitempty"`
	Industry      string  `json:"industry,omitempty"`
	Exchange      string  `json:"exchange,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"`
	High52W       float64 `json:"high_52w,omitempty"`
	Low52W        float64 `json:"low_52w,omitempty"`
}

// Highlight is one row of the multi-symbol highlights view.
type Highlight struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	ChangePct  float64 `json:"change_pct"`
	Volume     float64 `json:"volume,omitempty"`
	Signal     string  `json:"signal,omitempty"`
	SignalProb float64 `json:"signal_prob,omitempty"`
}

// Document is a pregenerated report or overview archived for one symbol on
// one calendar day.
type Document struct {
	Symbol    string    `json:"symbol"`
	DocDate   time.Time `json:"doc_date"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	DocumentReport   = "report"
	DocumentOverview = "overview"
)

// Snapshot is one end-of-cycle quote observation recorded by the warmup job.
// Snapshots accumulate into the training history for the momentum signal.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	CapturedAt time.Time `json:"captured_at"`
	Price      float64   `json:"price"`
	ChangePct  float64   `json:"change_pct"`
	Volume     float64   `json:"volume"`
}
