package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"stella/internal/domain"
	"stella/internal/router"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultModel = "gpt-4o-mini"

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// QueryRouter turns raw text into a route decision; *router.Router
// satisfies it.
type QueryRouter interface {
	Route(ctx context.Context, query string, history *router.History) domain.RouteDecision
}

// Orchestrator fans out the data fetches a task needs; satisfied by
// *fetcher.Orchestrator.
type Orchestrator interface {
	FetchMany(ctx context.Context, entities []string, kinds []domain.Kind) *domain.Bundle
}

// Archive looks up pregenerated documents. LatestDocument returns
// (nil, nil) when no document exists for the symbol and kind.
type Archive interface {
	LatestDocument(ctx context.Context, symbol, kind string) (*domain.Document, error)
}

// SignalFunc annotates a highlight row with a directional signal and its
// probability. Optional; highlights render without one.
type SignalFunc func(symbol string, changePct float64) (string, float64)

// Assistant executes routed tasks: it gathers data through the
// orchestrator and renders an answer, through the LLM when one is
// configured and deterministically otherwise. Every degraded path still
// produces an answer.
type Assistant struct {
	tracer  trace.Tracer
	router  QueryRouter
	orch    Orchestrator
	llm     LLMClient
	model   string
	archive Archive
	signal  SignalFunc
}

func New(
	r QueryRouter,
	orch Orchestrator,
	llm LLMClient,
	model string,
	archive Archive,
	signal SignalFunc,
	tracer trace.Tracer,
) *Assistant {
	if model == "" {
		model = defaultModel
	}
	return &Assistant{
		tracer:  tracer,
		router:  r,
		orch:    orch,
		llm:     llm,
		model:   model,
		archive: archive,
		signal:  signal,
	}
}

// Answer routes one query, runs its task, and records the decision in the
// caller's history window.
func (a *Assistant) Answer(ctx context.Context, query string, history *router.History) domain.Answer {
	ctx, span := a.tracer.Start(ctx, "assistant.answer")
	defer span.End()

	d := a.router.Route(ctx, query, history)
	ans := a.Run(ctx, d, history)
	if history != nil {
		history.Add(d)
	}
	span.SetAttributes(attribute.String("task", string(d.Task)))
	return ans
}

// Run executes an already-routed decision.
func (a *Assistant) Run(ctx context.Context, d domain.RouteDecision, history *router.History) domain.Answer {
	ctx, span := a.tracer.Start(ctx, "assistant.run", trace.WithAttributes(
		attribute.String("task", string(d.Task)),
		attribute.Int("entities", len(d.Entities)),
	))
	defer span.End()

	ans := domain.Answer{Task: d.Task, Entities: d.Entities}

	switch d.Task {
	case domain.TaskReport, domain.TaskOverview, domain.TaskCompanyNews, domain.TaskHighlights:
		if len(d.Entities) == 0 {
			ans.Text = msgNoSubject
			return ans
		}
	case domain.TaskFollowup:
		if len(d.Entities) == 0 {
			ans.Text = msgNoFollowup
			return ans
		}
	}

	if text, ok := a.archived(ctx, d); ok {
		ans.Text = text
		return ans
	}

	entities := d.Entities
	if d.Task == domain.TaskGeneralNews {
		entities = []string{topicFromQuery(d.RawQuery)}
	}

	bundle := a.orch.FetchMany(ctx, entities, kindsForTask(d.Task))
	ans.Data = bundle
	ans.Text = a.summarize(ctx, d, bundle, history)
	return ans
}

// kindsForTask maps each task to the data kinds it needs fetched.
func kindsForTask(t domain.Task) []domain.Kind {
	switch t {
	case domain.TaskReport, domain.TaskFollowup:
		return []domain.Kind{domain.KindPriceData, domain.KindNews}
	case domain.TaskOverview:
		return []domain.Kind{domain.KindOverview, domain.KindPriceData, domain.KindNews}
	case domain.TaskHighlights:
		return []domain.Kind{domain.KindHighlight, domain.KindNews}
	}
	return []domain.Kind{domain.KindNews}
}

// archived serves single-entity report and overview tasks from the day's
// pregenerated document when one exists. Archive failures just mean a live
// fetch.
func (a *Assistant) archived(ctx context.Context, d domain.RouteDecision) (string, bool) {
	if a.archive == nil || len(d.Entities) != 1 {
		return "", false
	}
	var kind string
	switch d.Task {
	case domain.TaskReport:
		kind = domain.DocumentReport
	case domain.TaskOverview:
		kind = domain.DocumentOverview
	default:
		return "", false
	}

	doc, err := a.archive.LatestDocument(ctx, d.Entities[0], kind)
	if err != nil {
		log.Printf("Warning: archive lookup for %s/%s failed: %v", d.Entities[0], kind, err)
		return "", false
	}
	if doc == nil || !sameDay(doc.DocDate, time.Now().UTC()) {
		return "", false
	}

	text := doc.Content
	if d.Task == domain.TaskOverview {
		// Overviews age within the day; tack on the live price when we can
		// get one.
		b := a.orch.FetchMany(ctx, d.Entities, []domain.Kind{domain.KindHighlight})
		if q, ok := quoteFrom(b, d.Entities[0]); ok && q.Price > 0 {
			text += fmt.Sprintf("\n\n**Live price:** %.2f (%+.2f%%)", q.Price, q.ChangePct)
		}
	}
	return text, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Compose renders a fresh document for one symbol, bypassing the archive
// lookup. The warmup job uses it to pregenerate the day's report and
// overview documents; an error means the fetch produced nothing worth
// archiving.
func (a *Assistant) Compose(ctx context.Context, symbol, kind string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "assistant.compose", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("kind", kind),
	))
	defer span.End()

	var task domain.Task
	switch kind {
	case domain.DocumentReport:
		task = domain.TaskReport
	case domain.DocumentOverview:
		task = domain.TaskOverview
	default:
		return "", fmt.Errorf("no document form for kind %q", kind)
	}

	d := domain.RouteDecision{Task: task, Entities: []string{symbol}}
	bundle := a.orch.FetchMany(ctx, d.Entities, kindsForTask(task))
	if _, ok := metricsFrom(bundle, symbol); !ok {
		return "", fmt.Errorf("no price data for %s", symbol)
	}
	return a.summarize(ctx, d, bundle, nil), nil
}

// summarize renders the bundle for the task, preferring the LLM and
// falling back to the deterministic renderers on any failure.
func (a *Assistant) summarize(ctx context.Context, d domain.RouteDecision, bundle *domain.Bundle, history *router.History) string {
	ctx, span := a.tracer.Start(ctx, "assistant.summarize", trace.WithAttributes(
		attribute.String("task", string(d.Task)),
		attribute.Bool("llm", a.llm != nil),
	))
	defer span.End()

	fallback := a.render(d, bundle, history)
	if a.llm == nil {
		return fallback
	}

	prompt := a.buildPrompt(d, bundle, history, fallback)
	if prompt == "" {
		return fallback
	}
	text, err := complete(ctx, a.llm, a.model, assistantPersona, prompt)
	if err != nil {
		log.Printf("Warning: summarization failed, returning plain rendering: %v", err)
		span.SetAttributes(attribute.Bool("degraded", true))
		return fallback
	}
	if d.Task == domain.TaskHighlights {
		// Highlights keep the deterministic table; the LLM only adds the
		// news digest underneath.
		return fallback + "\n\n" + text
	}
	return strings.TrimSpace(text)
}

// render produces the deterministic answer text for a task.
func (a *Assistant) render(d domain.RouteDecision, bundle *domain.Bundle, history *router.History) string {
	switch d.Task {
	case domain.TaskReport, domain.TaskFollowup:
		return a.renderReportish(bundle)
	case domain.TaskOverview:
		return a.renderOverview(bundle)
	case domain.TaskHighlights:
		return a.renderHighlights(bundle)
	default:
		return renderNewsDigest(bundle)
	}
}

// buildPrompt picks the task prompt. The deterministic rendering doubles
// as the structured data block inside it.
func (a *Assistant) buildPrompt(d domain.RouteDecision, bundle *domain.Bundle, history *router.History, rendered string) string {
	switch d.Task {
	case domain.TaskReport:
		return buildReportPrompt(strings.Join(bundle.Entities, ", "), rendered)
	case domain.TaskOverview:
		return buildOverviewPrompt(strings.Join(bundle.Entities, ", "), rendered)
	case domain.TaskCompanyNews, domain.TaskGeneralNews:
		if !bundleHasNews(bundle) {
			return ""
		}
		return buildNewsSummaryPrompt(rendered)
	case domain.TaskHighlights:
		news := renderNewsSections(bundle)
		if news == "" {
			return ""
		}
		return buildHighlightsNewsPrompt(news)
	case domain.TaskFollowup:
		var window []domain.RouteDecision
		if history != nil {
			window = history.Items()
		}
		return buildFollowupPrompt(d.RawQuery, window, rendered)
	}
	return ""
}

func complete(ctx context.Context, llm LLMClient, model, system, user string) (string, error) {
	completion, err := llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	return completion.Choices[0].Message.Content, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// LLMClassifier implements the router's classification capability on top
// of the same chat API. Any failure maps to ErrClassificationUnavailable
// so the router can degrade instead of erroring.
type LLMClassifier struct {
	llm    LLMClient
	model  string
	tracer trace.Tracer
}

func NewClassifier(llm LLMClient, model string, tracer trace.Tracer) *LLMClassifier {
	if model == "" {
		model = defaultModel
	}
	return &LLMClassifier{llm: llm, model: model, tracer: tracer}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string, history []domain.RouteDecision) (domain.Task, []string, error) {
	if c.llm == nil {
		return "", nil, domain.ErrClassificationUnavailable
	}
	ctx, span := c.tracer.Start(ctx, "assistant.classify")
	defer span.End()

	out, err := complete(ctx, c.llm, c.model, classifierPersona, buildClassifyPrompt(text, history))
	if err != nil {
		span.SetAttributes(attribute.Bool("degraded", true))
		return "", nil, fmt.Errorf("%w: %v", domain.ErrClassificationUnavailable, err)
	}

	var parsed struct {
		Task     string   `json:"task"`
		Entities []string `json:"entities"`
	}
	if err := json.Unmarshal(extractJSON(out), &parsed); err != nil {
		return "", nil, fmt.Errorf("%w: unparseable classifier output: %v", domain.ErrClassificationUnavailable, err)
	}

	task := taskFromName(parsed.Task)
	span.SetAttributes(attribute.String("task", string(task)))
	return task, parsed.Entities, nil
}

// extractJSON pulls the outermost JSON object out of a model reply that
// may be wrapped in prose or code fences.
func extractJSON(s string) []byte {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}

func taskFromName(name string) domain.Task {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "report":
		return domain.TaskReport
	case "overview":
		return domain.TaskOverview
	case "company_news":
		return domain.TaskCompanyNews
	case "general_news":
		return domain.TaskGeneralNews
	case "highlights":
		return domain.TaskHighlights
	case "followup":
		return domain.TaskFollowup
	}
	return ""
}
