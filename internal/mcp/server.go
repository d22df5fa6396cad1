// Package mcp exposes the assistant's research operations as Model Context
// Protocol tools so LLM agents can call them directly.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"stella/internal/domain"
	"stella/internal/router"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxToolSymbols = 20

// Assistant is the slice of the assistant the tools call: free-form routing
// via Answer, and Run for tools that already know their task.
type Assistant interface {
	Answer(ctx context.Context, query string, history *router.History) domain.Answer
	Run(ctx context.Context, d domain.RouteDecision, history *router.History) domain.Answer
}

type Server struct {
	tracer    trace.Tracer
	assistant Assistant
	impl      *sdk.Server
}

func New(assistant Assistant, tracer trace.Tracer) *Server {
	s := &Server{tracer: tracer, assistant: assistant}
	s.impl = sdk.NewServer(&sdk.Implementation{Name: "stella", Version: "1.0.0"}, nil)
	sdk.AddTool(s.impl, &sdk.Tool{
		Name:        "analyze",
		Description: "Answer a free-form market research question (reports, overviews, news, highlights). Routes the query exactly like the chat interface.",
	}, s.analyze)
	sdk.AddTool(s.impl, &sdk.Tool{
		Name:        "highlights",
		Description: "Snapshot current price, daily change, volume, and momentum signal for a list of ticker symbols.",
	}, s.highlights)
	sdk.AddTool(s.impl, &sdk.Tool{
		Name:        "company_news",
		Description: "Recent headlines for one ticker symbol.",
	}, s.companyNews)
	return s
}

// Handler serves the tools over the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server { return s.impl }, nil)
}

type analyzeArgs struct {
	Query string `json:"query" jsonschema:"natural-language market question, e.g. report on TSLA"`
}

type highlightsArgs struct {
	Symbols []string `json:"symbols" jsonschema:"ticker symbols to snapshot"`
}

type newsArgs struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol to fetch headlines for"`
}

func (s *Server) analyze(ctx context.Context, req *sdk.CallToolRequest, args analyzeArgs) (*sdk.CallToolResult, any, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	ctx, span := s.tracer.Start(ctx, "mcp.analyze", trace.WithAttributes(
		attribute.String("query", query)))
	defer span.End()

	// Tool calls are stateless; every call starts a fresh conversation.
	ans := s.assistant.Answer(ctx, query, router.NewHistory(0))
	span.SetAttributes(attribute.String("task", string(ans.Task)))
	return textResult(ans.Text), nil, nil
}

func (s *Server) highlights(ctx context.Context, req *sdk.CallToolRequest, args highlightsArgs) (*sdk.CallToolResult, any, error) {
	symbols := normalizeSymbols(args.Symbols)
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("at least one symbol is required")
	}
	if len(symbols) > maxToolSymbols {
		return nil, nil, fmt.Errorf("too many symbols: %d, max %d", len(symbols), maxToolSymbols)
	}
	ctx, span := s.tracer.Start(ctx, "mcp.highlights", trace.WithAttributes(
		attribute.Int("symbols", len(symbols))))
	defer span.End()

	d := domain.RouteDecision{
		Task:     domain.TaskHighlights,
		Entities: symbols,
		RawQuery: "highlights for " + strings.Join(symbols, ", "),
	}
	ans := s.assistant.Run(ctx, d, router.NewHistory(0))
	return textResult(ans.Text), nil, nil
}

func (s *Server) companyNews(ctx context.Context, req *sdk.CallToolRequest, args newsArgs) (*sdk.CallToolResult, any, error) {
	symbol := strings.ToUpper(strings.TrimSpace(args.Symbol))
	if symbol == "" {
		return nil, nil, fmt.Errorf("symbol is required")
	}
	ctx, span := s.tracer.Start(ctx, "mcp.company-news", trace.WithAttributes(
		attribute.String("symbol", symbol)))
	defer span.End()

	d := domain.RouteDecision{
		Task:     domain.TaskCompanyNews,
		Entities: []string{symbol},
		RawQuery: "news about " + symbol,
	}
	ans := s.assistant.Run(ctx, d, router.NewHistory(0))
	return textResult(ans.Text), nil, nil
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
