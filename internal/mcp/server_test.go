package mcp

import (
	"context"
	"testing"

	"stella/internal/domain"
	"stella/internal/router"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestToolsRegistered(t *testing.T) {
	cs := startSession(t, New(&stubAssistant{}, testTracer))

	res, err := cs.ListTools(context.Background(), &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"analyze", "highlights", "company_news"} {
		if !names[want] {
			t.Fatalf("tool %s not registered, got %v", want, names)
		}
	}
}

func TestAnalyzeTool(t *testing.T) {
	asst := &stubAssistant{}
	cs := startSession(t, New(asst, testTracer))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "analyze",
		Arguments: map[string]any{"query": "report on TSLA"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, res))
	}
	if got := textOf(t, res); got != "answer to report on TSLA" {
		t.Fatalf("unexpected answer: %q", got)
	}
	if len(asst.queries) != 1 || asst.queries[0] != "report on TSLA" {
		t.Fatalf("assistant saw queries %v", asst.queries)
	}
}

func TestAnalyzeToolRequiresQuery(t *testing.T) {
	cs := startSession(t, New(&stubAssistant{}, testTracer))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "analyze",
		Arguments: map[string]any{"query": "   "},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("blank query should be a tool error")
	}
}

func TestHighlightsToolNormalizesSymbols(t *testing.T) {
	asst := &stubAssistant{}
	cs := startSession(t, New(asst, testTracer))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "highlights",
		Arguments: map[string]any{"symbols": []string{" tsla", "AAPL", "tsla", ""}},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, res))
	}
	if len(asst.decisions) != 1 {
		t.Fatalf("expected one routed decision, got %d", len(asst.decisions))
	}
	d := asst.decisions[0]
	if d.Task != domain.TaskHighlights {
		t.Fatalf("unexpected task %s", d.Task)
	}
	if len(d.Entities) != 2 || d.Entities[0] != "TSLA" || d.Entities[1] != "AAPL" {
		t.Fatalf("unexpected entities %v", d.Entities)
	}
}

func TestCompanyNewsTool(t *testing.T) {
	asst := &stubAssistant{}
	cs := startSession(t, New(asst, testTracer))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "company_news",
		Arguments: map[string]any{"symbol": "nvda"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, res))
	}
	d := asst.decisions[0]
	if d.Task != domain.TaskCompanyNews || len(d.Entities) != 1 || d.Entities[0] != "NVDA" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestHighlightsToolRejectsEmptyList(t *testing.T) {
	cs := startSession(t, New(&stubAssistant{}, testTracer))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "highlights",
		Arguments: map[string]any{"symbols": []string{"  ", ""}},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("empty symbol list should be a tool error")
	}
}

func startSession(t *testing.T, s *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := sdk.NewInMemoryTransports()
	ss, err := s.impl.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Wait() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func textOf(t *testing.T, res *sdk.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

// --- stubs ---

type stubAssistant struct {
	queries   []string
	decisions []domain.RouteDecision
}

func (s *stubAssistant) Answer(ctx context.Context, query string, history *router.History) domain.Answer {
	s.queries = append(s.queries, query)
	return domain.Answer{Task: domain.TaskReport, Entities: []string{"TSLA"}, Text: "answer to " + query}
}

func (s *stubAssistant) Run(ctx context.Context, d domain.RouteDecision, history *router.History) domain.Answer {
	s.decisions = append(s.decisions, d)
	return domain.Answer{Task: d.Task, Entities: d.Entities, Text: "ran " + string(d.Task)}
}
