package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stella/internal/domain"
	"stella/internal/router"

	"go.opentelemetry.io/otel/trace"
	tele "gopkg.in/telebot.v3"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	StartTelegramBot("", &stubAssistant{}, nil, 0, testTracer)
}

func TestHandleStartSendsWelcome(t *testing.T) {
	b := New(&stubAssistant{}, nil, 0, testTracer)
	c := &stubTeleContext{chatID: 7}

	if err := b.HandleStart(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.sent) != 1 || !strings.Contains(c.sent[0], "report on TSLA") {
		t.Fatalf("unexpected welcome: %v", c.sent)
	}
}

func TestHandleTextAnswersAndPersists(t *testing.T) {
	asst := &stubAssistant{}
	store := &stubHistoryStore{}
	b := New(asst, store, 0, testTracer)
	c := &stubTeleContext{chatID: 7, text: "report on TSLA"}

	if err := b.HandleText(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0] != "answer to report on TSLA" {
		t.Fatalf("unexpected reply: %v", c.sent)
	}
	if len(store.appended) != 1 || store.appended[0].RawQuery != "report on TSLA" {
		t.Fatalf("decision not persisted: %+v", store.appended)
	}
	if store.lastChatID != 7 {
		t.Fatalf("persisted under wrong chat: %d", store.lastChatID)
	}
}

func TestHandleTextLoadsPersistedHistory(t *testing.T) {
	asst := &stubAssistant{}
	store := &stubHistoryStore{recent: []domain.RouteDecision{
		{Task: domain.TaskReport, Entities: []string{"AAPL"}},
		{Task: domain.TaskCompanyNews, Entities: []string{"AAPL"}},
	}}
	b := New(asst, store, 0, testTracer)

	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "tell me more"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(asst.histLens) != 1 || asst.histLens[0] != 2 {
		t.Fatalf("persisted history not loaded: %v", asst.histLens)
	}
}

func TestWindowBoundsHistoryLoad(t *testing.T) {
	store := &stubHistoryStore{}
	b := New(&stubAssistant{}, store, 3, testTracer)
	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "report on TSLA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != 3 {
		t.Fatalf("load limit = %d, want the configured window", store.lastLimit)
	}

	store = &stubHistoryStore{}
	b = New(&stubAssistant{}, store, 0, testTracer)
	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "report on TSLA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != defaultWindow {
		t.Fatalf("load limit = %d, want the default window", store.lastLimit)
	}
}

func TestHandleTextHistoryLoadFailureStartsFresh(t *testing.T) {
	asst := &stubAssistant{}
	store := &stubHistoryStore{loadErr: errors.New("pg down")}
	b := New(asst, store, 0, testTracer)

	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "report on TSLA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(asst.histLens) != 1 || asst.histLens[0] != 0 {
		t.Fatalf("expected empty fallback history, got %v", asst.histLens)
	}
}

func TestHandleTextIgnoresEmptyMessages(t *testing.T) {
	asst := &stubAssistant{}
	b := New(asst, nil, 0, testTracer)
	c := &stubTeleContext{chatID: 7, text: "   "}

	if err := b.HandleText(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.sent) != 0 || len(asst.queries) != 0 {
		t.Fatal("blank message must not reach the assistant")
	}
}

func TestHandleResetClearsHistory(t *testing.T) {
	asst := &stubAssistant{}
	store := &stubHistoryStore{}
	b := New(asst, store, 0, testTracer)

	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "report on TSLA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := &stubTeleContext{chatID: 7}
	if err := b.HandleReset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.deletedChatID != 7 {
		t.Fatalf("store not cleared for chat: %d", store.deletedChatID)
	}
	if len(c.sent) != 1 || c.sent[0] != "History cleared." {
		t.Fatalf("unexpected reply: %v", c.sent)
	}

	if err := b.HandleText(&stubTeleContext{chatID: 7, text: "tell me more"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := asst.histLens[len(asst.histLens)-1]; got != 0 {
		t.Fatalf("history survived reset: %d", got)
	}
}

func TestHandleTextKeepsHistoryAcrossTurns(t *testing.T) {
	asst := &stubAssistant{}
	b := New(asst, nil, 0, testTracer)

	for _, q := range []string{"report on TSLA", "tell me more"} {
		if err := b.HandleText(&stubTeleContext{chatID: 7, text: q}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Second turn sees the first turn's decision.
	if len(asst.histLens) != 2 || asst.histLens[0] != 0 || asst.histLens[1] != 1 {
		t.Fatalf("history not carried across turns: %v", asst.histLens)
	}

	// A different chat starts clean.
	if err := b.HandleText(&stubTeleContext{chatID: 8, text: "report on AAPL"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asst.histLens[2] != 0 {
		t.Fatalf("chats must not share history: %v", asst.histLens)
	}
}

// --- stubs ---

type stubAssistant struct {
	queries  []string
	histLens []int
}

func (s *stubAssistant) Answer(ctx context.Context, query string, history *router.History) domain.Answer {
	s.queries = append(s.queries, query)
	s.histLens = append(s.histLens, history.Len())
	d := domain.RouteDecision{Task: domain.TaskReport, Entities: []string{"TSLA"}, RawQuery: query}
	history.Add(d)
	return domain.Answer{Task: d.Task, Entities: d.Entities, Text: "answer to " + query}
}

type stubHistoryStore struct {
	appended      []domain.RouteDecision
	lastChatID    int64
	lastLimit     int
	deletedChatID int64
	recent        []domain.RouteDecision
	loadErr       error
}

func (s *stubHistoryStore) AppendDecision(ctx context.Context, chatID int64, d domain.RouteDecision) error {
	s.lastChatID = chatID
	s.appended = append(s.appended, d)
	return nil
}

func (s *stubHistoryStore) RecentDecisions(ctx context.Context, chatID int64, limit int) ([]domain.RouteDecision, error) {
	s.lastLimit = limit
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.recent, nil
}

func (s *stubHistoryStore) DeleteChat(ctx context.Context, chatID int64) error {
	s.deletedChatID = chatID
	return nil
}

type stubTeleContext struct {
	tele.Context
	chatID int64
	text   string
	sent   []string
}

func (s *stubTeleContext) Text() string     { return s.text }
func (s *stubTeleContext) Chat() *tele.Chat { return &tele.Chat{ID: s.chatID} }

func (s *stubTeleContext) Send(what interface{}, opts ...interface{}) error {
	if str, ok := what.(string); ok {
		s.sent = append(s.sent, str)
	}
	return nil
}
