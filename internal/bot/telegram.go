package bot

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"stella/internal/domain"
	"stella/internal/router"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tele "gopkg.in/telebot.v3"
)

const welcomeText = `Hi, I'm Stella. Ask me about stocks in plain English:

- report on TSLA
- give me an overview of Microsoft
- latest news on NVDA
- highlights for AAPL, MSFT, GOOG
- what's the latest news on interest rates?

Follow-up questions work too ("tell me more"). /reset clears our
conversation.`

// Assistant answers one query against a conversation history window.
type Assistant interface {
	Answer(ctx context.Context, query string, history *router.History) domain.Answer
}

// HistoryStore persists per-chat route decisions so follow-ups survive
// restarts. Optional; a nil store keeps history in memory only.
type HistoryStore interface {
	AppendDecision(ctx context.Context, chatID int64, d domain.RouteDecision) error
	RecentDecisions(ctx context.Context, chatID int64, limit int) ([]domain.RouteDecision, error)
	DeleteChat(ctx context.Context, chatID int64) error
}

const defaultWindow = 10

// Bot routes plain Telegram messages through the assistant, one history
// window per chat.
type Bot struct {
	tracer    trace.Tracer
	assistant Assistant
	store     HistoryStore
	window    int

	mu       sync.Mutex
	sessions map[int64]*chatSession
}

// chatSession serializes one chat's turns; History is not safe for
// concurrent use.
type chatSession struct {
	mu      sync.Mutex
	history *router.History
}

func New(asst Assistant, store HistoryStore, window int, tracer trace.Tracer) *Bot {
	if window <= 0 {
		window = defaultWindow
	}
	return &Bot{
		tracer:    tracer,
		assistant: asst,
		store:     store,
		window:    window,
		sessions:  make(map[int64]*chatSession),
	}
}

// StartTelegramBot connects the long poller and starts serving in a
// goroutine. An empty token skips startup; a connect failure is logged and
// the rest of the service carries on without the bot.
func StartTelegramBot(token string, asst Assistant, store HistoryStore, window int, tracer trace.Tracer) {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Printf("Warning: failed to create Telegram bot, continuing without it: %v", err)
		return
	}

	bot := New(asst, store, window, tracer)
	b.Handle("/start", bot.HandleStart)
	b.Handle("/help", bot.HandleStart)
	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/reset", bot.HandleReset)
	b.Handle(tele.OnText, bot.HandleText)

	log.Println("Telegram bot started")
	go b.Start()
}

func (b *Bot) HandleStart(c tele.Context) error {
	return c.Send(welcomeText)
}

// HandleReset clears the chat's conversation window, in memory and in the
// store.
func (b *Bot) HandleReset(c tele.Context) error {
	chatID := c.Chat().ID
	ctx, span := b.tracer.Start(context.Background(), "bot.reset", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	s := b.session(chatID)
	s.mu.Lock()
	s.history = router.NewHistory(b.window)
	s.mu.Unlock()

	if b.store != nil {
		if err := b.store.DeleteChat(ctx, chatID); err != nil {
			log.Printf("Warning: could not clear chat history for %d: %v", chatID, err)
		}
	}
	return c.Send("History cleared.")
}

// HandleText answers a plain message. The assistant never errors; whatever
// text it produced is what the chat gets.
func (b *Bot) HandleText(c tele.Context) error {
	query := strings.TrimSpace(c.Text())
	if query == "" {
		return nil
	}
	chatID := c.Chat().ID

	ctx, span := b.tracer.Start(context.Background(), "bot.handle-text", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	s := b.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history == nil {
		s.history = b.loadHistory(ctx, chatID)
	}
	ans := b.assistant.Answer(ctx, query, s.history)
	b.persistLast(ctx, chatID, s.history)
	span.SetAttributes(attribute.String("task", string(ans.Task)))
	return c.Send(ans.Text)
}

func (b *Bot) session(chatID int64) *chatSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[chatID]
	if !ok {
		s = &chatSession{}
		b.sessions[chatID] = s
	}
	return s
}

func (b *Bot) loadHistory(ctx context.Context, chatID int64) *router.History {
	if b.store == nil {
		return router.NewHistory(b.window)
	}
	decisions, err := b.store.RecentDecisions(ctx, chatID, b.window)
	if err != nil {
		log.Printf("Warning: could not load chat history for %d: %v", chatID, err)
		return router.NewHistory(b.window)
	}
	return router.NewHistoryFrom(b.window, decisions)
}

// persistLast stores the decision Answer just appended to the window.
func (b *Bot) persistLast(ctx context.Context, chatID int64, h *router.History) {
	if b.store == nil || h.Len() == 0 {
		return
	}
	items := h.Items()
	if err := b.store.AppendDecision(ctx, chatID, items[len(items)-1]); err != nil {
		log.Printf("Warning: could not persist chat history for %d: %v", chatID, err)
	}
}
