package repository

import (
	"context"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// HistoryRepository persists per-chat route decisions so conversational
// front-ends can rebuild their follow-up window after a restart.
type HistoryRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewHistoryRepository(pool PgxPool, tracer trace.Tracer) *HistoryRepository {
	return &HistoryRepository{pool: pool, tracer: tracer}
}

func (r *HistoryRepository) AppendDecision(ctx context.Context, chatID int64, d domain.RouteDecision) error {
	_, span := r.tracer.Start(ctx, "history-repo.append-decision")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO history_entries (chat_id, task, entities, raw_query) VALUES ($1, $2, $3, $4)`,
		chatID, string(d.Task), d.Entities, d.RawQuery,
	)
	return err
}

func (r *HistoryRepository) RecentDecisions(ctx context.Context, chatID int64, limit int) ([]domain.RouteDecision, error) {
	_, span := r.tracer.Start(ctx, "history-repo.recent-decisions")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT task, entities, raw_query
		 FROM history_entries
		 WHERE chat_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.RouteDecision
	for rows.Next() {
		var d domain.RouteDecision
		var task string
		if err := rows.Scan(&task, &d.Entities, &d.RawQuery); err != nil {
			return nil, err
		}
		d.Task = domain.Task(task)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse: DB returns newest-first, the history window wants oldest-first
	for i, j := 0, len(decisions)-1; i < j; i, j = i+1, j-1 {
		decisions[i], decisions[j] = decisions[j], decisions[i]
	}

	return decisions, nil
}

// DeleteChat clears one chat's stored history.
func (r *HistoryRepository) DeleteChat(ctx context.Context, chatID int64) error {
	_, span := r.tracer.Start(ctx, "history-repo.delete-chat")
	defer span.End()

	_, err := r.pool.Exec(ctx, `DELETE FROM history_entries WHERE chat_id = $1`, chatID)
	return err
}
