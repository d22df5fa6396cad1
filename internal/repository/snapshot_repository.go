package repository

import (
	"context"
	"time"

	"stella/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// SnapshotRepository is the append-only quote history behind the momentum
// signal.
type SnapshotRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSnapshotRepository(pool PgxPool, tracer trace.Tracer) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, tracer: tracer}
}

func (r *SnapshotRepository) AppendSnapshots(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "snapshot-repo.append-snapshots")
	defer span.End()

	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(
			`INSERT INTO snapshots (symbol, captured_at, price, change_pct, volume)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (symbol, captured_at) DO NOTHING`,
			normalizeSymbol(s.Symbol), s.CapturedAt.UTC(), s.Price, s.ChangePct, s.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentSnapshots returns up to limit observations for one symbol, oldest
// first.
func (r *SnapshotRepository) RecentSnapshots(ctx context.Context, symbol string, limit int) ([]domain.Snapshot, error) {
	_, span := r.tracer.Start(ctx, "snapshot-repo.recent-snapshots")
	defer span.End()

	if limit <= 0 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, captured_at, price, change_pct, volume
		 FROM snapshots
		 WHERE symbol = $1
		 ORDER BY captured_at DESC
		 LIMIT $2`,
		normalizeSymbol(symbol), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	// DB returns newest-first; feature building wants oldest-first.
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// HistorySince returns every observation after the cutoff grouped by
// symbol, each series oldest first. This feeds training.
func (r *SnapshotRepository) HistorySince(ctx context.Context, since time.Time) (map[string][]domain.Snapshot, error) {
	_, span := r.tracer.Start(ctx, "snapshot-repo.history-since")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, captured_at, price, change_pct, volume
		 FROM snapshots
		 WHERE captured_at >= $1
		 ORDER BY symbol, captured_at ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Snapshot)
	for _, s := range snaps {
		out[s.Symbol] = append(out[s.Symbol], s)
	}
	return out, nil
}

func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "snapshot-repo.delete-older-than")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM snapshots WHERE captured_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSnapshots(rows pgx.Rows) ([]domain.Snapshot, error) {
	var snaps []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(&s.Symbol, &s.CapturedAt, &s.Price, &s.ChangePct, &s.Volume); err != nil {
			return nil, err
		}
		s.CapturedAt = s.CapturedAt.UTC()
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
