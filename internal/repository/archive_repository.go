package repository

import (
	"context"
	"errors"
	"time"

	"stella/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// ArchiveRepository stores pregenerated documents, one per symbol, day,
// and kind. Regenerating the same day's document overwrites it.
type ArchiveRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewArchiveRepository(pool PgxPool, tracer trace.Tracer) *ArchiveRepository {
	return &ArchiveRepository{pool: pool, tracer: tracer}
}

func (r *ArchiveRepository) UpsertDocument(ctx context.Context, doc domain.Document) error {
	_, span := r.tracer.Start(ctx, "archive-repo.upsert-document")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO documents (symbol, doc_date, kind, content, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (symbol, doc_date, kind) DO UPDATE SET
		     content = EXCLUDED.content,
		     updated_at = NOW()`,
		normalizeSymbol(doc.Symbol), doc.DocDate.UTC(), doc.Kind, doc.Content,
	)
	return err
}

// LatestDocument returns the newest document for a symbol and kind, or
// (nil, nil) when none exists.
func (r *ArchiveRepository) LatestDocument(ctx context.Context, symbol, kind string) (*domain.Document, error) {
	_, span := r.tracer.Start(ctx, "archive-repo.latest-document")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT symbol, doc_date, kind, content, updated_at
		 FROM documents
		 WHERE symbol = $1 AND kind = $2
		 ORDER BY doc_date DESC
		 LIMIT 1`,
		normalizeSymbol(symbol), kind,
	)
	return scanDocument(row)
}

// DocumentByDate returns the document for one calendar day, or (nil, nil).
func (r *ArchiveRepository) DocumentByDate(ctx context.Context, symbol, kind string, date time.Time) (*domain.Document, error) {
	_, span := r.tracer.Start(ctx, "archive-repo.document-by-date")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT symbol, doc_date, kind, content, updated_at
		 FROM documents
		 WHERE symbol = $1 AND kind = $2 AND doc_date = $3
		 LIMIT 1`,
		normalizeSymbol(symbol), kind, date.UTC(),
	)
	return scanDocument(row)
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.Symbol, &d.DocDate, &d.Kind, &d.Content, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.DocDate = d.DocDate.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
