package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

// stubPool fakes only QueryRow; the embedded interface panics if a test
// wanders onto an unexpected method.
type stubPool struct {
	PgxPool
	row pgx.Row
}

func (p *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.row
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error { return r.err }

type valueRow struct {
	vals []any
}

func (r valueRow) Scan(dest ...any) error {
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *time.Time:
			*d = r.vals[i].(time.Time)
		}
	}
	return nil
}

func TestLatestDocumentNoRows(t *testing.T) {
	repo := NewArchiveRepository(&stubPool{row: errRow{pgx.ErrNoRows}}, testTracer)

	doc, err := repo.LatestDocument(context.Background(), "TSLA", "report")
	if err != nil {
		t.Fatalf("no rows should not be an error, got %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
}

func TestLatestDocumentQueryError(t *testing.T) {
	repo := NewArchiveRepository(&stubPool{row: errRow{errors.New("connection reset")}}, testTracer)

	if _, err := repo.LatestDocument(context.Background(), "TSLA", "report"); err == nil {
		t.Fatal("expected query error to propagate")
	}
}

func TestLatestDocumentScansUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	docDate := time.Date(2025, 6, 2, 0, 0, 0, 0, est)
	updated := time.Date(2025, 6, 2, 9, 30, 0, 0, est)
	repo := NewArchiveRepository(&stubPool{row: valueRow{vals: []any{
		"TSLA", docDate, "report", "# body", updated,
	}}}, testTracer)

	doc, err := repo.LatestDocument(context.Background(), "tsla", "report")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Symbol != "TSLA" || doc.Content != "# body" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.DocDate.Location() != time.UTC || doc.UpdatedAt.Location() != time.UTC {
		t.Fatal("timestamps should be normalized to UTC")
	}
}

func TestAppendSnapshotsEmptyIsNoop(t *testing.T) {
	// Pool methods all panic; an empty append must not touch the pool.
	repo := NewSnapshotRepository(&stubPool{}, testTracer)
	if err := repo.AppendSnapshots(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		" tsla ":    "TSLA",
		"AAPL":      "AAPL",
		"005930.ks": "005930.KS",
		"":          "",
	}
	for in, want := range cases {
		if got := normalizeSymbol(in); got != want {
			t.Errorf("normalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
