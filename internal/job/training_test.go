package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stella/internal/domain"
	"stella/internal/ml/momentum"
)

func TestNewTrainingClampsHour(t *testing.T) {
	if tr := NewTraining(testTracer, &stubHistorian{}, &stubModelSink{}, "", 24); tr.trainHour != 0 {
		t.Fatalf("expected hour 24 clamped to 0, got %d", tr.trainHour)
	}
	if tr := NewTraining(testTracer, &stubHistorian{}, &stubModelSink{}, "", -1); tr.trainHour != 0 {
		t.Fatalf("expected hour -1 clamped to 0, got %d", tr.trainHour)
	}
	if tr := NewTraining(testTracer, &stubHistorian{}, &stubModelSink{}, "", 3); tr.trainHour != 3 {
		t.Fatalf("expected hour 3 kept, got %d", tr.trainHour)
	}
}

func TestNextRunUTC(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	run := nextRunUTC(now, 14)
	if run.Day() != 2 || run.Hour() != 14 {
		t.Fatalf("expected same-day 14:00, got %v", run)
	}

	run = nextRunUTC(now, 4)
	if run.Day() != 3 || run.Hour() != 4 {
		t.Fatalf("expected next-day 04:00, got %v", run)
	}
}

func TestTrainingRunOnceTrainsSwapsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.json")
	hist := &stubHistorian{history: zigzagHistory([]string{"TSLA", "AAPL"}, 34)}
	sink := &stubModelSink{}
	tr := NewTraining(testTracer, hist, sink, path, 0)

	tr.runOnce(context.Background())

	if sink.model == nil {
		t.Fatal("expected a trained model swapped in")
	}
	if hist.since.IsZero() {
		t.Fatal("historian never queried")
	}
	if !hist.cutoff.Equal(hist.since) {
		t.Fatalf("expected prune at the lookback cutoff %v, got %v", hist.since, hist.cutoff)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact not persisted: %v", err)
	}

	// A fresh job restores the artifact on load.
	fresh := &stubModelSink{}
	NewTraining(testTracer, hist, fresh, path, 0).loadArtifact()
	if fresh.model == nil {
		t.Fatal("expected artifact to load into a fresh sink")
	}
	vec := make([]float64, len(momentum.FeatureNames()))
	if p := fresh.model.PredictProb(vec); p < 0 || p > 1 {
		t.Fatalf("restored model predicts outside [0,1]: %v", p)
	}
}

func TestTrainingSkipsThinHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.json")
	hist := &stubHistorian{history: zigzagHistory([]string{"TSLA"}, 10)}
	sink := &stubModelSink{}
	tr := NewTraining(testTracer, hist, sink, path, 0)

	tr.runOnce(context.Background())

	if sink.model != nil {
		t.Fatal("thin history must not produce a model")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no artifact expected, stat err=%v", err)
	}
	if !hist.cutoff.IsZero() {
		t.Fatal("skipped run must not prune history")
	}
}

func TestTrainingHistorianErrorKeepsModel(t *testing.T) {
	hist := &stubHistorian{err: errors.New("pg down")}
	sink := &stubModelSink{}
	tr := NewTraining(testTracer, hist, sink, "", 0)

	tr.runOnce(context.Background())

	if sink.model != nil {
		t.Fatal("no model should appear on historian error")
	}
}

func TestTrainingLoadArtifactMissingFile(t *testing.T) {
	sink := &stubModelSink{}
	tr := NewTraining(testTracer, &stubHistorian{}, sink, filepath.Join(t.TempDir(), "absent.json"), 0)

	tr.loadArtifact()

	if sink.model != nil {
		t.Fatal("missing artifact must not swap a model in")
	}
}

// zigzagHistory builds daily snapshots whose prices alternate up and down,
// so every dataset derived from it carries both label classes.
func zigzagHistory(symbols []string, days int) map[string][]domain.Snapshot {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make(map[string][]domain.Snapshot, len(symbols))
	for si, sym := range symbols {
		snaps := make([]domain.Snapshot, 0, days)
		for i := 0; i < days; i++ {
			price := 100.0 + float64(si)*10
			chg := -1.5
			if i%2 == 0 {
				price += 2
				chg = 1.5
			}
			snaps = append(snaps, domain.Snapshot{
				Symbol:     sym,
				CapturedAt: base.AddDate(0, 0, i),
				Price:      price,
				ChangePct:  chg,
				Volume:     1000 + float64(i),
			})
		}
		out[sym] = snaps
	}
	return out
}

// --- stubs ---

type stubHistorian struct {
	history map[string][]domain.Snapshot
	err     error
	since   time.Time
	cutoff  time.Time
}

func (s *stubHistorian) HistorySince(ctx context.Context, since time.Time) (map[string][]domain.Snapshot, error) {
	s.since = since
	if s.err != nil {
		return nil, s.err
	}
	return s.history, nil
}

func (s *stubHistorian) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 3, nil
}

type stubModelSink struct {
	model *momentum.Model
}

func (s *stubModelSink) Swap(m *momentum.Model) { s.model = m }
func (s *stubModelSink) Loaded() bool           { return s.model != nil }
