package job

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"stella/internal/domain"
	"stella/internal/ml/momentum"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// trainingLookback bounds how far back the daily retrain reads
	// snapshots.
	trainingLookback = 180 * 24 * time.Hour
	// minTrainingRows is the smallest dataset worth fitting a model on;
	// below it the heuristic signal stays in charge.
	minTrainingRows = 50
)

// SnapshotHistorian serves per-symbol snapshot history for training and
// prunes rows the lookback can no longer reach.
type SnapshotHistorian interface {
	HistorySince(ctx context.Context, since time.Time) (map[string][]domain.Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ModelSink receives freshly trained models; *momentum.Service satisfies it.
type ModelSink interface {
	Swap(m *momentum.Model)
	Loaded() bool
}

// Training retrains the momentum signal once a day from archived snapshots
// and swaps the result into the live service. The fitted model is persisted
// as a file artifact so restarts pick up where the last train left off.
type Training struct {
	tracer    trace.Tracer
	snapshots SnapshotHistorian
	sink      ModelSink
	modelPath string
	trainHour int
}

func NewTraining(
	tracer trace.Tracer,
	snapshots SnapshotHistorian,
	sink ModelSink,
	modelPath string,
	trainHourUTC int,
) *Training {
	if trainHourUTC < 0 || trainHourUTC > 23 {
		trainHourUTC = 0
	}
	return &Training{
		tracer:    tracer,
		snapshots: snapshots,
		sink:      sink,
		modelPath: modelPath,
		trainHour: trainHourUTC,
	}
}

// Start loads any persisted artifact, trains immediately when nothing is
// loaded, then retrains daily at the configured UTC hour until ctx is
// cancelled.
func (t *Training) Start(ctx context.Context) {
	if t.snapshots == nil || t.sink == nil {
		log.Println("Signal training job disabled: no snapshot store")
		<-ctx.Done()
		return
	}

	t.loadArtifact()
	if !t.sink.Loaded() {
		t.runOnce(ctx)
	}

	for {
		next := nextRunUTC(time.Now().UTC(), t.trainHour)
		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.runOnce(ctx)
		}
	}
}

func (t *Training) runOnce(ctx context.Context) {
	ctx, span := t.tracer.Start(ctx, "training-job.run-once")
	defer span.End()

	since := time.Now().UTC().Add(-trainingLookback)
	history, err := t.snapshots.HistorySince(ctx, since)
	if err != nil {
		log.Printf("Signal training error: %v", err)
		return
	}

	samples, labels := momentum.BuildDataset(history)
	if len(samples) < minTrainingRows {
		log.Printf("Signal training skipped: %d rows, need %d", len(samples), minTrainingRows)
		return
	}

	model, err := momentum.Train(samples, labels, momentum.TrainOptions{})
	if err != nil {
		log.Printf("Signal training error: %v", err)
		return
	}
	t.sink.Swap(model)
	span.SetAttributes(attribute.Int("rows", len(samples)))
	log.Printf("Signal model retrained on %d rows across %d symbols", len(samples), len(history))

	t.saveArtifact(model)
	t.prune(ctx, since)
}

// prune drops snapshots that have aged out of the training lookback. Only
// runs after a successful retrain; a skipped or failed run keeps its history.
func (t *Training) prune(ctx context.Context, cutoff time.Time) {
	n, err := t.snapshots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Warning: snapshot prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d snapshots older than %s", n, cutoff.Format(time.DateOnly))
	}
}

func (t *Training) loadArtifact() {
	if t.modelPath == "" {
		return
	}
	blob, err := os.ReadFile(t.modelPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: could not read model artifact %s: %v", t.modelPath, err)
		}
		return
	}
	model, err := momentum.UnmarshalBinary(blob)
	if err != nil {
		log.Printf("Warning: invalid model artifact %s: %v", t.modelPath, err)
		return
	}
	t.sink.Swap(model)
	log.Printf("Loaded signal model from %s", t.modelPath)
}

// saveArtifact writes through a temp file and renames, so a crash mid-write
// never leaves a truncated artifact behind.
func (t *Training) saveArtifact(model *momentum.Model) {
	if t.modelPath == "" {
		return
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		log.Printf("Warning: could not serialize signal model: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.modelPath), 0o755); err != nil {
		log.Printf("Warning: could not create model artifact dir: %v", err)
		return
	}
	tmp := t.modelPath + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		log.Printf("Warning: could not write model artifact: %v", err)
		return
	}
	if err := os.Rename(tmp, t.modelPath); err != nil {
		log.Printf("Warning: could not replace model artifact: %v", err)
	}
}

func nextRunUTC(now time.Time, hour int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
