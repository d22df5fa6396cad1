package momentum

import (
	"math"
	"sync"

	"stella/internal/domain"
)

const (
	bullishThreshold = 0.60
	bearishThreshold = 0.40
)

// Service serves the live momentum signal for highlights. The model and
// per-symbol feature vectors are replaced wholesale by the jobs that
// maintain them; Signal itself never touches IO, so it can sit on a
// rendering path.
type Service struct {
	mu      sync.RWMutex
	model   *Model
	vectors map[string][]float64
}

func NewService() *Service {
	return &Service{vectors: make(map[string][]float64)}
}

// Swap replaces the live model atomically.
func (s *Service) Swap(m *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// UpdateFeatures recomputes the cached feature vector for a symbol from
// its snapshot history. Histories too short to featurize leave the
// previous vector in place.
func (s *Service) UpdateFeatures(symbol string, history []domain.Snapshot) {
	vec, ok := BuildVector(SortSnapshots(history))
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[symbol] = vec
}

// Signal labels a symbol bullish, bearish, or neutral with a confidence.
// With a trained model and a cached vector it predicts next-session
// direction; otherwise it falls back to a heuristic over the day's change.
func (s *Service) Signal(symbol string, changePct float64) (string, float64) {
	s.mu.RLock()
	model := s.model
	vec := s.vectors[symbol]
	s.mu.RUnlock()

	if model != nil && vec != nil {
		p := model.PredictProb(vec)
		return labelFor(p), confidence(p)
	}
	return heuristic(changePct)
}

func labelFor(pUp float64) string {
	switch {
	case pUp >= bullishThreshold:
		return "bullish"
	case pUp <= bearishThreshold:
		return "bearish"
	}
	return "neutral"
}

func confidence(pUp float64) float64 {
	if pUp >= 0.5 {
		return pUp
	}
	return 1 - pUp
}

func heuristic(changePct float64) (string, float64) {
	conf := 0.5 + math.Abs(changePct)/20
	if conf > 0.9 {
		conf = 0.9
	}
	switch {
	case changePct >= 1:
		return "bullish", conf
	case changePct <= -1:
		return "bearish", conf
	}
	return "neutral", 0.5
}
