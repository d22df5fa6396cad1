package momentum

import (
	"math"
	"sort"

	"stella/internal/domain"
	"stella/internal/ta"
)

const (
	// minSnapshots is the shortest history that yields a feature vector:
	// six prices give the 5-session return and volatility window.
	minSnapshots = 6
	smaWindow    = 10
	emaWindow    = 10
	rsiWindow    = 14
)

var featureNames = []string{
	"ret_1",
	"ret_5",
	"vol_5",
	"volume_ratio",
	"sma_gap",
	"ema_gap",
	"rsi",
	"chg_today",
}

func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// BuildVector derives the feature vector for one symbol from its snapshot
// history, oldest first. Returns false when the history is too short or
// contains unusable prices.
func BuildVector(snaps []domain.Snapshot) ([]float64, bool) {
	n := len(snaps)
	if n < minSnapshots {
		return nil, false
	}

	prices := make([]float64, n)
	volumes := make([]float64, n)
	for i, s := range snaps {
		if s.Price <= 0 {
			return nil, false
		}
		prices[i] = s.Price
		volumes[i] = s.Volume
	}

	ret1 := prices[n-1]/prices[n-2] - 1
	ret5 := prices[n-1]/prices[n-6] - 1

	rets := make([]float64, 0, 5)
	for i := n - 5; i < n; i++ {
		rets = append(rets, prices[i]/prices[i-1]-1)
	}
	_, vol5 := ta.MeanStd(rets)

	smaGap := 0.0
	if sma := ta.SMA(prices, smaWindow); sma > 0 {
		smaGap = prices[n-1]/sma - 1
	}
	volumeRatio := 1.0
	if sma := ta.SMA(volumes, smaWindow); sma > 0 {
		volumeRatio = volumes[n-1] / sma
	}

	emaGap := 0.0
	if ema := ta.EMASeries(prices, emaWindow); len(ema) > 0 {
		if last := ema[len(ema)-1]; last > 0 {
			emaGap = prices[n-1]/last - 1
		}
	}

	// RSI needs rsiWindow+1 prices; a neutral 50 stands in while the
	// snapshot history is still filling.
	rsi := 50.0
	if series := ta.RSISeries(prices, rsiWindow); len(series) > 0 {
		if last := series[len(series)-1]; !math.IsNaN(last) {
			rsi = last
		}
	}

	vec := []float64{ret1, ret5, vol5, volumeRatio, smaGap, emaGap, rsi / 100, snaps[n-1].ChangePct / 100}
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return vec, true
}

// BuildDataset turns per-symbol snapshot history into labeled training
// rows. Each row's label is whether the following snapshot closed higher.
func BuildDataset(history map[string][]domain.Snapshot) ([][]float64, []float64) {
	symbols := make([]string, 0, len(history))
	for s := range history {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var samples [][]float64
	var labels []float64
	for _, sym := range symbols {
		snaps := SortSnapshots(history[sym])
		for i := minSnapshots; i < len(snaps); i++ {
			vec, ok := BuildVector(snaps[:i])
			if !ok {
				continue
			}
			label := 0.0
			if snaps[i].Price > snaps[i-1].Price {
				label = 1.0
			}
			samples = append(samples, vec)
			labels = append(labels, label)
		}
	}
	return samples, labels
}

// SortSnapshots returns a copy ordered oldest first.
func SortSnapshots(in []domain.Snapshot) []domain.Snapshot {
	out := append([]domain.Snapshot(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out
}
