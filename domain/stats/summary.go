package stats

import (
	"math"

	"urnlab/domain/experiment"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// StageSummary describes one stage's collected responses against its hidden
// ground truth. It rides along in the JSON export and the admin views; the
// canonical trial data is untouched by it.
type StageSummary struct {
	Trials             int     `json:"trials"`
	BlackCount         int     `json:"black_count"`
	EmpiricalBlackRate float64 `json:"empirical_black_rate"`
	EstimateMean       float64 `json:"estimate_mean"`
	EstimateMedian     float64 `json:"estimate_median"`
	EstimateStdDev     float64 `json:"estimate_std_dev"`
	ConfidenceMean     float64 `json:"confidence_mean"`
	FinalEstimate      float64 `json:"final_estimate"`
	FinalAbsError      float64 `json:"final_abs_error"`
	Calibration        float64 `json:"calibration"`
	BinomialTailP      float64 `json:"binomial_tail_p"`
}

// SummarizeStage computes response statistics for a stage snapshot.
// An empty history yields the zero summary.
func SummarizeStage(snap experiment.StageSnapshot) (StageSummary, error) {
	n := len(snap.Samples)
	if n == 0 {
		return StageSummary{}, nil
	}

	summary := StageSummary{
		Trials:             n,
		BlackCount:         snap.CumulativeBlack,
		EmpiricalBlackRate: float64(snap.CumulativeBlack) / float64(n),
	}

	mean, err := mstats.Mean(snap.Estimates)
	if err != nil {
		return summary, err
	}
	median, err := mstats.Median(snap.Estimates)
	if err != nil {
		return summary, err
	}
	stdDev, err := mstats.StandardDeviation(snap.Estimates)
	if err != nil {
		return summary, err
	}
	confMean, err := mstats.Mean(snap.Confidences)
	if err != nil {
		return summary, err
	}

	summary.EstimateMean = mean
	summary.EstimateMedian = median
	summary.EstimateStdDev = stdDev
	summary.ConfidenceMean = confMean
	summary.FinalEstimate = snap.Estimates[n-1]
	summary.FinalAbsError = math.Abs(snap.Estimates[n-1] - snap.TrueProbability*100)
	summary.Calibration = calibration(snap)
	summary.BinomialTailP = binomialTailP(n, snap.CumulativeBlack, snap.TrueProbability)

	return summary, nil
}

// calibration correlates the participant's estimates with the running
// empirical black fraction they had seen at each trial. Undefined
// correlations (short or constant series) report as zero rather than NaN so
// the summary stays JSON-encodable.
func calibration(snap experiment.StageSnapshot) float64 {
	n := len(snap.Samples)
	if n < 2 {
		return 0
	}
	running := make([]float64, n)
	black := 0
	for i, outcome := range snap.Samples {
		if outcome == experiment.OutcomeBlack {
			black++
		}
		running[i] = float64(black) / float64(i+1)
	}
	r := stat.Correlation(running, snap.Estimates, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// binomialTailP is the probability of drawing at least the observed black
// count from the true source: small values flag an unusually extreme sample.
func binomialTailP(n, black int, p float64) float64 {
	if n == 0 || black == 0 {
		return 1
	}
	dist := distuv.Binomial{N: float64(n), P: p}
	return 1 - dist.CDF(float64(black-1))
}

// TrainingSummary aggregates the forced-choice training results
type TrainingSummary struct {
	Trials   int     `json:"trials"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// SummarizeTraining scores overall training accuracy
func SummarizeTraining(results []experiment.TrainingResult) TrainingSummary {
	summary := TrainingSummary{Trials: len(results)}
	for _, r := range results {
		if r.Result == experiment.ResultCorrect {
			summary.Correct++
		}
	}
	if summary.Trials > 0 {
		summary.Accuracy = float64(summary.Correct) / float64(summary.Trials)
	}
	return summary
}
