package pipeline

import "math"

// EvalMetrics are final de-normalized evaluation figures for one run.
type EvalMetrics struct {
	RMSE float64
	MAE  float64
	MAPE float64 // percent
}

// Evaluate computes RMSE, MAE, and MAPE over de-normalized predictions.
// MAPE skips zero actuals to avoid division by zero.
func Evaluate(actual, predicted []float64) EvalMetrics {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return EvalMetrics{}
	}

	var sumSq, sumAbs, sumPct float64
	pctCount := 0
	for i := 0; i < n; i++ {
		d := predicted[i] - actual[i]
		sumSq += d * d
		sumAbs += math.Abs(d)
		if actual[i] != 0 {
			sumPct += math.Abs(d / actual[i])
			pctCount++
		}
	}

	m := EvalMetrics{
		RMSE: math.Sqrt(sumSq / float64(n)),
		MAE:  sumAbs / float64(n),
	}
	if pctCount > 0 {
		m.MAPE = sumPct / float64(pctCount) * 100
	}
	return m
}
