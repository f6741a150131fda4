package rank

import "math"

// CalculateIDF computes Inverse Document Frequency
// Formula: ln(1 + (N - df + 0.5) / (df + 0.5))
func CalculateIDF(totalDocs float64, docFreq int) float64 {
	if docFreq == 0 {
		return 0.0
	}
	df := float64(docFreq)
	ratio := (totalDocs - df + 0.5) / (df + 0.5)
	if ratio < 0 {
		ratio = 0
	}
	return math.Log(1.0 + ratio)
}

// NormalizedTermFrequency computes TF with standard BM25 length normalization
func NormalizedTermFrequency(tf int, fieldLen int, avgFieldLen float64, b float64) float64 {
	if avgFieldLen <= 0 || tf == 0 {
		return 0.0
	}
	denom := 1.0 - b + b*(float64(fieldLen)/avgFieldLen)
	if denom <= 0 {
		return 0
	}
	return float64(tf) / denom
}

// Saturate applies BM25 saturation
// Formula: ((k1 + 1) * score) / (k1 + score)
func Saturate(score float64, k1 float64) float64 {
	if score <= 0 {
		return 0.0
	}
	if k1 <= 0 {
		return score
	}
	return ((k1 + 1.0) * score) / (k1 + score)
}
