package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ksTest runs the two-sample Kolmogorov-Smirnov test. Inputs need not be
// sorted. Returns the D statistic and its asymptotic two-sided p-value.
func ksTest(ref, cur []float64) (statistic, pValue float64) {
	x := append([]float64(nil), ref...)
	y := append([]float64(nil), cur...)
	sort.Float64s(x)
	sort.Float64s(y)

	d := stat.KolmogorovSmirnov(x, nil, y, nil)
	return d, ksPValue(d, len(x), len(y))
}

// ksPValue approximates the two-sided p-value for a two-sample KS statistic
// using the asymptotic Kolmogorov distribution (Numerical Recipes form).
// gonum provides the statistic but not the significance level, so the series
// is evaluated here.
func ksPValue(d float64, n1, n2 int) float64 {
	if d <= 0 {
		return 1
	}
	en := math.Sqrt(float64(n1) * float64(n2) / float64(n1+n2))
	lambda := (en + 0.12 + 0.11/en) * d

	// Q_KS(lambda) = 2 * sum_{k>=1} (-1)^{k-1} exp(-2 k^2 lambda^2)
	var sum float64
	sign := 1.0
	prev := 0.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k)*float64(k)*lambda*lambda)
		sum += term
		if math.Abs(term) <= 1e-12*math.Abs(sum) || math.Abs(term) <= 1e-3*prev {
			break
		}
		prev = math.Abs(term)
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// chiSquareTest compares category frequencies between the baseline and the
// current window. Categories seen only in the window join the baseline's
// category set with zero reference count; a half-count pseudo-frequency
// keeps the expected value finite while still letting the new category
// dominate the statistic. Returns the chi-squared statistic and p-value.
func chiSquareTest(refCounts, curCounts map[string]int) (statistic, pValue float64) {
	categories := make(map[string]struct{}, len(refCounts)+len(curCounts))
	for c := range refCounts {
		categories[c] = struct{}{}
	}
	for c := range curCounts {
		categories[c] = struct{}{}
	}
	if len(categories) < 2 {
		// Single-category feature is the categorical analogue of a
		// constant column.
		return 0, 1
	}

	var refTotal, curTotal float64
	for _, n := range refCounts {
		refTotal += float64(n)
	}
	for _, n := range curCounts {
		curTotal += float64(n)
	}
	if refTotal == 0 || curTotal == 0 {
		return 0, 1
	}

	var chi2 float64
	for c := range categories {
		refN := float64(refCounts[c])
		if refN == 0 {
			refN = 0.5
		}
		expected := refN / refTotal * curTotal
		observed := float64(curCounts[c])
		diff := observed - expected
		chi2 += diff * diff / expected
	}

	df := float64(len(categories) - 1)
	p := distuv.ChiSquared{K: df}.Survival(chi2)
	return chi2, p
}

// hasVariance reports whether the sample contains at least two distinct
// values. Constant columns are exempt from drift testing.
func hasVariance(sample []float64) bool {
	if len(sample) < 2 {
		return false
	}
	first := sample[0]
	for _, v := range sample[1:] {
		if v != first {
			return true
		}
	}
	return false
}
