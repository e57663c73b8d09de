package reasoning

import "math"

// Entropy returns the Shannon entropy (base 2) of a discrete probability
// distribution. Probabilities that are zero or negative are skipped.
func Entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p <= 0 {
			continue
		}
		h -= p * math.Log2(p)
	}
	return h
}

// MutualInformation computes I(X;Y) from a joint distribution given as a
// row-major jointProbs[x][y] matrix, deriving the marginals internally.
func MutualInformation(jointProbs [][]float64) float64 {
	if len(jointProbs) == 0 {
		return 0
	}
	nx := len(jointProbs)
	ny := len(jointProbs[0])

	marginalX := make([]float64, nx)
	marginalY := make([]float64, ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			marginalX[i] += jointProbs[i][j]
			marginalY[j] += jointProbs[i][j]
		}
	}

	var mi float64
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			pxy := jointProbs[i][j]
			if pxy <= 0 || marginalX[i] <= 0 || marginalY[j] <= 0 {
				continue
			}
			mi += pxy * math.Log2(pxy/(marginalX[i]*marginalY[j]))
		}
	}
	return mi
}

// normalCDF approximates the standard normal CDF via the Abramowitz-Stegun
// erf identity Phi(x) = (1 + erf(x/sqrt2)) / 2, using the stdlib's erf
// rather than hand-rolling the polynomial approximation: math.Erf already
// implements the same asymptotic series to full float64 precision.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// TTestResult is the outcome of a two-sample t-test.
type TTestResult struct {
	TStatistic float64
	DegreesOfFreedom float64
	PValue     float64
}

// WelchTTest runs Welch's two-sample t-test (unequal variances), returning
// a two-tailed p-value approximated via the normal CDF — adequate for the
// pipeline's evidence-strength comparisons, which operate on the same
// moderate-to-large sample sizes the Evidence stage already works with.
func WelchTTest(mean1, var1 float64, n1 int, mean2, var2 float64, n2 int) TTestResult {
	se := math.Sqrt(var1/float64(n1) + var2/float64(n2))
	if se == 0 {
		return TTestResult{}
	}
	t := (mean1 - mean2) / se

	num := math.Pow(var1/float64(n1)+var2/float64(n2), 2)
	den := math.Pow(var1/float64(n1), 2)/float64(n1-1) + math.Pow(var2/float64(n2), 2)/float64(n2-1)
	df := num / den

	p := 2 * (1 - normalCDF(math.Abs(t)))
	return TTestResult{TStatistic: t, DegreesOfFreedom: df, PValue: p}
}

// ChiSquareTest computes Pearson's chi-square statistic over observed vs
// expected frequency tables of equal shape.
func ChiSquareTest(observed, expected []float64) (statistic float64, degreesOfFreedom int) {
	for i := range observed {
		if expected[i] == 0 {
			continue
		}
		diff := observed[i] - expected[i]
		statistic += diff * diff / expected[i]
	}
	degreesOfFreedom = len(observed) - 1
	if degreesOfFreedom < 1 {
		degreesOfFreedom = 1
	}
	return statistic, degreesOfFreedom
}

// WilsonHilfertyChiSquareCDF approximates the chi-square CDF using the
// Wilson-Hilferty cube-root normal transform, avoiding a dependency on an
// incomplete-gamma implementation for the pipeline's audit checks.
func WilsonHilfertyChiSquareCDF(x float64, df int) float64 {
	if df <= 0 || x < 0 {
		return 0
	}
	k := float64(df)
	h := 1 - 2/(9*k)
	z := (math.Pow(x/k, 1.0/3.0) - h) / math.Sqrt(2/(9*k))
	return normalCDF(z)
}

// CorrelationTest computes Pearson's r for two equal-length samples and a
// two-tailed p-value for the null hypothesis r=0, via the t-distribution
// approximated by the normal CDF for n large enough for the Evidence and
// Reflection stages' sample sizes.
func CorrelationTest(x, y []float64) (r, pValue float64) {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0, 1
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, 1
	}
	r = cov / math.Sqrt(varX*varY)

	df := float64(n - 2)
	if df < 1 {
		return r, 1
	}
	t := r * math.Sqrt(df/(1-r*r+1e-12))
	pValue = 2 * (1 - normalCDF(math.Abs(t)))
	return r, pValue
}

// CohensD computes the standardized mean difference between two samples
// described by mean/variance/size, pooling variances per Cohen's original
// definition.
func CohensD(mean1, var1 float64, n1 int, mean2, var2 float64, n2 int) float64 {
	pooledVar := (float64(n1-1)*var1 + float64(n2-1)*var2) / float64(n1+n2-2)
	if pooledVar <= 0 {
		return 0
	}
	return (mean1 - mean2) / math.Sqrt(pooledVar)
}

// ProportionConfidenceInterval returns the Wilson score interval for a
// sample proportion — more stable than the normal approximation at the
// small sample sizes the Evidence stage's statistical-power checks see.
func ProportionConfidenceInterval(successes, trials int, z float64) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}
	n := float64(trials)
	p := float64(successes) / n
	denom := 1 + z*z/n
	center := p + z*z/(2*n)
	margin := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))
	lower = (center - margin) / denom
	upper = (center + margin) / denom
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}
