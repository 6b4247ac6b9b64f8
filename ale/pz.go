package ale

import "gonum.org/v1/gonum/stat/distuv"

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// pEps bounds p-values away from 0 and 1 so the inverse-normal transform
// stays finite.
const pEps = 1e-16

func clampP(p float64) float64 {
	if p < pEps {
		return pEps
	}
	if p > 1-pEps {
		return 1 - pEps
	}

	return p
}

// PToZ converts a one-tailed p-value to its z equivalent, z = Phi^-1(1-p).
func PToZ(p float64) float64 {
	return stdNormal.Quantile(1 - clampP(p))
}

// TwoTailedPToZ converts a two-tailed p-value to a signed z, with the
// sign taken from the observed statistic.
func TwoTailedPToZ(p float64, sign float64) float64 {
	z := stdNormal.Quantile(1 - clampP(p)/2)
	if sign < 0 {
		return -z
	}

	return z
}

// ZToP is the one-tailed inverse of PToZ.
func ZToP(z float64) float64 {
	return 1 - stdNormal.CDF(z)
}
