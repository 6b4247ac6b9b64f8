package ale

import (
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/volume"
)

// nullStep discretizes the [0, 1] ALE range into bins of width 1e-4 for
// the closed-form null.
const nullStep = 10000

// approximateNull is the closed-form null: each study's attainable MA
// values are histogrammed over the mask (treating the study's location as
// uniformly random), and the histograms are combined under the ALE union
// rule by discrete convolution. Deterministic, no resampling.
type approximateNull struct {
	// tail[b] = P(null ALE >= b/nullStep)
	tail []float64
}

func fitApproximateNull(maMaps []*volume.Volume, mask *volume.Mask) *approximateNull {
	hist := studyHist(maMaps[0], mask)
	for _, ma := range maMaps[1:] {
		hist = convolveUnion(hist, studyHist(ma, mask))
	}

	tail := make([]float64, len(hist))
	sum := 0.0
	for b := len(hist) - 1; b >= 0; b-- {
		sum += hist[b]
		tail[b] = sum
	}

	// Guard against float drift: the total mass should be exactly 1.
	if total := tail[0]; total > 0 {
		for b := range tail {
			tail[b] /= total
		}
	}

	return &approximateNull{tail: tail}
}

// studyHist bins one study's MA values over the in-mask voxels into a
// probability mass function.
func studyHist(ma *volume.Volume, mask *volume.Mask) []float64 {
	hist := make([]float64, nullStep+1)
	for _, idx := range mask.Indices() {
		hist[statBin(ma.Data[idx])]++
	}

	n := float64(mask.NumIn())
	for b := range hist {
		hist[b] /= n
	}

	return hist
}

// convolveUnion combines two independent MA/ALE histograms under
// v = 1 - (1-a)(1-b), accumulating joint probability mass into the bin of
// the combined value. Only occupied bins participate.
func convolveUnion(a, b []float64) []float64 {
	var aIdx, bIdx []int
	for i, v := range a {
		if v > 0 {
			aIdx = append(aIdx, i)
		}
	}
	for i, v := range b {
		if v > 0 {
			bIdx = append(bIdx, i)
		}
	}

	out := make([]float64, len(a))
	for _, ia := range aIdx {
		va := float64(ia) / nullStep
		for _, ib := range bIdx {
			vb := float64(ib) / nullStep
			out[statBin(1.0-(1.0-va)*(1.0-vb))] += a[ia] * b[ib]
		}
	}

	return out
}

func statBin(v float64) int {
	b := int(v*nullStep + 0.5)
	if b < 0 {
		return 0
	}
	if b > nullStep {
		return nullStep
	}

	return b
}

func (n *approximateNull) PValue(stat float64) float64 {
	return n.tail[statBin(stat)]
}

func (n *approximateNull) Describe(md meta.Metadata) {
	md["null_bin_width"] = 1.0 / float64(nullStep)
}
