package correct

import (
	"math"
	"sort"

	"github.com/Remi-Gau/NiMARE/ale"
	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/volume"
)

// FDR method selectors.
const (
	// FDRIndep is the Benjamini-Hochberg step-up, valid under
	// independence or positive dependence.
	FDRIndep = "indep"
	// FDRNegCorr is the Benjamini-Yekutieli variant, valid under
	// arbitrary dependence.
	FDRNegCorr = "negcorr"
)

// FDR applies false-discovery-rate adjustment to the uncorrected p map.
type FDR struct {
	// Method is FDRIndep (default) or FDRNegCorr.
	Method string
}

func (c FDR) method() string {
	if c.Method == "" {
		return FDRIndep
	}

	return c.Method
}

// Transform adds FDR-adjusted p and z maps to the result.
func (c FDR) Transform(r *meta.Result) (*meta.Result, error) {
	switch c.method() {
	case FDRIndep, FDRNegCorr:
	default:
		return nil, dataset.Configf("unknown FDR method %q", c.Method)
	}

	pMap, err := r.Map("p")
	if err != nil {
		return nil, err
	}

	mask := r.Dataset.Mask
	maskIdx := mask.Indices()
	m := len(maskIdx)

	type entry struct {
		idx int
		p   float64
	}
	entries := make([]entry, m)
	for v, idx := range maskIdx {
		entries[v] = entry{idx: idx, p: pMap.Data[idx]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].p < entries[j].p })

	// Benjamini-Yekutieli inflates the adjustment by the harmonic sum.
	scale := 1.0
	if c.method() == FDRNegCorr {
		scale = 0
		for i := 1; i <= m; i++ {
			scale += 1.0 / float64(i)
		}
	}

	// Step-up: adjusted p is the running minimum of p*m*scale/rank from
	// the largest rank down.
	adjusted := make([]float64, m)
	runMin := 1.0
	for i := m - 1; i >= 0; i-- {
		adj := entries[i].p * float64(m) * scale / float64(i+1)
		if adj < runMin {
			runMin = adj
		}
		adjusted[i] = math.Min(runMin, 1)
	}

	pOut := volume.New(r.Dataset.Grid())
	zOut := volume.New(r.Dataset.Grid())
	for i := range pOut.Data {
		pOut.Data[i] = 1
	}
	for i, e := range entries {
		pOut.Data[e.idx] = adjusted[i]
		zOut.Data[e.idx] = ale.PToZ(adjusted[i])
	}

	out := r.Clone()
	out.SetMap("p_corr-FDR_method-"+c.method(), pOut)
	out.SetMap("z_corr-FDR_method-"+c.method(), zOut)
	out.Metadata["fdr_method"] = c.method()

	return out, nil
}
