package ale

import (
	"context"
	"errors"
	"math"
	"math/rand"

	hist2 "github.com/grd/histogram"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/permute"
)

// Monte Carlo null binning over the [0, 1] ALE range.
const (
	mcNumBins  = 1000
	mcBinWidth = 1.0 / float64(mcNumBins)
)

// monteCarloNull is the permutation null: every iteration redraws each
// study's foci uniformly within the mask, reruns the kernel+combine
// pipeline, and bins the resulting in-mask ALE values. The merged bin
// counts give the right-tail lookup.
type monteCarloNull struct {
	counts []float64
	tail   []float64

	requested int
	completed int
	seed      int64
}

// fitMonteCarloNull distributes iterations across the worker pool. Each
// iteration builds its own private histogram; merging bin counts is
// associative and commutative, so the result does not depend on worker
// count. On cancellation the null from the completed iterations is
// returned together with the PartialError.
func fitMonteCarloNull(ctx context.Context, e *Estimator, ds *dataset.Dataset, nIters, nCores int, seed int64) (*monteCarloNull, error) {
	task := func(iter int, rng *rand.Rand) (*hist2.Histogram, error) {
		aleMap, err := e.ComputeALE(RandomStudies(ds, rng))
		if err != nil {
			return nil, err
		}

		hg, err := hist2.NewHistogram(hist2.Range(0, mcNumBins, mcBinWidth))
		if err != nil {
			return nil, err
		}

		for _, idx := range ds.Mask.Indices() {
			// ALE of exactly 1 sits on the top bin edge; nudge it inside.
			hg.Add(math.Min(aleMap.Data[idx], 1.0-1e-12))
		}

		return hg, nil
	}

	histograms, err := permute.Run(ctx, nIters, nCores, seed, task)

	var partial permute.PartialError
	if err != nil && !errors.As(err, &partial) {
		return nil, err
	}
	if len(histograms) == 0 {
		return nil, err
	}

	null := &monteCarloNull{
		counts:    make([]float64, mcNumBins),
		requested: nIters,
		completed: len(histograms),
		seed:      seed,
	}

	for _, hg := range histograms {
		for b := 0; b < mcNumBins; b++ {
			null.counts[b] += float64(hg.Get(b))
		}
	}

	null.tail = make([]float64, mcNumBins)
	sum := 0.0
	for b := mcNumBins - 1; b >= 0; b-- {
		sum += null.counts[b]
		null.tail[b] = sum
	}
	if total := null.tail[0]; total > 0 {
		for b := range null.tail {
			null.tail[b] /= total
		}
	}

	return null, err
}

func (n *monteCarloNull) PValue(stat float64) float64 {
	b := int(stat / mcBinWidth)
	if b < 0 {
		b = 0
	}
	if b >= mcNumBins {
		b = mcNumBins - 1
	}

	return n.tail[b]
}

func (n *monteCarloNull) Describe(md meta.Metadata) {
	md["null_iters_requested"] = n.requested
	md["null_iters_completed"] = n.completed
	md["null_seed"] = n.seed
	md["null_bin_width"] = mcBinWidth
}
