// Package correct turns uncorrected statistic maps into family-wise-error
// or false-discovery-rate corrected maps. The FWE corrector follows the
// max-statistic Monte Carlo approach: repeated whole-brain null analyses
// yield empirical distributions of the maximum voxel statistic and the
// maximum cluster size/mass, against which observed values are ranked.
package correct

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"sort"

	"github.com/carbocation/runningvariance"
	"github.com/montanaflynn/stats"

	"github.com/Remi-Gau/NiMARE/ale"
	"github.com/Remi-Gau/NiMARE/cluster"
	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/permute"
	"github.com/Remi-Gau/NiMARE/volume"
)

// iterFloor mirrors the estimator's reliability floor for Monte Carlo
// iteration counts.
const iterFloor = 500

// FWE is the Monte Carlo family-wise-error corrector.
type FWE struct {
	// VoxelThresh is the primary cluster-forming threshold as an
	// uncorrected p-value. Zero selects 0.001.
	VoxelThresh float64

	NIters int
	NCores int
	Seed   int64

	// Connectivity defaults to 26-neighbor.
	Connectivity cluster.Connectivity
}

// nullSummary is the per-iteration record: the whole-brain maximum voxel
// statistic plus the largest suprathreshold cluster size and mass.
type nullSummary struct {
	MaxStat float64
	MaxSize int
	MaxMass float64
}

func (c FWE) voxelThresh() float64 {
	if c.VoxelThresh > 0 {
		return c.VoxelThresh
	}

	return 0.001
}

func (c FWE) connectivity() cluster.Connectivity {
	if c.Connectivity == 0 {
		return cluster.Corners
	}

	return c.Connectivity
}

// Transform produces the voxel-level and cluster-level FWE-corrected maps
// for an estimator-backed result. Given identical dataset, thresholds,
// iteration count, and seed, output is bit-identical regardless of worker
// count. Under cancellation, maps from the completed iterations are
// returned together with the PartialError.
func (c FWE) Transform(ctx context.Context, r *meta.Result) (*meta.Result, error) {
	if r.Estimator == nil {
		return nil, dataset.Configf("FWE correction requires an estimator-backed result")
	}
	if c.NIters < 1 {
		return nil, dataset.Configf("FWE correction requires a positive iteration count, got %d", c.NIters)
	}
	if c.NIters < iterFloor {
		log.Printf("FWE correction with %d iterations is below the reliability floor of %d; corrected p-values will be noisy", c.NIters, iterFloor)
	}

	est := r.Estimator
	ds := r.Dataset
	mask := ds.Mask

	statMap, err := r.Map("stat")
	if err != nil {
		return nil, err
	}

	// Convert the p-value threshold to an ALE threshold via the fitted
	// null, so observed and null maps are cut identically.
	statThresh := aleThreshold(est, c.voxelThresh())

	observed := cluster.LabelAbove(statMap, mask, statThresh, c.connectivity())

	task := func(iter int, rng *rand.Rand) (nullSummary, error) {
		nullMap, err := est.ComputeALE(ale.RandomStudies(ds, rng))
		if err != nil {
			return nullSummary{}, err
		}

		var s nullSummary
		for _, idx := range mask.Indices() {
			if v := nullMap.Data[idx]; v > s.MaxStat {
				s.MaxStat = v
			}
		}

		nullClusters := cluster.LabelAbove(nullMap, mask, statThresh, c.connectivity())
		s.MaxSize, s.MaxMass = cluster.MaxSizeAndMass(nullClusters)

		return s, nil
	}

	summaries, runErr := permute.Run(ctx, c.NIters, c.NCores, c.Seed, task)

	var partial permute.PartialError
	if runErr != nil && !errors.As(runErr, &partial) {
		return nil, runErr
	}
	if len(summaries) == 0 {
		return nil, runErr
	}

	n := float64(len(summaries))

	maxStats := make([]float64, len(summaries))
	maxSizes := make([]float64, len(summaries))
	maxMasses := make([]float64, len(summaries))
	rv := runningvariance.NewRunningStat()
	for i, s := range summaries {
		maxStats[i] = s.MaxStat
		maxSizes[i] = float64(s.MaxSize)
		maxMasses[i] = s.MaxMass
		rv.Push(s.MaxStat)
	}
	sort.Float64s(maxStats)
	sort.Float64s(maxSizes)
	sort.Float64s(maxMasses)

	out := r.Clone()

	// Voxel level: rank each observed statistic within the null maxima.
	zVox := volume.New(ds.Grid())
	logpVox := volume.New(ds.Grid())
	for _, idx := range mask.Indices() {
		p := rightTailP(maxStats, statMap.Data[idx], n)
		zVox.Data[idx] = ale.PToZ(p)
		logpVox.Data[idx] = -math.Log10(p)
	}
	out.SetMap("z_level-voxel_corr-FWE_method-montecarlo", zVox)
	out.SetMap("logp_level-voxel_corr-FWE_method-montecarlo", logpVox)

	// Cluster level: rank observed cluster extent and mass within the
	// null max-size and max-mass distributions.
	zSize := volume.New(ds.Grid())
	logpSize := volume.New(ds.Grid())
	zMass := volume.New(ds.Grid())
	logpMass := volume.New(ds.Grid())
	for _, cl := range observed {
		pSize := rightTailP(maxSizes, float64(cl.Size), n)
		pMass := rightTailP(maxMasses, cl.Mass, n)

		for _, idx := range cl.Indices {
			zSize.Data[idx] = ale.PToZ(pSize)
			logpSize.Data[idx] = -math.Log10(pSize)
			zMass.Data[idx] = ale.PToZ(pMass)
			logpMass.Data[idx] = -math.Log10(pMass)
		}
	}
	out.SetMap("z_desc-size_level-cluster_corr-FWE_method-montecarlo", zSize)
	out.SetMap("logp_desc-size_level-cluster_corr-FWE_method-montecarlo", logpSize)
	out.SetMap("z_desc-mass_level-cluster_corr-FWE_method-montecarlo", zMass)
	out.SetMap("logp_desc-mass_level-cluster_corr-FWE_method-montecarlo", logpMass)

	out.Metadata["fwe_method"] = "montecarlo"
	out.Metadata["fwe_voxel_thresh"] = c.voxelThresh()
	out.Metadata["fwe_stat_thresh"] = statThresh
	out.Metadata["fwe_n_iters_requested"] = c.NIters
	out.Metadata["fwe_n_iters_completed"] = len(summaries)
	out.Metadata["fwe_seed"] = c.Seed
	out.Metadata["fwe_null_max_mean"] = rv.Mean()
	out.Metadata["fwe_null_max_sd"] = rv.StandardDeviation()
	if p95, err := stats.Percentile(maxStats, 95); err == nil {
		out.Metadata["fwe_null_max_p95"] = p95
	}
	out.Metadata["fwe_null_max"] = maxStats

	return out, runErr
}

// rightTailP is the fraction of sorted null values >= obs, floored at 1/n.
func rightTailP(sortedNull []float64, obs, n float64) float64 {
	exceed := float64(len(sortedNull) - sort.SearchFloat64s(sortedNull, obs))

	return math.Max(exceed, 1) / n
}

// aleThreshold inverts the fitted null's monotone p lookup: the smallest
// ALE value whose right-tail p is at or below the requested threshold.
func aleThreshold(est meta.Estimator, pThresh float64) float64 {
	lo, hi := 0.0, 1.0
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if est.NullPValue(mid) <= pThresh {
			hi = mid
		} else {
			lo = mid
		}
	}

	return hi
}
