// Package ale implements the activation likelihood estimation (ALE)
// statistic: per-study modeled activation maps are combined voxelwise
// under the union rule ALE = 1 - prod(1 - MA_i), tested against a null of
// spatially random activation built either in closed form (histogram
// convolution) or by Monte Carlo permutation, and compared between two
// independent samples via a permutation subtraction test.
package ale

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/carbocation/pfx"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/kernel"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/volume"
)

// Null method selectors.
const (
	NullApproximate = "approximate"
	NullMonteCarlo  = "montecarlo"
)

// iterFloor is the iteration count below which Monte Carlo estimates are
// flagged as statistically unreliable. Runs below the floor are logged,
// never rejected.
const iterFloor = 500

// Config holds the immutable settings of one ALE estimator.
type Config struct {
	Kernel kernel.Config

	// NullMethod is NullApproximate (default) or NullMonteCarlo.
	NullMethod string

	// NIters, NCores, and Seed drive the Monte Carlo null; ignored by the
	// approximate null.
	NIters int
	NCores int
	Seed   int64
}

func (c Config) nullMethod() string {
	if c.NullMethod == "" {
		return NullApproximate
	}

	return c.NullMethod
}

// Estimator fits the single-sample ALE pipeline.
type Estimator struct {
	cfg  Config
	ds   *dataset.Dataset
	kern *kernel.Estimator
	null nullDistribution
}

// nullDistribution exposes the right-tail p lookup shared by both null
// strategies.
type nullDistribution interface {
	// PValue is P(null statistic >= stat); monotone non-increasing.
	PValue(stat float64) float64
	// Describe annotates result metadata.
	Describe(md meta.Metadata)
}

// New constructs an unfitted estimator.
func New(cfg Config) (*Estimator, error) {
	switch cfg.nullMethod() {
	case NullApproximate, NullMonteCarlo:
	default:
		return nil, dataset.Configf("unknown null method %q", cfg.NullMethod)
	}

	if cfg.nullMethod() == NullMonteCarlo && cfg.NIters < 1 {
		return nil, dataset.Configf("montecarlo null requires a positive iteration count, got %d", cfg.NIters)
	}

	return &Estimator{cfg: cfg}, nil
}

// Combine applies the ALE union rule to a set of per-study MA maps.
// Adding a map can only raise or hold the statistic at any voxel.
func Combine(maMaps []*volume.Volume) (*volume.Volume, error) {
	if len(maMaps) == 0 {
		return nil, fmt.Errorf("no modeled activation maps to combine")
	}

	out := volume.New(maMaps[0].Grid)
	for i := range out.Data {
		prod := 1.0
		for _, ma := range maMaps {
			prod *= 1.0 - ma.Data[i]
		}
		out.Data[i] = 1.0 - prod
	}

	return out, nil
}

// Fit runs the full single-sample pipeline and returns the MetaResult
// with the stat, p, z, and logp maps.
func (e *Estimator) Fit(ctx context.Context, ds *dataset.Dataset) (*meta.Result, error) {
	if err := ds.ValidateForMeta(); err != nil {
		return nil, err
	}

	e.ds = ds
	e.kern = kernel.New(ds.Grid(), e.cfg.Kernel)

	maMaps := make([]*volume.Volume, 0, ds.NumStudies())
	for _, s := range ds.Studies {
		ma, err := e.kern.MA(s)
		if err != nil {
			return nil, pfx.Err(err)
		}
		if ma.ClippedFoci > 0 {
			log.Printf("study %s: %d focus/foci outside the template bounding box were clipped", s.ID, ma.ClippedFoci)
		}

		maMaps = append(maMaps, ma.Map)
	}

	stat, err := Combine(maMaps)
	if err != nil {
		return nil, pfx.Err(err)
	}

	var partial error
	switch e.cfg.nullMethod() {
	case NullApproximate:
		e.null = fitApproximateNull(maMaps, ds.Mask)
	case NullMonteCarlo:
		if e.cfg.NIters < iterFloor {
			log.Printf("montecarlo null with %d iterations is below the reliability floor of %d; p-values will be noisy", e.cfg.NIters, iterFloor)
		}

		e.null, partial = fitMonteCarloNull(ctx, e, ds, e.cfg.NIters, e.cfg.NCores, e.cfg.Seed)
		if partial != nil && e.null == nil {
			return nil, partial
		}
	}

	res := meta.NewResult(ds, e)
	res.SetMap("stat", stat)

	p := volume.New(ds.Grid())
	z := volume.New(ds.Grid())
	logp := volume.New(ds.Grid())
	for _, idx := range ds.Mask.Indices() {
		pv := e.null.PValue(stat.Data[idx])
		p.Data[idx] = pv
		z.Data[idx] = PToZ(pv)
		logp.Data[idx] = -math.Log10(clampP(pv))
	}

	res.SetMap("p", p)
	res.SetMap("z", z)
	res.SetMap("logp", logp)

	res.Metadata["null_method"] = e.cfg.nullMethod()
	e.null.Describe(res.Metadata)

	// A cancelled Monte Carlo null still yields maps from the completed
	// iterations, flagged for the caller.
	return res, partial
}

// Dataset returns the fitted dataset.
func (e *Estimator) Dataset() *dataset.Dataset {
	return e.ds
}

// ComputeALE recomputes the ALE statistic map for an arbitrary study set
// on the fitted grid. Correctors use it with permuted-foci pseudo-studies
// and diagnostics with leave-one-out subsets.
func (e *Estimator) ComputeALE(studies []dataset.Study) (*volume.Volume, error) {
	if e.kern == nil {
		return nil, fmt.Errorf("estimator has not been fitted")
	}
	if len(studies) == 0 {
		return nil, dataset.Configf("cannot compute ALE over zero studies")
	}

	return computeALE(e.kern, studies)
}

// NullPValue is the fitted null's right-tail p lookup.
func (e *Estimator) NullPValue(stat float64) float64 {
	if e.null == nil {
		return 1
	}

	return e.null.PValue(stat)
}

// RandomStudies redraws every study's foci uniformly at random within the
// mask, preserving study identities, focus counts, and sample sizes. This
// is the spatial-randomness null shared by the Monte Carlo engines.
func RandomStudies(ds *dataset.Dataset, rng *rand.Rand) []dataset.Study {
	out := make([]dataset.Study, len(ds.Studies))
	for i, s := range ds.Studies {
		foci := make([][3]float64, len(s.Foci))
		for f := range foci {
			foci[f] = ds.Mask.RandomMM(rng)
		}

		out[i] = dataset.Study{ID: s.ID, Foci: foci, SampleSize: s.SampleSize}
	}

	return out
}
