package ale

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/kernel"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/permute"
	"github.com/Remi-Gau/NiMARE/volume"
)

// Subtraction compares two independent samples: the observed statistic is
// the voxelwise ALE difference, and its null is built by repeatedly
// reassigning the pooled studies to pseudo-groups of the original sizes.
type Subtraction struct {
	Kernel kernel.Config

	NIters int
	NCores int
	Seed   int64

	// MaxStat switches the null summary from per-voxel difference
	// distributions to the per-iteration maximum absolute difference.
	MaxStat bool
}

// Fit computes the group1-minus-group2 difference map and its two-tailed
// permutation p and z maps. Swapping the inputs negates the difference
// map exactly.
func (s *Subtraction) Fit(ctx context.Context, dsA, dsB *dataset.Dataset) (*meta.Result, error) {
	if err := s.validate(dsA, dsB); err != nil {
		return nil, err
	}
	if s.NIters < iterFloor {
		log.Printf("subtraction with %d iterations is below the reliability floor of %d; p-values will be noisy", s.NIters, iterFloor)
	}

	kern := kernel.New(dsA.Grid(), s.Kernel)

	aleA, err := computeALE(kern, dsA.Studies)
	if err != nil {
		return nil, err
	}
	aleB, err := computeALE(kern, dsB.Studies)
	if err != nil {
		return nil, err
	}

	diff := volume.New(dsA.Grid())
	for i := range diff.Data {
		diff.Data[i] = aleA.Data[i] - aleB.Data[i]
	}

	// Pool studies in ID order so the permutation stream is independent
	// of which group was passed first.
	pool := make([]dataset.Study, 0, dsA.NumStudies()+dsB.NumStudies())
	pool = append(pool, dsA.Studies...)
	pool = append(pool, dsB.Studies...)
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	var (
		p       *volume.Volume
		partial error
	)
	if s.MaxStat {
		p, partial = s.maxStatNull(ctx, kern, dsA, pool, dsA.NumStudies(), diff)
	} else {
		p, partial = s.voxelwiseNull(ctx, kern, dsA, pool, dsA.NumStudies(), diff)
	}
	if partial != nil && p == nil {
		return nil, partial
	}

	z := volume.New(dsA.Grid())
	for _, idx := range dsA.Mask.Indices() {
		z.Data[idx] = TwoTailedPToZ(p.Data[idx], diff.Data[idx])
	}

	res := meta.NewResult(dsA, nil)
	res.Dataset2 = dsB
	res.SetMap("stat_desc-group1MinusGroup2", diff)
	res.SetMap("p_desc-group1MinusGroup2", p)
	res.SetMap("z_desc-group1MinusGroup2", z)
	res.Metadata["n_iters"] = s.NIters
	res.Metadata["seed"] = s.Seed
	if s.MaxStat {
		res.Metadata["null_summary"] = "maxstat"
	} else {
		res.Metadata["null_summary"] = "voxelwise"
	}

	return res, partial
}

func (s *Subtraction) validate(dsA, dsB *dataset.Dataset) error {
	if dsA == nil || dsB == nil {
		return dataset.Configf("subtraction requires two datasets")
	}
	if err := dsA.ValidateForMeta(); err != nil {
		return err
	}
	if err := dsB.ValidateForMeta(); err != nil {
		return err
	}
	if !dsA.Grid().Same(dsB.Grid()) {
		return dataset.Configf("subtraction groups are in different template spaces")
	}
	if s.NIters < 1 {
		return dataset.Configf("subtraction requires a positive iteration count, got %d", s.NIters)
	}

	return nil
}

// voxelwiseNull streams per-voxel two-tailed exceedance counts. Workers
// own disjoint iteration stripes and private counters; counter sums are
// order-independent, so results do not depend on worker count.
func (s *Subtraction) voxelwiseNull(ctx context.Context, kern *kernel.Estimator, dsA *dataset.Dataset, pool []dataset.Study, nA int, diff *volume.Volume) (*volume.Volume, error) {
	maskIdx := dsA.Mask.Indices()

	obs := make([]float64, len(maskIdx))
	for v, idx := range maskIdx {
		obs[v] = diff.Data[idx]
	}

	workers := s.NCores
	if workers < 1 {
		workers = 1
	}
	if workers > s.NIters {
		workers = s.NIters
	}

	type counters struct {
		ge, le    []int32
		completed int
	}

	parts := make([]counters, workers)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			part := counters{
				ge: make([]int32, len(maskIdx)),
				le: make([]int32, len(maskIdx)),
			}

			for iter := w; iter < s.NIters; iter += workers {
				select {
				case <-gctx.Done():
					parts[w] = part
					return gctx.Err()
				default:
				}

				rng := rand.New(rand.NewSource(s.Seed + int64(iter)))
				nullDiff, err := pseudoDiff(kern, pool, nA, rng)
				if err != nil {
					parts[w] = part
					return err
				}

				for v, idx := range maskIdx {
					d := nullDiff.Data[idx]
					if d >= obs[v] {
						part.ge[v]++
					}
					if d <= obs[v] {
						part.le[v]++
					}
				}
				part.completed++
			}

			parts[w] = part
			return nil
		})
	}

	err := g.Wait()

	completed := 0
	for _, part := range parts {
		completed += part.completed
	}
	if err != nil {
		if completed == 0 {
			return nil, err
		}
		err = permute.PartialError{Completed: completed, Requested: s.NIters, Cause: err}
	}

	p := volume.New(dsA.Grid())
	for i := range p.Data {
		p.Data[i] = 1
	}

	n := float64(completed)
	for v, idx := range maskIdx {
		var ge, le float64
		for _, part := range parts {
			if v < len(part.ge) {
				ge += float64(part.ge[v])
				le += float64(part.le[v])
			}
		}

		pge := math.Max(ge, 1) / n
		ple := math.Max(le, 1) / n
		p.Data[idx] = math.Min(1, 2*math.Min(pge, ple))
	}

	return p, err
}

// maxStatNull records the per-iteration maximum absolute difference and
// compares each observed |difference| against that distribution.
func (s *Subtraction) maxStatNull(ctx context.Context, kern *kernel.Estimator, dsA *dataset.Dataset, pool []dataset.Study, nA int, diff *volume.Volume) (*volume.Volume, error) {
	maskIdx := dsA.Mask.Indices()

	task := func(iter int, rng *rand.Rand) (float64, error) {
		nullDiff, err := pseudoDiff(kern, pool, nA, rng)
		if err != nil {
			return 0, err
		}

		maxAbs := 0.0
		for _, idx := range maskIdx {
			if a := math.Abs(nullDiff.Data[idx]); a > maxAbs {
				maxAbs = a
			}
		}

		return maxAbs, nil
	}

	maxes, err := permute.Run(ctx, s.NIters, s.NCores, s.Seed, task)
	if len(maxes) == 0 {
		return nil, err
	}

	sort.Float64s(maxes)

	p := volume.New(dsA.Grid())
	for i := range p.Data {
		p.Data[i] = 1
	}

	n := float64(len(maxes))
	for _, idx := range maskIdx {
		exceed := float64(len(maxes) - sort.SearchFloat64s(maxes, math.Abs(diff.Data[idx])))
		p.Data[idx] = math.Max(exceed, 1) / n
	}

	return p, err
}

// pseudoDiff shuffles the pooled studies into pseudo-groups of sizes nA
// and len(pool)-nA and returns the pseudo difference map.
func pseudoDiff(kern *kernel.Estimator, pool []dataset.Study, nA int, rng *rand.Rand) (*volume.Volume, error) {
	perm := rng.Perm(len(pool))

	pseudoA := make([]dataset.Study, 0, nA)
	pseudoB := make([]dataset.Study, 0, len(pool)-nA)
	for i, pi := range perm {
		if i < nA {
			pseudoA = append(pseudoA, pool[pi])
		} else {
			pseudoB = append(pseudoB, pool[pi])
		}
	}

	aleA, err := computeALE(kern, pseudoA)
	if err != nil {
		return nil, err
	}
	aleB, err := computeALE(kern, pseudoB)
	if err != nil {
		return nil, err
	}

	for i := range aleA.Data {
		aleA.Data[i] -= aleB.Data[i]
	}

	return aleA, nil
}

// computeALE is the kernel+combine pipeline over an explicit study list.
func computeALE(kern *kernel.Estimator, studies []dataset.Study) (*volume.Volume, error) {
	maMaps := make([]*volume.Volume, 0, len(studies))
	for _, s := range studies {
		ma, err := kern.MA(s)
		if err != nil {
			return nil, err
		}

		maMaps = append(maMaps, ma.Map)
	}

	return Combine(maMaps)
}
