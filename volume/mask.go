package volume

import (
	"fmt"
	"math/rand"
)

// Mask marks the voxels that participate in an analysis (the gray-matter
// or whole-brain mask). It caches the linear indices of in-mask voxels so
// that null analyses can draw uniform random in-mask locations cheaply.
type Mask struct {
	Grid Grid
	In   []bool

	idx []int
}

// FullMask includes every voxel of the grid.
func FullMask(g Grid) *Mask {
	in := make([]bool, g.NumVoxels())
	for i := range in {
		in[i] = true
	}

	m, _ := NewMask(g, in)

	return m
}

// NewMask builds a mask from a per-voxel inclusion slice.
func NewMask(g Grid, in []bool) (*Mask, error) {
	if len(in) != g.NumVoxels() {
		return nil, fmt.Errorf("mask has %d voxels but grid has %d", len(in), g.NumVoxels())
	}

	m := &Mask{Grid: g, In: in}
	for i, ok := range in {
		if ok {
			m.idx = append(m.idx, i)
		}
	}

	if len(m.idx) == 0 {
		return nil, fmt.Errorf("mask excludes every voxel")
	}

	return m, nil
}

// NumIn is the count of in-mask voxels.
func (m *Mask) NumIn() int {
	return len(m.idx)
}

// Indices returns the linear indices of in-mask voxels in raster order.
// The returned slice is shared; callers must not modify it.
func (m *Mask) Indices() []int {
	return m.idx
}

// RandomVoxel draws one in-mask voxel uniformly at random.
func (m *Mask) RandomVoxel(rng *rand.Rand) int {
	return m.idx[rng.Intn(len(m.idx))]
}

// RandomMM draws one in-mask voxel uniformly at random and returns its
// center in millimeter coordinates.
func (m *Mask) RandomMM(rng *rand.Rand) [3]float64 {
	i, j, k := m.Grid.Voxel(m.RandomVoxel(rng))
	x, y, z := m.Grid.VoxelToMM(i, j, k)

	return [3]float64{x, y, z}
}
