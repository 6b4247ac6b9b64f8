// Package volume models dense 3-D statistic volumes on a fixed template
// grid, along with the brain mask that restricts analyses to in-brain
// voxels.
package volume

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Grid describes a template sampling grid: integer dimensions plus the 4x4
// affine that maps voxel indices (i, j, k, 1) to millimeter coordinates.
// All studies within one analysis must share a single Grid.
type Grid struct {
	Dims   [3]int
	Affine [4][4]float64

	// inverse affine, cached at construction
	inv [4][4]float64
}

// NewGrid validates the dimensions and caches the inverse affine so that
// millimeter coordinates can be mapped back to voxel indices.
func NewGrid(dims [3]int, affine [4][4]float64) (Grid, error) {
	for _, d := range dims {
		if d < 1 {
			return Grid{}, fmt.Errorf("grid dimensions must be positive, got %v", dims)
		}
	}

	a := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a.Set(r, c, affine[r][c])
		}
	}

	var ainv mat.Dense
	if err := ainv.Inverse(a); err != nil {
		return Grid{}, fmt.Errorf("affine is not invertible: %v", err)
	}

	out := Grid{Dims: dims, Affine: affine}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out.inv[r][c] = ainv.At(r, c)
		}
	}

	return out, nil
}

// MNI152 returns the standard 2 mm MNI152 grid (91 x 109 x 91).
func MNI152() Grid {
	g, err := NewGrid(
		[3]int{91, 109, 91},
		[4][4]float64{
			{-2, 0, 0, 90},
			{0, 2, 0, -126},
			{0, 0, 2, -72},
			{0, 0, 0, 1},
		},
	)
	if err != nil {
		// The constants above are fixed; this cannot fail.
		panic(err)
	}

	return g
}

// Same reports whether two grids define the identical template space.
func (g Grid) Same(other Grid) bool {
	return g.Dims == other.Dims && g.Affine == other.Affine
}

// NumVoxels is the total voxel count of the grid.
func (g Grid) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Index converts voxel indices to the linear offset used by Volume data
// slices. Layout is row-major with i (x) varying fastest.
func (g Grid) Index(i, j, k int) int {
	return i + g.Dims[0]*(j+g.Dims[1]*k)
}

// Voxel is the inverse of Index.
func (g Grid) Voxel(idx int) (i, j, k int) {
	i = idx % g.Dims[0]
	idx /= g.Dims[0]
	j = idx % g.Dims[1]
	k = idx / g.Dims[1]

	return
}

// InBounds reports whether the voxel indices fall inside the grid.
func (g Grid) InBounds(i, j, k int) bool {
	return i >= 0 && i < g.Dims[0] &&
		j >= 0 && j < g.Dims[1] &&
		k >= 0 && k < g.Dims[2]
}

// VoxelToMM maps voxel indices to millimeter coordinates via the affine.
func (g Grid) VoxelToMM(i, j, k int) (x, y, z float64) {
	fi, fj, fk := float64(i), float64(j), float64(k)
	x = g.Affine[0][0]*fi + g.Affine[0][1]*fj + g.Affine[0][2]*fk + g.Affine[0][3]
	y = g.Affine[1][0]*fi + g.Affine[1][1]*fj + g.Affine[1][2]*fk + g.Affine[1][3]
	z = g.Affine[2][0]*fi + g.Affine[2][1]*fj + g.Affine[2][2]*fk + g.Affine[2][3]

	return
}

// MMToVoxel maps millimeter coordinates to the nearest voxel indices. The
// result may be out of bounds; callers decide whether to clip or reject.
func (g Grid) MMToVoxel(x, y, z float64) (i, j, k int) {
	fi := g.inv[0][0]*x + g.inv[0][1]*y + g.inv[0][2]*z + g.inv[0][3]
	fj := g.inv[1][0]*x + g.inv[1][1]*y + g.inv[1][2]*z + g.inv[1][3]
	fk := g.inv[2][0]*x + g.inv[2][1]*y + g.inv[2][2]*z + g.inv[2][3]

	return roundHalfUp(fi), roundHalfUp(fj), roundHalfUp(fk)
}

// Clip forces voxel indices into the grid bounding box, reporting whether
// any component had to move.
func (g Grid) Clip(i, j, k int) (ci, cj, ck int, clipped bool) {
	ci, cj, ck = i, j, k

	if ci < 0 {
		ci = 0
	} else if ci >= g.Dims[0] {
		ci = g.Dims[0] - 1
	}
	if cj < 0 {
		cj = 0
	} else if cj >= g.Dims[1] {
		cj = g.Dims[1] - 1
	}
	if ck < 0 {
		ck = 0
	} else if ck >= g.Dims[2] {
		ck = g.Dims[2] - 1
	}

	return ci, cj, ck, ci != i || cj != j || ck != k
}

func roundHalfUp(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}

	return -int(-f + 0.5)
}
