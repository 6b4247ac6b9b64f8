package volume

import "fmt"

// Volume is a dense per-voxel scalar map over a Grid.
type Volume struct {
	Grid Grid
	Data []float64
}

// New allocates a zero-filled volume on the given grid.
func New(g Grid) *Volume {
	return &Volume{Grid: g, Data: make([]float64, g.NumVoxels())}
}

// At returns the value at voxel (i, j, k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Grid.Index(i, j, k)]
}

// Set assigns the value at voxel (i, j, k).
func (v *Volume) Set(i, j, k int, val float64) {
	v.Data[v.Grid.Index(i, j, k)] = val
}

// Clone deep-copies the volume.
func (v *Volume) Clone() *Volume {
	out := New(v.Grid)
	copy(out.Data, v.Data)

	return out
}

// Max returns the maximum value and its linear voxel index. The first
// voxel in raster order wins ties, which keeps downstream peak reporting
// deterministic.
func (v *Volume) Max() (val float64, idx int) {
	val = v.Data[0]
	for i, d := range v.Data {
		if d > val {
			val = d
			idx = i
		}
	}

	return val, idx
}

// Conjunction computes the voxelwise minimum of two z maps restricted to
// voxels where both are positive; all other voxels are zero. This is the
// minimum-statistic conjunction of two independently thresholded maps.
func Conjunction(za, zb *Volume) (*Volume, error) {
	if !za.Grid.Same(zb.Grid) {
		return nil, fmt.Errorf("conjunction inputs are on different grids: %v vs %v", za.Grid.Dims, zb.Grid.Dims)
	}

	out := New(za.Grid)
	for i := range za.Data {
		a, b := za.Data[i], zb.Data[i]
		if a > 0 && b > 0 {
			if a < b {
				out.Data[i] = a
			} else {
				out.Data[i] = b
			}
		}
	}

	return out, nil
}
