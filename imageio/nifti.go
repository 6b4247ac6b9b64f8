// Package imageio bridges the analysis volumes to on-disk image formats:
// NIfTI for input masks and PNG stacks for rendered statistic maps.
package imageio

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"

	"github.com/Remi-Gau/NiMARE/volume"
)

// LoadMask reads a NIfTI volume and interprets nonzero voxels as in-mask.
// The image dimensions must match the analysis grid; the grid's affine is
// authoritative.
func LoadMask(path string, grid volume.Grid) (*volume.Mask, error) {
	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	dims := img.GetDims()
	if dims[0] != grid.Dims[0] || dims[1] != grid.Dims[1] || dims[2] != grid.Dims[2] {
		return nil, fmt.Errorf("mask %s has dims %dx%dx%d but the analysis grid is %dx%dx%d",
			path, dims[0], dims[1], dims[2], grid.Dims[0], grid.Dims[1], grid.Dims[2])
	}

	in := make([]bool, grid.NumVoxels())
	for k := 0; k < grid.Dims[2]; k++ {
		for j := 0; j < grid.Dims[1]; j++ {
			for i := 0; i < grid.Dims[0]; i++ {
				if img.GetAt(i, j, k, 0) != 0 {
					in[grid.Index(i, j, k)] = true
				}
			}
		}
	}

	m, err := volume.NewMask(grid, in)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return m, nil
}
