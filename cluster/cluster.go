// Package cluster performs thresholding and 3-D connected-component
// labeling of statistic volumes, the basis of cluster-level inference.
// Labeling is two-pass with a union-find over provisional labels.
package cluster

import (
	"sort"

	"github.com/theodesp/unionfind"

	"github.com/Remi-Gau/NiMARE/volume"
)

// Connectivity selects the 3-D neighborhood used to join voxels.
type Connectivity int

const (
	// Faces joins voxels sharing a face.
	Faces Connectivity = 6
	// Edges joins voxels sharing a face or an edge.
	Edges Connectivity = 18
	// Corners joins voxels sharing a face, edge, or corner. This is the
	// conventional default for cluster-level inference.
	Corners Connectivity = 26
)

// Cluster is one connected suprathreshold component.
type Cluster struct {
	// ID is 1-based, assigned in raster order of each component's first
	// voxel so numbering is deterministic.
	ID int
	// Tail is "positive" or "negative"; set by ExtractTails.
	Tail string
	// Indices are the linear voxel indices of the component, ascending.
	Indices []int
	// Size is the voxel count.
	Size int
	// Mass is the sum of statistic values over the component.
	Mass float64
	// Peak is the maximum statistic value and PeakIndex its voxel.
	Peak      float64
	PeakIndex int
	// CentroidMM is the unweighted center of the component in mm.
	CentroidMM [3]float64
}

// neighborhood returns the half of the neighbor offsets that precede the
// current voxel in raster order; scanning forward with these visits every
// neighbor pair exactly once.
func (c Connectivity) neighborhood() [][3]int {
	var out [][3]int

	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				if di == 0 && dj == 0 && dk == 0 {
					continue
				}

				manhattan := abs(di) + abs(dj) + abs(dk)
				switch c {
				case Faces:
					if manhattan > 1 {
						continue
					}
				case Edges:
					if manhattan > 2 {
						continue
					}
				}

				// preceding voxels only
				if dk < 0 || (dk == 0 && dj < 0) || (dk == 0 && dj == 0 && di < 0) {
					out = append(out, [3]int{di, dj, dk})
				}
			}
		}
	}

	return out
}

// LabelAbove labels the connected components of in-mask voxels whose
// statistic strictly exceeds thresh.
func LabelAbove(vol *volume.Volume, mask *volume.Mask, thresh float64, conn Connectivity) []Cluster {
	g := vol.Grid

	// seq[idx] is the suprathreshold voxel's provisional label, -1 otherwise.
	seq := make([]int32, g.NumVoxels())
	for i := range seq {
		seq[i] = -1
	}

	var supra []int
	for _, idx := range mask.Indices() {
		if vol.Data[idx] > thresh {
			seq[idx] = int32(len(supra))
			supra = append(supra, idx)
		}
	}

	if len(supra) == 0 {
		return nil
	}

	uf := unionfind.NewThreadSafeUnionFind(len(supra))
	offsets := conn.neighborhood()

	for n, idx := range supra {
		i, j, k := g.Voxel(idx)
		for _, off := range offsets {
			ni, nj, nk := i+off[0], j+off[1], k+off[2]
			if !g.InBounds(ni, nj, nk) {
				continue
			}

			if m := seq[g.Index(ni, nj, nk)]; m >= 0 {
				uf.Union(n, int(m))
			}
		}
	}

	// Group voxels by root. supra is in raster order, so the first voxel
	// seen for each root is the component's raster-first voxel.
	groups := make(map[int][]int)
	var order []int
	for n, idx := range supra {
		root := uf.Root(n)
		if root < 0 {
			root = n
		}

		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], idx)
	}

	out := make([]Cluster, 0, len(order))
	for _, root := range order {
		voxels := groups[root]
		sort.Ints(voxels)

		c := Cluster{
			ID:      len(out) + 1,
			Indices: voxels,
			Size:    len(voxels),
			Peak:    vol.Data[voxels[0]],
		}
		c.PeakIndex = voxels[0]

		var si, sj, sk float64
		for _, idx := range voxels {
			v := vol.Data[idx]
			c.Mass += v
			if v > c.Peak {
				c.Peak = v
				c.PeakIndex = idx
			}

			i, j, k := g.Voxel(idx)
			si += float64(i)
			sj += float64(j)
			sk += float64(k)
		}

		n := float64(len(voxels))
		x, y, z := mmAt(g, si/n, sj/n, sk/n)
		c.CentroidMM = [3]float64{x, y, z}

		out = append(out, c)
	}

	return out
}

// ExtractTails thresholds a signed statistic map in both directions and
// labels each tail separately. Negative-tail clusters report peak values
// and mass on the original (negative) scale.
func ExtractTails(z *volume.Volume, mask *volume.Mask, thresh float64, conn Connectivity) (positive, negative []Cluster) {
	positive = LabelAbove(z, mask, thresh, conn)
	for i := range positive {
		positive[i].Tail = "positive"
	}

	neg := volume.New(z.Grid)
	for i, v := range z.Data {
		neg.Data[i] = -v
	}

	negative = LabelAbove(neg, mask, thresh, conn)
	for i := range negative {
		negative[i].Tail = "negative"
		negative[i].Peak = -negative[i].Peak
		negative[i].Mass = -negative[i].Mass
	}

	return positive, negative
}

// MaxSizeAndMass reports the largest component size and mass over a set
// of clusters; zero values when the set is empty.
func MaxSizeAndMass(clusters []Cluster) (size int, mass float64) {
	for _, c := range clusters {
		if c.Size > size {
			size = c.Size
		}

		m := c.Mass
		if m < 0 {
			m = -m
		}
		if m > mass {
			mass = m
		}
	}

	return size, mass
}

func mmAt(g volume.Grid, fi, fj, fk float64) (x, y, z float64) {
	x = g.Affine[0][0]*fi + g.Affine[0][1]*fj + g.Affine[0][2]*fk + g.Affine[0][3]
	y = g.Affine[1][0]*fi + g.Affine[1][1]*fj + g.Affine[1][2]*fk + g.Affine[1][3]
	z = g.Affine[2][0]*fi + g.Affine[2][1]*fj + g.Affine[2][2]*fk + g.Affine[2][3]

	return
}

func abs(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
