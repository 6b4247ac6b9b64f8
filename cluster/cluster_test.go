package cluster

import (
	"math"
	"testing"

	"github.com/Remi-Gau/NiMARE/volume"
)

func testGrid(t *testing.T) volume.Grid {
	t.Helper()

	g, err := volume.NewGrid([3]int{5, 5, 5}, [4][4]float64{
		{2, 0, 0, -4},
		{0, 2, 0, -4},
		{0, 0, 2, -4},
		{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatalf("building test grid: %v", err)
	}

	return g
}

func TestConnectivityJoinsNeighborPairs(t *testing.T) {
	g := testGrid(t)
	mask := volume.FullMask(g)

	for _, v := range []struct {
		name     string
		second   [3]int
		clusters map[Connectivity]int
	}{
		{"face neighbor", [3]int{1, 0, 0}, map[Connectivity]int{Faces: 1, Edges: 1, Corners: 1}},
		{"edge neighbor", [3]int{1, 1, 0}, map[Connectivity]int{Faces: 2, Edges: 1, Corners: 1}},
		{"corner neighbor", [3]int{1, 1, 1}, map[Connectivity]int{Faces: 2, Edges: 2, Corners: 1}},
		{"distant voxel", [3]int{3, 3, 3}, map[Connectivity]int{Faces: 2, Edges: 2, Corners: 2}},
	} {
		vol := volume.New(g)
		vol.Set(0, 0, 0, 1)
		vol.Set(v.second[0], v.second[1], v.second[2], 1)

		for _, conn := range []Connectivity{Faces, Edges, Corners} {
			got := LabelAbove(vol, mask, 0.5, conn)
			if len(got) != v.clusters[conn] {
				t.Fatalf("%s with connectivity %d: %d clusters, expected %d", v.name, conn, len(got), v.clusters[conn])
			}
		}
	}
}

func TestLabelAboveThresholdIsStrict(t *testing.T) {
	g := testGrid(t)
	vol := volume.New(g)
	vol.Set(2, 2, 2, 0.5)

	if got := LabelAbove(vol, volume.FullMask(g), 0.5, Corners); got != nil {
		t.Fatalf("a voxel equal to the threshold formed %d clusters, expected none", len(got))
	}
	if got := LabelAbove(vol, volume.FullMask(g), 0.49, Corners); len(got) != 1 {
		t.Fatalf("a voxel above the threshold formed %d clusters, expected 1", len(got))
	}
}

func TestClusterStatistics(t *testing.T) {
	g := testGrid(t)
	vol := volume.New(g)

	// An L-shaped component with a clear peak.
	vol.Set(1, 1, 1, 2)
	vol.Set(2, 1, 1, 5)
	vol.Set(2, 2, 1, 3)

	got := LabelAbove(vol, volume.FullMask(g), 1, Corners)
	if len(got) != 1 {
		t.Fatalf("%d clusters, expected 1", len(got))
	}

	c := got[0]
	if c.ID != 1 || c.Size != 3 {
		t.Fatalf("ID=%d Size=%d, expected ID=1 Size=3", c.ID, c.Size)
	}
	if math.Abs(c.Mass-10) > 1e-12 {
		t.Fatalf("Mass = %g, expected 10", c.Mass)
	}
	if c.Peak != 5 || c.PeakIndex != g.Index(2, 1, 1) {
		t.Fatalf("Peak = %g at %d, expected 5 at %d", c.Peak, c.PeakIndex, g.Index(2, 1, 1))
	}
}

func TestClusterIDsFollowRasterOrder(t *testing.T) {
	g := testGrid(t)
	vol := volume.New(g)

	// Two separated components; the one whose first voxel comes earlier in
	// raster order must get ID 1 regardless of size.
	vol.Set(4, 4, 0, 1) // single voxel, early slice
	vol.Set(0, 0, 3, 1)
	vol.Set(1, 0, 3, 1)
	vol.Set(0, 1, 3, 1)

	got := LabelAbove(vol, volume.FullMask(g), 0.5, Corners)
	if len(got) != 2 {
		t.Fatalf("%d clusters, expected 2", len(got))
	}
	if got[0].Size != 1 || got[1].Size != 3 {
		t.Fatalf("sizes %d,%d: the early-raster singleton must be cluster 1", got[0].Size, got[1].Size)
	}
}

func TestExtractTails(t *testing.T) {
	g := testGrid(t)
	z := volume.New(g)

	z.Set(1, 1, 1, 4)
	z.Set(2, 1, 1, 3)
	z.Set(3, 3, 3, -5)

	pos, neg := ExtractTails(z, volume.FullMask(g), 2, Corners)
	if len(pos) != 1 || len(neg) != 1 {
		t.Fatalf("%d positive and %d negative clusters, expected 1 and 1", len(pos), len(neg))
	}

	if pos[0].Tail != "positive" || pos[0].Peak != 4 {
		t.Fatalf("positive cluster: tail=%q peak=%g", pos[0].Tail, pos[0].Peak)
	}
	if neg[0].Tail != "negative" || neg[0].Peak != -5 {
		t.Fatalf("negative cluster must keep its original sign: tail=%q peak=%g", neg[0].Tail, neg[0].Peak)
	}
	if neg[0].Mass != -5 {
		t.Fatalf("negative cluster mass = %g, expected -5", neg[0].Mass)
	}
}

func TestMaxSizeAndMass(t *testing.T) {
	size, mass := MaxSizeAndMass(nil)
	if size != 0 || mass != 0 {
		t.Fatalf("empty set: size=%d mass=%g, expected zeros", size, mass)
	}

	size, mass = MaxSizeAndMass([]Cluster{
		{Size: 3, Mass: 7},
		{Size: 10, Mass: -12},
		{Size: 4, Mass: 9},
	})
	if size != 10 || mass != 12 {
		t.Fatalf("size=%d mass=%g, expected 10 and 12 (absolute mass)", size, mass)
	}
}

func TestLabelAboveRespectsMask(t *testing.T) {
	g := testGrid(t)

	in := make([]bool, g.NumVoxels())
	in[g.Index(1, 1, 1)] = true
	mask, err := volume.NewMask(g, in)
	if err != nil {
		t.Fatalf("NewMask: %v", err)
	}

	vol := volume.New(g)
	vol.Set(1, 1, 1, 1)
	vol.Set(2, 1, 1, 1) // out of mask

	got := LabelAbove(vol, mask, 0.5, Corners)
	if len(got) != 1 {
		t.Fatalf("masked labeling found %d clusters, expected 1", len(got))
	}
	if got[0].Size != 1 {
		t.Fatalf("cluster size %d, expected the out-of-mask voxel to be excluded", got[0].Size)
	}
}
