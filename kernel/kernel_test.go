package kernel

import (
	"math"
	"testing"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/volume"
)

func testGrid(t *testing.T) volume.Grid {
	t.Helper()

	g, err := volume.NewGrid([3]int{16, 16, 16}, [4][4]float64{
		{2, 0, 0, -16},
		{0, 2, 0, -16},
		{0, 0, 2, -16},
		{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatalf("building test grid: %v", err)
	}

	return g
}

func TestEickhoffFWHMShrinksWithSampleSize(t *testing.T) {
	prev := math.Inf(1)
	for _, n := range []int{5, 10, 20, 50, 100, 500} {
		fwhm := EickhoffFWHM(n)
		if fwhm <= 0 {
			t.Fatalf("FWHM(%d) = %g, expected positive", n, fwhm)
		}
		if fwhm >= prev {
			t.Fatalf("FWHM(%d) = %g did not shrink from %g", n, fwhm, prev)
		}
		prev = fwhm
	}

	// The between-template term survives as N grows without bound.
	floor := 5.7 / (2.0 * math.Sqrt(2.0/math.Pi)) * math.Sqrt(8.0*math.Ln2)
	if fwhm := EickhoffFWHM(1 << 30); math.Abs(fwhm-floor) > 0.01 {
		t.Fatalf("FWHM at huge N = %g, expected near the template floor %g", fwhm, floor)
	}
}

func TestMAPeaksAtFocus(t *testing.T) {
	g := testGrid(t)
	e := New(g, Config{})

	s := dataset.Study{ID: "s1", Foci: [][3]float64{{0, 0, 0}}, SampleSize: 20}
	res, err := e.MA(s)
	if err != nil {
		t.Fatalf("MA: %v", err)
	}
	if res.ClippedFoci != 0 {
		t.Fatalf("ClippedFoci = %d for an in-grid focus", res.ClippedFoci)
	}

	i, j, k := g.MMToVoxel(0, 0, 0)
	if got := res.Map.At(i, j, k); math.Abs(got-1) > 1e-12 {
		t.Fatalf("MA at the focus voxel = %g, expected exactly 1", got)
	}

	peak, peakIdx := res.Map.Max()
	if peakIdx != g.Index(i, j, k) || math.Abs(peak-1) > 1e-12 {
		t.Fatalf("map peak %g at %d, expected 1 at the focus voxel %d", peak, peakIdx, g.Index(i, j, k))
	}

	for _, v := range res.Map.Data {
		if v < 0 || v > 1 {
			t.Fatalf("MA value %g outside [0,1]", v)
		}
	}
}

func TestMACombinesFociByMaximum(t *testing.T) {
	g := testGrid(t)
	e := New(g, Config{FWHM: func(int) float64 { return 8 }})

	one := dataset.Study{ID: "one", Foci: [][3]float64{{-4, 0, 0}}, SampleSize: 20}
	two := dataset.Study{ID: "two", Foci: [][3]float64{{-4, 0, 0}, {4, 0, 0}}, SampleSize: 20}

	resOne, err := e.MA(one)
	if err != nil {
		t.Fatalf("MA: %v", err)
	}
	resTwo, err := e.MA(two)
	if err != nil {
		t.Fatalf("MA: %v", err)
	}

	// A second focus can only raise values, and never above 1.
	for idx, v := range resTwo.Map.Data {
		if v < resOne.Map.Data[idx]-1e-12 {
			t.Fatalf("adding a focus lowered voxel %d from %g to %g", idx, resOne.Map.Data[idx], v)
		}
		if v > 1 {
			t.Fatalf("voxel %d = %g exceeds 1 under max combination", idx, v)
		}
	}

	// Midway between the two foci, both kernels contribute; the value must
	// equal the single-kernel value at that distance, not the sum.
	mi, mj, mk := g.MMToVoxel(0, 0, 0)
	sigma := e.Sigma(20)
	expected := math.Exp(-16.0 / (2.0 * sigma * sigma)) // 4mm from either focus
	if got := resTwo.Map.At(mi, mj, mk); math.Abs(got-expected) > 1e-9 {
		t.Fatalf("midpoint value = %g, expected the max-combined %g", got, expected)
	}
}

func TestMAClipsOutOfGridFoci(t *testing.T) {
	g := testGrid(t)
	e := New(g, Config{})

	s := dataset.Study{ID: "s1", Foci: [][3]float64{{500, 500, 500}}, SampleSize: 20}
	res, err := e.MA(s)
	if err != nil {
		t.Fatalf("MA: %v", err)
	}
	if res.ClippedFoci != 1 {
		t.Fatalf("ClippedFoci = %d, expected 1", res.ClippedFoci)
	}

	// The clipped focus still contributes a full-strength peak at the
	// bounding-box corner.
	if got := res.Map.At(g.Dims[0]-1, g.Dims[1]-1, g.Dims[2]-1); math.Abs(got-1) > 1e-12 {
		t.Fatalf("corner value = %g, expected 1 from the clipped focus", got)
	}
}

func TestMARejectsInvalidStudy(t *testing.T) {
	e := New(testGrid(t), Config{})
	if _, err := e.MA(dataset.Study{ID: "bad", SampleSize: 10}); err == nil {
		t.Fatal("expected an error for a study without foci")
	}
}
