// Package kernel converts a study's reported foci into a modeled
// activation (MA) map: a Gaussian is centered at each focus, its width a
// function of the study's sample size, and overlapping kernels within one
// study combine by voxelwise maximum so a study contributes at most its
// strongest local evidence at any voxel.
package kernel

import (
	"math"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/volume"
)

// fwhmToSigma converts a full width at half maximum to a Gaussian sigma.
var fwhmToSigma = 1.0 / math.Sqrt(8.0*math.Ln2)

// EickhoffFWHM is the empirical mapping from sample size to kernel FWHM in
// millimeters: a fixed between-template smoothing term combined in
// quadrature with a between-subject term that shrinks as 1/sqrt(N), so
// larger studies get tighter kernels.
func EickhoffFWHM(sampleSize int) float64 {
	k := 2.0 * math.Sqrt(2.0/math.Pi) // half-normal mean factor

	template := 5.7 / k * math.Sqrt(8.0*math.Ln2)
	subject := 11.6 / k * math.Sqrt(8.0*math.Ln2) / math.Sqrt(float64(sampleSize))

	return math.Sqrt(template*template + subject*subject)
}

// Config controls kernel construction. The sample-size model and the
// evaluation cutoff are injectable; the zero value selects the defaults.
type Config struct {
	// FWHM maps a study sample size to a kernel FWHM in mm.
	// Nil selects EickhoffFWHM.
	FWHM func(sampleSize int) float64

	// CutoffValue truncates kernel evaluation where the Gaussian falls
	// below this value. Zero selects 1e-6.
	CutoffValue float64
}

func (c Config) fwhm(n int) float64 {
	if c.FWHM != nil {
		return c.FWHM(n)
	}

	return EickhoffFWHM(n)
}

func (c Config) cutoff() float64 {
	if c.CutoffValue > 0 {
		return c.CutoffValue
	}

	return 1e-6
}

// Estimator places ALE kernels on a template grid.
type Estimator struct {
	cfg  Config
	grid volume.Grid

	// voxel edge lengths in mm per axis, derived from the affine
	spacing [3]float64
}

// New builds a kernel estimator for one template grid.
func New(grid volume.Grid, cfg Config) *Estimator {
	e := &Estimator{cfg: cfg, grid: grid}
	for axis := 0; axis < 3; axis++ {
		dx := grid.Affine[0][axis]
		dy := grid.Affine[1][axis]
		dz := grid.Affine[2][axis]
		e.spacing[axis] = math.Sqrt(dx*dx + dy*dy + dz*dz)
	}

	return e
}

// MAResult is one study's modeled activation map plus the count of foci
// that fell outside the template bounding box and were clipped to it.
type MAResult struct {
	Map         *volume.Volume
	ClippedFoci int
}

// MA computes the study's modeled activation map. Values lie in [0, 1]
// with 1 at each focus voxel. Foci outside the grid are clipped to the
// bounding box and counted, never silently dropped.
func (e *Estimator) MA(s dataset.Study) (MAResult, error) {
	if err := s.Validate(); err != nil {
		return MAResult{}, err
	}

	sigma := e.cfg.fwhm(s.SampleSize) * fwhmToSigma
	// radius (mm) beyond which the kernel is below the cutoff
	radius := sigma * math.Sqrt(-2.0*math.Log(e.cfg.cutoff()))

	out := volume.New(e.grid)
	clipped := 0

	for _, f := range s.Foci {
		ci, cj, ck := e.grid.MMToVoxel(f[0], f[1], f[2])
		var wasClipped bool
		ci, cj, ck, wasClipped = e.grid.Clip(ci, cj, ck)
		if wasClipped {
			clipped++
		}

		// Evaluate the kernel against the clipped focus voxel center so
		// that every focus contributes a value of exactly 1 somewhere
		// inside the grid.
		fx, fy, fz := e.grid.VoxelToMM(ci, cj, ck)

		ri := int(math.Ceil(radius / e.spacing[0]))
		rj := int(math.Ceil(radius / e.spacing[1]))
		rk := int(math.Ceil(radius / e.spacing[2]))

		for k := ck - rk; k <= ck+rk; k++ {
			for j := cj - rj; j <= cj+rj; j++ {
				for i := ci - ri; i <= ci+ri; i++ {
					if !e.grid.InBounds(i, j, k) {
						continue
					}

					x, y, z := e.grid.VoxelToMM(i, j, k)
					dx, dy, dz := x-fx, y-fy, z-fz
					d2 := dx*dx + dy*dy + dz*dz

					val := math.Exp(-d2 / (2.0 * sigma * sigma))
					if val < e.cfg.cutoff() {
						continue
					}

					idx := e.grid.Index(i, j, k)
					if val > out.Data[idx] {
						out.Data[idx] = val
					}
				}
			}
		}
	}

	return MAResult{Map: out, ClippedFoci: clipped}, nil
}

// Sigma exposes the kernel sigma (mm) for a sample size, mostly for
// reporting and tests.
func (e *Estimator) Sigma(sampleSize int) float64 {
	return e.cfg.fwhm(sampleSize) * fwhmToSigma
}
