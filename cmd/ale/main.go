// ale runs a coordinate-based meta-analysis over a Sleuth text file:
// kernel convolution, ALE statistic, null calibration, optional
// multiple-comparisons correction, and optional cluster diagnostics.
// Statistic maps are emitted as PNG slice stacks and tables as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"runtime"

	"github.com/aybabtme/uniplot/histogram"
	"gopkg.in/guregu/null.v3"

	"github.com/Remi-Gau/NiMARE/ale"
	"github.com/Remi-Gau/NiMARE/correct"
	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/diagnostics"
	"github.com/Remi-Gau/NiMARE/imageio"
	"github.com/Remi-Gau/NiMARE/permute"
	"github.com/Remi-Gau/NiMARE/sleuth"
	"github.com/Remi-Gau/NiMARE/volume"
)

func main() {
	var (
		sleuthFile  string
		maskFile    string
		outDir      string
		nullMethod  string
		corrector   string
		diag        string
		target      string
		nIters      int
		nCores      int
		seed        int64
		voxelThresh float64
		diagThresh  float64
	)

	flag.StringVar(&sleuthFile, "sleuth", "", "Filename of a Sleuth text file with the study coordinates.")
	flag.StringVar(&maskFile, "mask", "", "Optional. Filename of a NIfTI brain mask on the 2mm MNI152 grid. If unset, every grid voxel is analyzed.")
	flag.StringVar(&outDir, "out", "", "Name of folder where PNG map stacks and CSV tables will be emitted.")
	flag.StringVar(&nullMethod, "null", ale.NullApproximate, "Null calibration: 'approximate' or 'montecarlo'.")
	flag.StringVar(&corrector, "correct", "fwe", "Multiple-comparisons correction: 'fwe', 'fdr-indep', 'fdr-negcorr', or 'none'.")
	flag.StringVar(&diag, "diagnostics", "", "Optional. Cluster diagnostics: 'jackknife' or 'focuscounter'.")
	flag.StringVar(&target, "target", "", "Map name the diagnostics operate on. Defaults to the cluster-size FWE z map when --correct=fwe, else 'z'.")
	flag.IntVar(&nIters, "niters", 10000, "Monte Carlo iteration count for the montecarlo null and the FWE corrector.")
	flag.IntVar(&nCores, "ncores", runtime.NumCPU(), "Worker count. Results are identical for any value.")
	flag.Int64Var(&seed, "seed", 0, "Base RNG seed. The same seed reproduces the run exactly.")
	flag.Float64Var(&voxelThresh, "voxelthresh", 0.001, "Cluster-forming threshold for FWE correction, as an uncorrected p-value.")
	flag.Float64Var(&diagThresh, "diagthresh", math.NaN(), "Optional. Re-threshold the diagnostics target map at this value before cluster extraction.")
	flag.Parse()

	if sleuthFile == "" || outDir == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(sleuthFile, maskFile, outDir, nullMethod, corrector, diag, target,
		nIters, nCores, seed, voxelThresh, diagThresh); err != nil {
		log.Fatalln(err)
	}
}

func run(sleuthFile, maskFile, outDir, nullMethod, corrector, diag, target string,
	nIters, nCores int, seed int64, voxelThresh, diagThresh float64) error {

	ctx := context.Background()
	grid := volume.MNI152()

	mask := volume.FullMask(grid)
	if maskFile != "" {
		var err error
		mask, err = imageio.LoadMask(maskFile, grid)
		if err != nil {
			return err
		}
		log.Printf("mask %s restricts the analysis to %d of %d voxels", maskFile, mask.NumIn(), grid.NumVoxels())
	}

	sf, err := sleuth.Read(sleuthFile)
	if err != nil {
		return err
	}
	log.Printf("loaded %d studies from %s (reference space %q)", len(sf.Studies), sleuthFile, sf.Space)

	ds, err := dataset.New(sf.Studies, mask)
	if err != nil {
		return err
	}

	est, err := ale.New(ale.Config{
		NullMethod: nullMethod,
		NIters:     nIters,
		NCores:     nCores,
		Seed:       seed,
	})
	if err != nil {
		return err
	}

	res, err := est.Fit(ctx, ds)
	if err = toleratePartial(err); err != nil {
		return err
	}

	switch corrector {
	case "fwe":
		res, err = correct.FWE{
			VoxelThresh: voxelThresh,
			NIters:      nIters,
			NCores:      nCores,
			Seed:        seed,
		}.Transform(ctx, res)
	case "fdr-indep":
		res, err = correct.FDR{Method: correct.FDRIndep}.Transform(res)
	case "fdr-negcorr":
		res, err = correct.FDR{Method: correct.FDRNegCorr}.Transform(res)
	case "none":
	default:
		return fmt.Errorf("unknown correction %q", corrector)
	}
	if err = toleratePartial(err); err != nil {
		return err
	}

	if target == "" {
		target = "z"
		if corrector == "fwe" {
			target = "z_desc-size_level-cluster_corr-FWE_method-montecarlo"
		}
	}

	opts := diagnostics.Options{TargetImage: target}
	if !math.IsNaN(diagThresh) {
		opts.VoxelThresh = null.FloatFrom(diagThresh)
	}

	switch diag {
	case "jackknife":
		res, err = diagnostics.Jackknife{Options: opts}.Transform(ctx, res)
	case "focuscounter":
		res, err = diagnostics.FocusCounter{Options: opts}.Transform(res)
	case "":
	default:
		return fmt.Errorf("unknown diagnostics %q", diag)
	}
	if err != nil {
		return err
	}

	if nullMax, ok := res.Metadata["fwe_null_max"].([]float64); ok {
		fmt.Println("Null distribution of the maximum ALE statistic:")
		hist := histogram.Hist(25, nullMax)
		if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(40)); err != nil {
			return err
		}
	}

	return imageio.WriteResult(res, outDir)
}

// toleratePartial downgrades a cancelled-but-usable Monte Carlo run to a
// warning; any other error is fatal.
func toleratePartial(err error) error {
	var partial permute.PartialError
	if err != nil && errors.As(err, &partial) {
		log.Printf("warning: %v; maps reflect the completed iterations only", partial)
		return nil
	}

	return err
}
