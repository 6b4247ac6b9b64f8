// alesubtract contrasts two groups of studies from two Sleuth text files.
// It fits an ALE meta-analysis per group, runs the permutation
// subtraction test between them, and renders the conjunction of the two
// FWE-corrected group maps.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Remi-Gau/NiMARE/ale"
	"github.com/Remi-Gau/NiMARE/correct"
	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/diagnostics"
	"github.com/Remi-Gau/NiMARE/imageio"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/permute"
	"github.com/Remi-Gau/NiMARE/sleuth"
	"github.com/Remi-Gau/NiMARE/volume"
)

// conjunctionTarget is the per-group corrected map the conjunction is
// computed over.
const conjunctionTarget = "z_desc-size_level-cluster_corr-FWE_method-montecarlo"

func main() {
	var (
		sleuthFile1 string
		sleuthFile2 string
		maskFile    string
		outDir      string
		nIters      int
		nCores      int
		seed        int64
		voxelThresh float64
		maxStat     bool
	)

	flag.StringVar(&sleuthFile1, "sleuth1", "", "Filename of the first group's Sleuth text file.")
	flag.StringVar(&sleuthFile2, "sleuth2", "", "Filename of the second group's Sleuth text file.")
	flag.StringVar(&maskFile, "mask", "", "Optional. Filename of a NIfTI brain mask on the 2mm MNI152 grid.")
	flag.StringVar(&outDir, "out", "", "Name of folder where PNG map stacks and CSV tables will be emitted.")
	flag.IntVar(&nIters, "niters", 10000, "Permutation count for the subtraction null and the per-group FWE correction.")
	flag.IntVar(&nCores, "ncores", runtime.NumCPU(), "Worker count. Results are identical for any value.")
	flag.Int64Var(&seed, "seed", 0, "Base RNG seed. The same seed reproduces the run exactly.")
	flag.Float64Var(&voxelThresh, "voxelthresh", 0.001, "Cluster-forming threshold for the per-group FWE correction, as an uncorrected p-value.")
	flag.BoolVar(&maxStat, "maxstat", false, "Use the max-statistic subtraction null instead of the voxelwise null.")
	flag.Parse()

	if sleuthFile1 == "" || sleuthFile2 == "" || outDir == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(sleuthFile1, sleuthFile2, maskFile, outDir, nIters, nCores, seed, voxelThresh, maxStat); err != nil {
		log.Fatalln(err)
	}
}

func run(sleuthFile1, sleuthFile2, maskFile, outDir string, nIters, nCores int, seed int64, voxelThresh float64, maxStat bool) error {
	ctx := context.Background()
	grid := volume.MNI152()

	mask := volume.FullMask(grid)
	if maskFile != "" {
		var err error
		mask, err = imageio.LoadMask(maskFile, grid)
		if err != nil {
			return err
		}
	}

	dsA, err := readGroup(sleuthFile1, mask)
	if err != nil {
		return err
	}
	dsB, err := readGroup(sleuthFile2, mask)
	if err != nil {
		return err
	}

	// Per-group corrected maps, for the conjunction.
	corrA, err := fitGroup(ctx, dsA, nIters, nCores, seed, voxelThresh)
	if err != nil {
		return err
	}
	corrB, err := fitGroup(ctx, dsB, nIters, nCores, seed, voxelThresh)
	if err != nil {
		return err
	}

	zA, err := corrA.Map(conjunctionTarget)
	if err != nil {
		return err
	}
	zB, err := corrB.Map(conjunctionTarget)
	if err != nil {
		return err
	}
	conj, err := volume.Conjunction(zA, zB)
	if err != nil {
		return err
	}

	// The subtraction test itself.
	sub := ale.Subtraction{
		NIters:  nIters,
		NCores:  nCores,
		Seed:    seed,
		MaxStat: maxStat,
	}
	res, err := sub.Fit(ctx, dsA, dsB)
	if err = toleratePartial(err); err != nil {
		return err
	}

	res, err = diagnostics.FocusCounter{
		Options:            diagnostics.Options{TargetImage: "z_desc-group1MinusGroup2"},
		DisplaySecondGroup: true,
	}.Transform(res)
	if err != nil {
		return err
	}

	if err := imageio.WriteResult(corrA, filepath.Join(outDir, "group1")); err != nil {
		return err
	}
	if err := imageio.WriteResult(corrB, filepath.Join(outDir, "group2")); err != nil {
		return err
	}
	if err := imageio.WriteStack(conj, filepath.Join(outDir, "maps", "z_desc-conjunction"), "z_desc-conjunction"); err != nil {
		return err
	}

	return imageio.WriteResult(res, outDir)
}

func readGroup(fileName string, mask *volume.Mask) (*dataset.Dataset, error) {
	sf, err := sleuth.Read(fileName)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d studies from %s (reference space %q)", len(sf.Studies), fileName, sf.Space)

	return dataset.New(sf.Studies, mask)
}

// fitGroup runs the single-sample pipeline plus FWE correction for one
// group.
func fitGroup(ctx context.Context, ds *dataset.Dataset, nIters, nCores int, seed int64, voxelThresh float64) (*meta.Result, error) {
	est, err := ale.New(ale.Config{})
	if err != nil {
		return nil, err
	}

	res, err := est.Fit(ctx, ds)
	if err != nil {
		return nil, err
	}

	res, err = correct.FWE{
		VoxelThresh: voxelThresh,
		NIters:      nIters,
		NCores:      nCores,
		Seed:        seed,
	}.Transform(ctx, res)
	if err = toleratePartial(err); err != nil {
		return nil, err
	}

	return res, nil
}

func toleratePartial(err error) error {
	var partial permute.PartialError
	if err != nil && errors.As(err, &partial) {
		log.Printf("warning: %v; maps reflect the completed iterations only", partial)
		return nil
	}

	return err
}
