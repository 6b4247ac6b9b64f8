// Package diagnostics attributes significant clusters back to the
// studies that drive them, either by leave-one-out reanalysis (Jackknife)
// or by counting each study's reported foci inside each cluster
// (FocusCounter).
package diagnostics

import (
	"gopkg.in/guregu/null.v3"

	"github.com/Remi-Gau/NiMARE/cluster"
	"github.com/Remi-Gau/NiMARE/meta"
	"github.com/Remi-Gau/NiMARE/volume"
)

// Options shared by the diagnostic strategies.
type Options struct {
	// TargetImage names the corrected map to diagnose, e.g.
	// "z_desc-size_level-cluster_corr-FWE_method-montecarlo".
	TargetImage string

	// VoxelThresh optionally re-thresholds the target map (in the map's
	// own units) before cluster extraction. Invalid (null) means the
	// map's nonzero voxels define the clusters.
	VoxelThresh null.Float

	// Connectivity defaults to 26-neighbor.
	Connectivity cluster.Connectivity
}

func (o Options) thresh() float64 {
	if o.VoxelThresh.Valid {
		return o.VoxelThresh.Float64
	}

	return 0
}

func (o Options) connectivity() cluster.Connectivity {
	if o.Connectivity == 0 {
		return cluster.Corners
	}

	return o.Connectivity
}

// targetClusters fetches the target map and extracts its per-tail
// clusters. A missing map surfaces as a meta.LookupError.
func (o Options) targetClusters(r *meta.Result) (*volume.Volume, []cluster.Cluster, []cluster.Cluster, error) {
	target, err := r.Map(o.TargetImage)
	if err != nil {
		return nil, nil, nil, err
	}

	pos, neg := cluster.ExtractTails(target, r.Dataset.Mask, o.thresh(), o.connectivity())

	return target, pos, neg, nil
}

// clusterTable summarizes the extracted clusters of both tails.
func clusterTable(g volume.Grid, pos, neg []cluster.Cluster) meta.ClusterTable {
	t := make(meta.ClusterTable, 0, len(pos)+len(neg))
	for _, group := range [][]cluster.Cluster{pos, neg} {
		for _, c := range group {
			i, j, k := g.Voxel(c.PeakIndex)
			x, y, z := g.VoxelToMM(i, j, k)

			t = append(t, meta.ClusterRow{
				ClusterID:  c.ID,
				Tail:       c.Tail,
				PeakXmm:    x,
				PeakYmm:    y,
				PeakZmm:    z,
				SizeVoxels: c.Size,
				PeakStat:   c.Peak,
			})
		}
	}

	return t
}
