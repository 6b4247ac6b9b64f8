package diagnostics

import (
	"context"

	"github.com/carbocation/pfx"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/meta"
)

// Jackknife measures each study's contribution to each significant
// cluster: the ALE statistic is recomputed with that study excluded, and
// the drop at the cluster's peak voxel is tabulated. Excluding zero
// studies reproduces the full-sample statistic exactly.
type Jackknife struct {
	Options
}

// Transform appends the cluster table and per-tail contribution tables to
// a clone of the result.
func (j Jackknife) Transform(ctx context.Context, r *meta.Result) (*meta.Result, error) {
	if r.Estimator == nil {
		return nil, dataset.Configf("jackknife requires an estimator-backed result")
	}

	_, pos, neg, err := j.targetClusters(r)
	if err != nil {
		return nil, err
	}

	out := r.Clone()
	out.SetTable(j.TargetImage+"_tab-clust", clusterTable(r.Dataset.Grid(), pos, neg))

	ds := r.Dataset
	full, err := r.Estimator.ComputeALE(ds.Studies)
	if err != nil {
		return nil, pfx.Err(err)
	}

	posTab := make(meta.ContributionTable, 0, len(pos)*ds.NumStudies())
	negTab := make(meta.ContributionTable, 0, len(neg)*ds.NumStudies())

	for _, s := range ds.Studies {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		loo, err := r.Estimator.ComputeALE(ds.WithoutStudy(s.ID).Studies)
		if err != nil {
			return nil, pfx.Err(err)
		}

		for _, c := range pos {
			posTab = append(posTab, meta.ContributionRow{
				ClusterID: c.ID,
				Tail:      c.Tail,
				StudyID:   s.ID,
				Value:     full.Data[c.PeakIndex] - loo.Data[c.PeakIndex],
			})
		}
		for _, c := range neg {
			negTab = append(negTab, meta.ContributionRow{
				ClusterID: c.ID,
				Tail:      c.Tail,
				StudyID:   s.ID,
				Value:     full.Data[c.PeakIndex] - loo.Data[c.PeakIndex],
			})
		}
	}

	out.SetTable(j.TargetImage+"_diag-Jackknife_tab-counts_tail-positive", posTab)
	out.SetTable(j.TargetImage+"_diag-Jackknife_tab-counts_tail-negative", negTab)

	return out, nil
}
