package diagnostics

import (
	"github.com/Remi-Gau/NiMARE/cluster"
	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/meta"
)

// FocusCounter counts, for each study, how many of its reported foci fall
// inside each significant cluster, tabulated per tail. It needs only the
// dataset, so it also applies to subtraction results.
type FocusCounter struct {
	Options

	// DisplaySecondGroup includes the second group's studies when the
	// result came from a two-sample analysis.
	DisplaySecondGroup bool
}

// Transform appends the cluster table and per-tail count tables to a
// clone of the result. An empty significant-cluster set yields empty
// tables, not an error.
func (f FocusCounter) Transform(r *meta.Result) (*meta.Result, error) {
	_, pos, neg, err := f.targetClusters(r)
	if err != nil {
		return nil, err
	}

	out := r.Clone()
	out.SetTable(f.TargetImage+"_tab-clust", clusterTable(r.Dataset.Grid(), pos, neg))

	studies := r.Dataset.Studies
	if f.DisplaySecondGroup && r.Dataset2 != nil {
		studies = append(append([]dataset.Study{}, studies...), r.Dataset2.Studies...)
	}

	out.SetTable(f.TargetImage+"_diag-FocusCounter_tab-counts_tail-positive", countTable(r, studies, pos))
	out.SetTable(f.TargetImage+"_diag-FocusCounter_tab-counts_tail-negative", countTable(r, studies, neg))

	return out, nil
}

func countTable(r *meta.Result, studies []dataset.Study, clusters []cluster.Cluster) meta.ContributionTable {
	g := r.Dataset.Grid()

	// Membership sets per cluster for O(1) focus lookup.
	members := make([]map[int]struct{}, len(clusters))
	for ci, c := range clusters {
		members[ci] = make(map[int]struct{}, len(c.Indices))
		for _, idx := range c.Indices {
			members[ci][idx] = struct{}{}
		}
	}

	tab := make(meta.ContributionTable, 0, len(studies)*len(clusters))
	for _, s := range studies {
		counts := make([]int, len(clusters))
		for _, focus := range s.Foci {
			i, j, k := g.MMToVoxel(focus[0], focus[1], focus[2])
			if !g.InBounds(i, j, k) {
				continue
			}

			idx := g.Index(i, j, k)
			for ci := range clusters {
				if _, in := members[ci][idx]; in {
					counts[ci]++
				}
			}
		}

		for ci, c := range clusters {
			tab = append(tab, meta.ContributionRow{
				ClusterID: c.ID,
				Tail:      c.Tail,
				StudyID:   s.ID,
				Value:     float64(counts[ci]),
			})
		}
	}

	return tab
}
