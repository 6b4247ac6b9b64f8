package meta

import (
	"io"

	"github.com/gocarina/gocsv"
)

// Table is an ordered sequence of fixed-schema rows renderable as CSV.
type Table interface {
	Len() int
	WriteCSV(w io.Writer) error
}

// ClusterRow summarizes one significant cluster.
type ClusterRow struct {
	ClusterID  int     `csv:"cluster_id"`
	Tail       string  `csv:"tail"`
	PeakXmm    float64 `csv:"peak_x_mm"`
	PeakYmm    float64 `csv:"peak_y_mm"`
	PeakZmm    float64 `csv:"peak_z_mm"`
	SizeVoxels int     `csv:"size_voxels"`
	PeakStat   float64 `csv:"peak_stat"`
}

// ClusterTable lists the clusters of one thresholded map.
type ClusterTable []ClusterRow

func (t ClusterTable) Len() int {
	return len(t)
}

func (t ClusterTable) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(&t, w)
}

// ContributionRow is one study's diagnostic value for one cluster:
// a jackknife statistic drop or a focus count.
type ContributionRow struct {
	ClusterID int     `csv:"cluster_id"`
	Tail      string  `csv:"tail"`
	StudyID   string  `csv:"study_id"`
	Value     float64 `csv:"value"`
}

// ContributionTable holds per-study per-cluster diagnostic values.
type ContributionTable []ContributionRow

func (t ContributionTable) Len() int {
	return len(t)
}

func (t ContributionTable) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(&t, w)
}
