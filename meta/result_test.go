package meta

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/volume"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	g, err := volume.NewGrid([3]int{4, 4, 4}, [4][4]float64{
		{2, 0, 0, -4},
		{0, 2, 0, -4},
		{0, 0, 2, -4},
		{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatalf("building test grid: %v", err)
	}

	ds, err := dataset.New([]dataset.Study{
		{ID: "a", Foci: [][3]float64{{0, 0, 0}}, SampleSize: 10},
		{ID: "b", Foci: [][3]float64{{2, 0, 0}}, SampleSize: 12},
	}, volume.FullMask(g))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return ds
}

func TestResultMapLookup(t *testing.T) {
	r := NewResult(testDataset(t), nil)

	v := volume.New(r.Dataset.Grid())
	r.SetMap("stat", v)

	got, err := r.Map("stat")
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got != v {
		t.Fatal("Map returned a different volume than was set")
	}

	_, err = r.Map("z")
	var lookup LookupError
	if !errors.As(err, &lookup) {
		t.Fatalf("expected a LookupError, got %v", err)
	}
	if lookup.Key != "z" {
		t.Fatalf("LookupError.Key = %q, expected %q", lookup.Key, "z")
	}
	if len(lookup.Available) != 1 || lookup.Available[0] != "stat" {
		t.Fatalf("LookupError.Available = %v, expected the existing map names", lookup.Available)
	}
	if !strings.Contains(lookup.Error(), "stat") {
		t.Fatalf("error message %q does not list the available maps", lookup.Error())
	}
}

func TestResultMapNamesSorted(t *testing.T) {
	r := NewResult(testDataset(t), nil)
	for _, name := range []string{"z", "logp", "p", "stat"} {
		r.SetMap(name, volume.New(r.Dataset.Grid()))
	}

	names := r.MapNames()
	want := []string{"logp", "p", "stat", "z"}
	if len(names) != len(want) {
		t.Fatalf("MapNames() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("MapNames() = %v, expected sorted %v", names, want)
		}
	}
}

func TestResultCloneIsIndependent(t *testing.T) {
	r := NewResult(testDataset(t), nil)
	r.SetMap("stat", volume.New(r.Dataset.Grid()))
	r.SetTable("tab", ClusterTable{})
	r.Metadata["seed"] = int64(7)

	c := r.Clone()
	if c.ID == r.ID {
		t.Fatal("clone shares the original's identifier")
	}
	if c.Dataset != r.Dataset {
		t.Fatal("clone must share the dataset reference")
	}

	c.SetMap("z", volume.New(r.Dataset.Grid()))
	c.Metadata["extra"] = true

	if _, err := r.Map("z"); err == nil {
		t.Fatal("adding a map to the clone leaked into the original")
	}
	if _, ok := r.Metadata["extra"]; ok {
		t.Fatal("clone metadata writes leaked into the original")
	}
	if v, ok := c.Metadata["seed"].(int64); !ok || v != 7 {
		t.Fatal("clone did not carry the original metadata")
	}
}

func TestClusterTableCSV(t *testing.T) {
	tab := ClusterTable{
		{ClusterID: 1, Tail: "positive", PeakXmm: -2, PeakYmm: 4, PeakZmm: 0, SizeVoxels: 12, PeakStat: 0.93},
		{ClusterID: 2, Tail: "negative", PeakXmm: 6, PeakYmm: -8, PeakZmm: 2, SizeVoxels: 5, PeakStat: -0.41},
	}

	var buf bytes.Buffer
	if err := tab.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("%d CSV lines, expected a header plus 2 rows:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "cluster_id") || !strings.Contains(lines[0], "peak_x_mm") {
		t.Fatalf("unexpected CSV header %q", lines[0])
	}
	if !strings.Contains(lines[2], "negative") {
		t.Fatalf("row order not preserved:\n%s", out)
	}
}

func TestContributionTableCSV(t *testing.T) {
	tab := ContributionTable{
		{ClusterID: 1, Tail: "positive", StudyID: "smith 2019", Value: 2},
	}

	var buf bytes.Buffer
	if err := tab.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.Contains(buf.String(), "smith 2019") {
		t.Fatalf("study identifier missing from CSV:\n%s", buf.String())
	}
}
