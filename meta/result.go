// Package meta defines the terminal artifact of a meta-analysis: a
// MetaResult mapping conventional names to statistic volumes and to
// fixed-schema tables, plus the metadata describing how the null
// distribution behind them was built.
package meta

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Remi-Gau/NiMARE/dataset"
	"github.com/Remi-Gau/NiMARE/volume"
)

// LookupError reports a request for a named map or table the result does
// not carry.
type LookupError struct {
	Kind      string // "map" or "table"
	Key       string
	Available []string
}

func (e LookupError) Error() string {
	return fmt.Sprintf("no %s named %q in result (available: %v)", e.Kind, e.Key, e.Available)
}

// Estimator is the capability correctors and diagnostics need in order to
// re-enter the fitting pipeline: access to the fitted dataset, ALE
// computation over an arbitrary study set (null or leave-one-out), and
// the fitted null's right-tail p lookup.
type Estimator interface {
	Dataset() *dataset.Dataset
	ComputeALE(studies []dataset.Study) (*volume.Volume, error)
	NullPValue(stat float64) float64
}

// Metadata records analysis provenance: null method, iteration counts,
// seeds, and null-distribution summaries. Values are scalars or short
// strings so the whole set renders flat.
type Metadata map[string]interface{}

// Result is the immutable product of an estimator, corrector, or
// diagnostic run.
type Result struct {
	// ID uniquely identifies this analysis run.
	ID string

	Dataset *dataset.Dataset

	// Dataset2 is set by two-sample analyses (group 2); nil otherwise.
	Dataset2 *dataset.Dataset

	Estimator Estimator
	Metadata  Metadata

	maps   map[string]*volume.Volume
	tables map[string]Table
}

// NewResult allocates an empty result bound to its dataset and estimator.
func NewResult(ds *dataset.Dataset, est Estimator) *Result {
	return &Result{
		ID:        uuid.New().String(),
		Dataset:   ds,
		Estimator: est,
		Metadata:  make(Metadata),
		maps:      make(map[string]*volume.Volume),
		tables:    make(map[string]Table),
	}
}

// Clone returns a new result (fresh ID) carrying the same dataset,
// estimator, maps, tables, and metadata. Correctors and diagnostics build
// on a clone so the input result stays immutable.
func (r *Result) Clone() *Result {
	out := NewResult(r.Dataset, r.Estimator)
	out.Dataset2 = r.Dataset2
	for k, v := range r.maps {
		out.maps[k] = v
	}
	for k, v := range r.tables {
		out.tables[k] = v
	}
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}

	return out
}

// SetMap registers a named statistic volume.
func (r *Result) SetMap(name string, v *volume.Volume) {
	r.maps[name] = v
}

// Map fetches a named statistic volume.
func (r *Result) Map(name string) (*volume.Volume, error) {
	v, ok := r.maps[name]
	if !ok {
		return nil, LookupError{Kind: "map", Key: name, Available: r.MapNames()}
	}

	return v, nil
}

// MapNames lists registered map names, sorted.
func (r *Result) MapNames() []string {
	out := make([]string, 0, len(r.maps))
	for k := range r.maps {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// SetTable registers a named table.
func (r *Result) SetTable(name string, t Table) {
	r.tables[name] = t
}

// Table fetches a named table.
func (r *Result) Table(name string) (Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, LookupError{Kind: "table", Key: name, Available: r.TableNames()}
	}

	return t, nil
}

// TableNames lists registered table names, sorted.
func (r *Result) TableNames() []string {
	out := make([]string, 0, len(r.tables))
	for k := range r.tables {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}
