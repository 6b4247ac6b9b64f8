// Package dataset holds the study-level input to a coordinate-based
// meta-analysis: per-study activation foci in a shared template space,
// plus the fail-fast validation that guards every analysis entry point.
package dataset

import (
	"fmt"

	"github.com/Remi-Gau/NiMARE/volume"
)

// ConfigError marks invalid analysis configuration detected before any
// computation starts: too few studies, non-positive sample sizes,
// mismatched template spaces, and so on.
type ConfigError struct {
	Msg string
}

func (e ConfigError) Error() string {
	return "configuration error: " + e.Msg
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...interface{}) error {
	return ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Study is one published experiment: its reported activation foci in
// millimeter coordinates and the subject count behind them. Studies are
// value types and are never mutated after construction.
type Study struct {
	ID         string
	Foci       [][3]float64
	SampleSize int
}

// Validate applies the per-study fail-fast rules.
func (s Study) Validate() error {
	if s.ID == "" {
		return Configf("study with empty identifier")
	}
	if s.SampleSize <= 0 {
		return Configf("study %q has non-positive sample size %d", s.ID, s.SampleSize)
	}
	if len(s.Foci) == 0 {
		return Configf("study %q reports no coordinates", s.ID)
	}

	return nil
}

// Dataset is an ordered collection of unique studies sharing one template
// grid and mask.
type Dataset struct {
	Studies []Study
	Mask    *volume.Mask
}

// New validates and assembles a dataset. The mask carries the template
// grid; every study's foci are interpreted in that space.
func New(studies []Study, mask *volume.Mask) (*Dataset, error) {
	if mask == nil {
		return nil, Configf("dataset requires a template mask")
	}

	seen := make(map[string]struct{}, len(studies))
	for _, s := range studies {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[s.ID]; dup {
			return nil, Configf("duplicate study identifier %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	return &Dataset{Studies: studies, Mask: mask}, nil
}

// Grid returns the shared template grid.
func (d *Dataset) Grid() volume.Grid {
	return d.Mask.Grid
}

// NumStudies is the study count.
func (d *Dataset) NumStudies() int {
	return len(d.Studies)
}

// ValidateForMeta applies the within-sample analysis preconditions.
func (d *Dataset) ValidateForMeta() error {
	if d.NumStudies() < 2 {
		return Configf("within-sample analysis requires at least 2 studies, got %d", d.NumStudies())
	}

	return nil
}

// WithoutStudy returns a shallow dataset copy that excludes the named
// study. Used by leave-one-out diagnostics.
func (d *Dataset) WithoutStudy(id string) *Dataset {
	kept := make([]Study, 0, len(d.Studies))
	for _, s := range d.Studies {
		if s.ID != id {
			kept = append(kept, s)
		}
	}

	return &Dataset{Studies: kept, Mask: d.Mask}
}
