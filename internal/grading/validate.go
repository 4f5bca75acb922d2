package grading

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid or degenerate template configuration.
// Raised at configuration-load time only: a template that validated once
// cannot fail at evaluation time.
type ConfigError struct {
	TemplateID string
	Field      string
	Message    string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("template %s: %s: %s", e.TemplateID, e.Field, e.Message)
}

// IsConfigError reports whether err is a template configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func (t *Template) configError(field, format string, args ...any) *ConfigError {
	return &ConfigError{TemplateID: t.ID, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the template's structural invariants:
//
//   - composite scoring requires non-zero normalizers on both profiles
//     (a zero Max would divide by zero at evaluation time)
//   - score-table thresholds strictly decreasing in scan order
//   - no duplicate lane ids within one score table or band list
//   - bands well-formed (Min <= Max)
//   - without composite scoring, exactly one dominant profile
//
// A template that fails validation must be discarded; the previously
// active configuration stays in force.
func (t *Template) Validate() error {
	if t.ID == "" {
		return t.configError("id", "template id must not be empty")
	}

	for role, profile := range t.Profiles {
		if profile.Weight < 0 || profile.Weight > DominantWeight {
			return t.configError(role.String()+".weight", "weight factor %d out of range [0,%d]", profile.Weight, DominantWeight)
		}
		if err := t.validateBands(role.String()+".reject", profile.Reject); err != nil {
			return err
		}
		if err := t.validateBands(role.String()+".accept", profile.Accept); err != nil {
			return err
		}
	}

	if t.ScoresEnabled {
		return t.validateScores()
	}
	return t.validateDominant()
}

func (t *Template) validateScores() error {
	for role, profile := range t.Profiles {
		if profile.Max == 0 {
			return t.configError(role.String()+".max", "normalizer must be non-zero when composite scoring is enabled")
		}
	}
	if len(t.Scores) == 0 {
		return t.configError("scores", "composite scoring enabled but no score entries configured")
	}

	seen := make(map[uint16]bool)
	for i, entry := range t.Scores {
		if i > 0 && entry.Threshold >= t.Scores[i-1].Threshold {
			return t.configError("scores", "thresholds must be strictly decreasing in scan order: entry %d (%.2f) >= entry %d (%.2f)",
				i, entry.Threshold, i-1, t.Scores[i-1].Threshold)
		}
		for _, lane := range []uint16{entry.Lanes.Primary, entry.Lanes.Alternate} {
			if seen[lane] {
				return t.configError("scores", "duplicate lane id %d", lane)
			}
			seen[lane] = true
		}
	}
	return nil
}

func (t *Template) validateDominant() error {
	dominant := 0
	for _, profile := range t.Profiles {
		if profile.Weight == DominantWeight {
			dominant++
		}
	}
	if dominant != 1 {
		return t.configError("profiles", "composite scoring disabled: exactly one profile must carry weight factor %d, found %d", DominantWeight, dominant)
	}
	return nil
}

func (t *Template) validateBands(field string, bands []Band) error {
	seen := make(map[uint16]bool)
	for i, band := range bands {
		if band.Min > band.Max {
			return t.configError(field, "band %d: min %d greater than max %d", i, band.Min, band.Max)
		}
		if seen[band.Lanes.Primary] {
			return t.configError(field, "duplicate lane id %d", band.Lanes.Primary)
		}
		seen[band.Lanes.Primary] = true
		if band.Lanes.Alternate != 0 && band.Lanes.Alternate != band.Lanes.Primary {
			if seen[band.Lanes.Alternate] {
				return t.configError(field, "duplicate lane id %d", band.Lanes.Alternate)
			}
			seen[band.Lanes.Alternate] = true
		}
	}
	return nil
}
