package config

import (
	"fmt"
	"time"

	"github.com/roach88/sortline/internal/correlate"
	"github.com/roach88/sortline/internal/grading"
	"github.com/roach88/sortline/internal/plc"
)

// Config is the decoded line configuration. Field tags mirror the YAML
// schema in schema.cue.
type Config struct {
	PLC       PLCConfig       `yaml:"plc"`
	Cycle     CycleConfig     `yaml:"cycle"`
	Sorting   SortingConfig   `yaml:"sorting"`
	Detectors DetectorsConfig `yaml:"detectors"`
	Store     StoreConfig     `yaml:"store"`
}

// PLCConfig addresses the line's field controller.
type PLCConfig struct {
	Addr      string          `yaml:"addr"`
	UnitID    int             `yaml:"unit_id"`
	TimeoutMS int             `yaml:"timeout_ms"`
	Registers RegistersConfig `yaml:"registers"`
}

// RegistersConfig is the controller's register layout.
type RegistersConfig struct {
	Control         uint16            `yaml:"control"`
	Status          uint16            `yaml:"status"`
	Counter         uint16            `yaml:"counter"`
	SlotsPerChannel int               `yaml:"slots_per_channel"`
	Channels        map[string]uint16 `yaml:"channels"`
}

// CycleConfig times the decision loop.
type CycleConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// SortingConfig selects and parameterizes the grading mode.
type SortingConfig struct {
	Mode         string              `yaml:"mode"`
	WeightRanges []WeightRangeConfig `yaml:"weight_ranges"`
	Template     *TemplateConfig     `yaml:"template"`
	Offsets      map[string]int      `yaml:"offsets"`
}

// WeightRangeConfig is one band of the weight-only table.
type WeightRangeConfig struct {
	Min  int32  `yaml:"min"`
	Max  int32  `yaml:"max"`
	Lane uint16 `yaml:"lane"`
}

// TemplateConfig is the YAML shape of a decision template.
type TemplateConfig struct {
	ID            string                   `yaml:"id"`
	Profiles      map[string]ProfileConfig `yaml:"profiles"`
	ScoresEnabled bool                     `yaml:"scores_enabled"`
	Scores        []ScoreConfig            `yaml:"scores"`
}

// ProfileConfig is one sensor's rule set.
type ProfileConfig struct {
	Weight int          `yaml:"weight"`
	Max    int32        `yaml:"max"`
	Reject []BandConfig `yaml:"reject"`
	Accept []BandConfig `yaml:"accept"`
}

// BandConfig is an inclusive value range mapped to a lane pair.
type BandConfig struct {
	Min   int32       `yaml:"min"`
	Max   int32       `yaml:"max"`
	Lanes LanesConfig `yaml:"lanes"`
}

// LanesConfig names a primary lane and its alternate. A zero alternate
// means the primary serves alone.
type LanesConfig struct {
	Primary   uint16 `yaml:"primary"`
	Alternate uint16 `yaml:"alternate"`
}

// ScoreConfig maps a composite-score threshold to a lane pair.
type ScoreConfig struct {
	Threshold float64     `yaml:"threshold"`
	Lanes     LanesConfig `yaml:"lanes"`
}

// DetectorsConfig wires the sensor collaborators.
type DetectorsConfig struct {
	Analyzers []AnalyzerConfig `yaml:"analyzers"`
	Pulse     *PulseConfig     `yaml:"pulse"`
}

// AnalyzerConfig addresses one internal-quality analyzer device.
type AnalyzerConfig struct {
	Name   string `yaml:"name"`
	Line   string `yaml:"line"`
	Addr   string `yaml:"addr"`
	UnitID int    `yaml:"unit_id"`
	PollMS int    `yaml:"poll_ms"`
}

// PulseConfig locates the item pulse bit on the controller's status
// register.
type PulseConfig struct {
	Bit      uint `yaml:"bit"`
	SampleMS int  `yaml:"sample_ms"`
}

// StoreConfig locates the sorting log database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Timeout returns the per-request controller deadline.
func (c *PLCConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return plc.DefaultTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Interval returns the decision loop period.
func (c *CycleConfig) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// RegisterMap converts the register section into a validated domain map.
func (c *Config) RegisterMap() (*plc.RegisterMap, error) {
	m := &plc.RegisterMap{
		ControlRegister: c.PLC.Registers.Control,
		StatusRegister:  c.PLC.Registers.Status,
		CounterRegister: c.PLC.Registers.Counter,
		SlotsPerChannel: c.PLC.Registers.SlotsPerChannel,
		Channels:        c.PLC.Registers.Channels,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// RangeTable converts the weight range section. Required in "ranges"
// mode, optional otherwise.
func (c *Config) RangeTable() (*grading.RangeTable, error) {
	if len(c.Sorting.WeightRanges) == 0 {
		if c.Sorting.Mode == "ranges" {
			return nil, fmt.Errorf("config: mode %q requires weight_ranges", c.Sorting.Mode)
		}
		return nil, nil
	}
	ranges := make([]grading.WeightRange, len(c.Sorting.WeightRanges))
	for i, r := range c.Sorting.WeightRanges {
		if r.Min > r.Max {
			return nil, fmt.Errorf("config: weight range %d: min %d above max %d", i, r.Min, r.Max)
		}
		ranges[i] = grading.WeightRange{Min: r.Min, Max: r.Max, Grade: r.Lane}
	}
	return grading.NewRangeTable(ranges), nil
}

// Template converts and validates the template section. Required in
// "template" mode, optional otherwise.
func (c *Config) Template() (*grading.Template, error) {
	tc := c.Sorting.Template
	if tc == nil {
		if c.Sorting.Mode == "template" {
			return nil, fmt.Errorf("config: mode %q requires a template", c.Sorting.Mode)
		}
		return nil, nil
	}

	tpl := &grading.Template{
		ID:            tc.ID,
		Profiles:      make(map[grading.Role]grading.Profile, len(tc.Profiles)),
		ScoresEnabled: tc.ScoresEnabled,
	}
	for name, pc := range tc.Profiles {
		role, err := parseRole(name)
		if err != nil {
			return nil, err
		}
		tpl.Profiles[role] = grading.Profile{
			Weight: pc.Weight,
			Max:    pc.Max,
			Reject: convertBands(pc.Reject),
			Accept: convertBands(pc.Accept),
		}
	}
	for _, sc := range tc.Scores {
		tpl.Scores = append(tpl.Scores, grading.ScoreEntry{
			Threshold: sc.Threshold,
			Lanes:     sc.Lanes.pair(),
		})
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Offsets converts the per-role alignment offsets. Required in
// "template" mode.
func (c *Config) Offsets() (map[grading.Role]int, error) {
	if len(c.Sorting.Offsets) == 0 {
		if c.Sorting.Mode == "template" {
			return nil, fmt.Errorf("config: mode %q requires alignment offsets", c.Sorting.Mode)
		}
		return nil, nil
	}
	out := make(map[grading.Role]int, len(c.Sorting.Offsets))
	for name, off := range c.Sorting.Offsets {
		role, err := parseRole(name)
		if err != nil {
			return nil, err
		}
		out[role] = off
	}
	if err := correlate.ValidateOffsets(out); err != nil {
		return nil, err
	}
	return out, nil
}

// pair widens the YAML lane shape. An omitted alternate falls back to
// the primary so second parity has no effect.
func (l LanesConfig) pair() grading.LanePair {
	alt := l.Alternate
	if alt == 0 {
		alt = l.Primary
	}
	return grading.LanePair{Primary: l.Primary, Alternate: alt}
}

func convertBands(bands []BandConfig) []grading.Band {
	out := make([]grading.Band, len(bands))
	for i, b := range bands {
		out[i] = grading.Band{Min: b.Min, Max: b.Max, Lanes: b.Lanes.pair()}
	}
	return out
}

func parseRole(name string) (grading.Role, error) {
	switch name {
	case "weight":
		return grading.RoleWeight, nil
	case "content":
		return grading.RoleContent, nil
	default:
		return 0, fmt.Errorf("config: unknown sensor role %q", name)
	}
}
