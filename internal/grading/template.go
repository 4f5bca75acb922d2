package grading

import "time"

// Role identifies a sensor stream's place in a template.
type Role int

const (
	// RoleWeight is the checkweigher reading (grams).
	RoleWeight Role = iota
	// RoleContent is the internal-quality analyzer reading (for this line,
	// sugar content in tenths of a degree Brix).
	RoleContent
)

// String returns the configuration-facing role name.
func (r Role) String() string {
	switch r {
	case RoleWeight:
		return "weight"
	case RoleContent:
		return "content"
	default:
		return "unknown"
	}
}

// DominantWeight is the weight factor marking a profile as the sole
// decider when composite scoring is disabled.
const DominantWeight = 100

// LanePair names the duplicate physical lanes serving one grade.
type LanePair struct {
	Primary   uint16
	Alternate uint16
}

// Band is an inclusive [Min,Max] value range mapped to a lane pair.
// Reject bands only ever use the primary lane.
type Band struct {
	Min   int32
	Max   int32
	Lanes LanePair
}

// contains reports whether v falls inside the band.
func (b Band) contains(v int32) bool {
	return b.Min <= v && v <= b.Max
}

// Profile is one sensor's rule set within a template.
type Profile struct {
	// Weight is the sensor's factor in composite scoring, 0..100.
	Weight int

	// Max is the normalization divisor for composite scoring. Validated
	// non-zero whenever composite scoring is enabled.
	Max int32

	// Reject bands are checked first and short-circuit everything else.
	Reject []Band

	// Accept bands decide the lane when this profile is dominant.
	Accept []Band
}

// ScoreEntry maps a composite-score threshold to a lane pair.
type ScoreEntry struct {
	Threshold float64
	Lanes     LanePair
}

// Template is an immutable, validated rule set.
type Template struct {
	ID string

	// Profiles is indexed by Role.
	Profiles map[Role]Profile

	// ScoresEnabled selects composite scoring over dominant-profile
	// banding.
	ScoresEnabled bool

	// Scores is kept sorted by descending threshold (validation enforces
	// strictly decreasing), so evaluation picks the highest band first.
	Scores []ScoreEntry
}

// PickLane resolves a lane pair by wall-clock second parity: even seconds
// route to the primary lane, odd seconds to the alternate. Pure function
// of its inputs.
func PickLane(lanes LanePair, now time.Time) uint16 {
	if now.Second()%2 == 0 {
		return lanes.Primary
	}
	return lanes.Alternate
}

// Evaluate maps a weight/content reading pair to an output lane.
// ok is false when no rule matches; the caller applies its reject
// fallback.
//
// Rule precedence:
//  1. weight reject bands
//  2. content reject bands
//  3. composite score table (when enabled)
//  4. dominant profile's accept bands (when composite disabled)
func (t *Template) Evaluate(weight, content int32, now time.Time) (lane uint16, ok bool) {
	if band, hit := matchBand(t.Profiles[RoleWeight].Reject, weight); hit {
		return band.Lanes.Primary, true
	}
	if band, hit := matchBand(t.Profiles[RoleContent].Reject, content); hit {
		return band.Lanes.Primary, true
	}

	if t.ScoresEnabled {
		return t.evaluateScore(weight, content, now)
	}
	return t.evaluateDominant(weight, content, now)
}

// Score computes the composite score without resolving a lane. Exposed
// for diagnostics (the stats surface reports the score alongside the
// decision).
func (t *Template) Score(weight, content int32) float64 {
	wp := t.Profiles[RoleWeight]
	cp := t.Profiles[RoleContent]
	return float64(wp.Weight)*float64(weight)/float64(wp.Max) +
		float64(cp.Weight)*float64(content)/float64(cp.Max)
}

func (t *Template) evaluateScore(weight, content int32, now time.Time) (uint16, bool) {
	score := t.Score(weight, content)
	for _, entry := range t.Scores {
		if score >= entry.Threshold {
			return PickLane(entry.Lanes, now), true
		}
	}
	return 0, false
}

func (t *Template) evaluateDominant(weight, content int32, now time.Time) (uint16, bool) {
	for role, profile := range t.Profiles {
		if profile.Weight != DominantWeight {
			continue
		}
		value := weight
		if role == RoleContent {
			value = content
		}
		if band, hit := matchBand(profile.Accept, value); hit {
			return PickLane(band.Lanes, now), true
		}
		return 0, false
	}
	return 0, false
}

func matchBand(bands []Band, v int32) (Band, bool) {
	for _, b := range bands {
		if b.contains(v) {
			return b, true
		}
	}
	return Band{}, false
}
