package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortline/internal/testutil"
)

// compositeTemplate mirrors the line's reference configuration: equal
// weighting between the weigher and the content analyzer.
func compositeTemplate() *Template {
	return &Template{
		ID: "1",
		Profiles: map[Role]Profile{
			RoleWeight: {
				Weight: 50,
				Max:    799,
				Reject: []Band{{Min: 0, Max: 500, Lanes: LanePair{Primary: 1}}},
				Accept: []Band{{Min: 501, Max: 799, Lanes: LanePair{Primary: 9, Alternate: 10}}},
			},
			RoleContent: {
				Weight: 50,
				Max:    59,
				Reject: []Band{{Min: -10, Max: 20, Lanes: LanePair{Primary: 2}}},
				Accept: []Band{{Min: 21, Max: 59, Lanes: LanePair{Primary: 7, Alternate: 8}}},
			},
		},
		ScoresEnabled: true,
		Scores: []ScoreEntry{
			{Threshold: 80, Lanes: LanePair{Primary: 8, Alternate: 9}},
			{Threshold: 60, Lanes: LanePair{Primary: 10, Alternate: 11}},
			{Threshold: 40, Lanes: LanePair{Primary: 12, Alternate: 13}},
		},
	}
}

func dominantTemplate() *Template {
	return &Template{
		ID: "2",
		Profiles: map[Role]Profile{
			RoleWeight: {
				Weight: DominantWeight,
				Max:    200,
				Reject: []Band{{Min: 0, Max: 100, Lanes: LanePair{Primary: 1}}},
				Accept: []Band{{Min: 101, Max: 200, Lanes: LanePair{Primary: 14, Alternate: 15}}},
			},
			RoleContent: {Weight: 0, Max: 1},
		},
		ScoresEnabled: false,
	}
}

func TestTemplate_CompositeScore(t *testing.T) {
	tpl := compositeTemplate()
	require.NoError(t, tpl.Validate())

	// 50*600/799 + 50*40/59 = 37.55 + 33.90 = 71.45: above the 60
	// threshold, below 80.
	score := tpl.Score(600, 40)
	assert.InDelta(t, 71.45, score, 0.01)

	lane, ok := tpl.Evaluate(600, 40, testutil.EvenSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(10), lane, "even second picks the threshold-60 primary lane")

	lane, ok = tpl.Evaluate(600, 40, testutil.OddSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(11), lane, "odd second picks the alternate lane")
}

func TestTemplate_RejectBandPrecedence(t *testing.T) {
	tpl := compositeTemplate()

	// A weight inside a reject band wins regardless of what the
	// composite score would say, and regardless of the content value.
	lane, ok := tpl.Evaluate(480, 55, testutil.EvenSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(1), lane)

	// Content reject band fires next.
	lane, ok = tpl.Evaluate(700, 5, testutil.OddSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(2), lane, "reject bands never alternate")
}

func TestTemplate_CompositeNoMatch(t *testing.T) {
	tpl := compositeTemplate()

	// Score below the lowest threshold: no decision.
	// 50*510/799 + 50*21/59 = 31.91 + 17.80 = 49.71 >= 40, so push the
	// thresholds up instead.
	tpl.Scores = []ScoreEntry{{Threshold: 99, Lanes: LanePair{Primary: 8, Alternate: 9}}}
	_, ok := tpl.Evaluate(510, 21, testutil.EvenSecond())
	assert.False(t, ok)
}

func TestTemplate_DominantProfile(t *testing.T) {
	tpl := dominantTemplate()
	require.NoError(t, tpl.Validate())

	lane, ok := tpl.Evaluate(150, 0, testutil.EvenSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(14), lane)

	lane, ok = tpl.Evaluate(150, 0, testutil.OddSecond())
	require.True(t, ok)
	assert.Equal(t, uint16(15), lane)

	// Outside every accept band: no decision.
	_, ok = tpl.Evaluate(250, 0, testutil.EvenSecond())
	assert.False(t, ok)
}

func TestPickLane_Parity(t *testing.T) {
	pair := LanePair{Primary: 5, Alternate: 6}
	assert.Equal(t, uint16(5), PickLane(pair, testutil.EvenSecond()))
	assert.Equal(t, uint16(6), PickLane(pair, testutil.OddSecond()))
}

func TestTemplate_Validate(t *testing.T) {
	t.Run("zero normalizer rejected at load time", func(t *testing.T) {
		tpl := compositeTemplate()
		profile := tpl.Profiles[RoleContent]
		profile.Max = 0
		tpl.Profiles[RoleContent] = profile

		err := tpl.Validate()
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.Contains(t, err.Error(), "normalizer")
	})

	t.Run("non-decreasing thresholds rejected", func(t *testing.T) {
		tpl := compositeTemplate()
		tpl.Scores = []ScoreEntry{
			{Threshold: 60, Lanes: LanePair{Primary: 8, Alternate: 9}},
			{Threshold: 60, Lanes: LanePair{Primary: 10, Alternate: 11}},
		}
		err := tpl.Validate()
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("duplicate lane ids rejected", func(t *testing.T) {
		tpl := compositeTemplate()
		tpl.Scores = []ScoreEntry{
			{Threshold: 80, Lanes: LanePair{Primary: 8, Alternate: 9}},
			{Threshold: 60, Lanes: LanePair{Primary: 9, Alternate: 11}},
		}
		err := tpl.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate lane")
	})

	t.Run("inverted band rejected", func(t *testing.T) {
		tpl := dominantTemplate()
		profile := tpl.Profiles[RoleWeight]
		profile.Accept = []Band{{Min: 200, Max: 101, Lanes: LanePair{Primary: 14}}}
		tpl.Profiles[RoleWeight] = profile
		assert.Error(t, tpl.Validate())
	})

	t.Run("no dominant profile rejected", func(t *testing.T) {
		tpl := dominantTemplate()
		profile := tpl.Profiles[RoleWeight]
		profile.Weight = 50
		tpl.Profiles[RoleWeight] = profile
		err := tpl.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one profile")
	})

	t.Run("empty score table rejected", func(t *testing.T) {
		tpl := compositeTemplate()
		tpl.Scores = nil
		assert.Error(t, tpl.Validate())
	})
}

func TestRangeTable_Lookup(t *testing.T) {
	table := NewRangeTable([]WeightRange{
		// Deliberately unsorted: the table sorts by ascending min.
		{Min: 901, Max: 9999, Grade: 1},
		{Min: 501, Max: 800, Grade: 3},
		{Min: 801, Max: 900, Grade: 2},
	})

	cases := []struct {
		weight int32
		grade  uint16
		ok     bool
	}{
		{weight: 501, grade: 3, ok: true},
		{weight: 800, grade: 3, ok: true},
		{weight: 801, grade: 2, ok: true},
		{weight: 900, grade: 2, ok: true},
		{weight: 901, grade: 1, ok: true},
		{weight: 12000, grade: 1, ok: true}, // above the top band: heaviest class
		{weight: 400, ok: false},
	}
	for _, tc := range cases {
		grade, ok := table.Lookup(tc.weight)
		assert.Equal(t, tc.ok, ok, "weight %d", tc.weight)
		if tc.ok {
			assert.Equal(t, tc.grade, grade, "weight %d", tc.weight)
		}
	}
}
