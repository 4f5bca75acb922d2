package sorter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortline/internal/correlate"
	"github.com/roach88/sortline/internal/counter"
	"github.com/roach88/sortline/internal/grading"
	"github.com/roach88/sortline/internal/plc"
	"github.com/roach88/sortline/internal/testutil"
)

// Slot layout under this map: channel A slot 1 weight@100 grade@102,
// slot 2 weight@103 grade@105; channel B slot 1 weight@106 grade@108,
// slot 2 weight@109 grade@111.
func testMap() *plc.RegisterMap {
	return &plc.RegisterMap{
		ControlRegister: 2,
		StatusRegister:  3,
		CounterRegister: 4,
		SlotsPerChannel: 2,
		Channels: map[string]uint16{
			"A": 100,
			"B": 106,
		},
	}
}

type rig struct {
	sim   *testutil.ControllerSim
	pos   *counter.Counter
	clock *testutil.FixedClock
	sink  *Sink
	orch  *Orchestrator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	sim, err := testutil.NewControllerSim()
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	client := plc.NewClient(sim.Addr(), testMap(), plc.WithTimeout(time.Second))
	t.Cleanup(func() { _ = client.Close() })

	clock := testutil.NewFixedClock(testutil.EvenSecond())
	pos := counter.New()
	sink := NewSink(16)
	orch := New(client, pos,
		WithSink(sink),
		WithClock(clock.Now),
		WithInterval(5*time.Millisecond),
	)
	return &rig{sim: sim, pos: pos, clock: clock, sink: sink, orch: orch}
}

// seedSlot stages a pending slot in the simulator's register bank.
func (r *rig) seedSlot(weightAddr uint16, weight int32) {
	r.sim.Bank.SetInt32(weightAddr, weight)
	r.sim.Bank.Set(weightAddr+2, plc.GradePending)
}

func (r *rig) drainDecision(t *testing.T) Decision {
	t.Helper()
	select {
	case d := <-r.sink.Events():
		return d
	default:
		t.Fatal("no decision published")
		return Decision{}
	}
}

func testRanges() *grading.RangeTable {
	return grading.NewRangeTable([]grading.WeightRange{
		{Min: 0, Max: 500, Grade: 8},
		{Min: 501, Max: 800, Grade: 9},
	})
}

func TestCycle_RangeMode_GradesAllPendingInOneWrite(t *testing.T) {
	r := newRig(t)
	r.seedSlot(100, 300) // A1 -> lane 8
	r.seedSlot(103, 600) // A2 -> lane 9
	r.seedSlot(106, 900) // B1 above top band -> last range, lane 9

	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))
	r.sim.ResetCounts()

	r.orch.Cycle()

	assert.Equal(t, uint16(8), r.sim.Bank.Get(102))
	assert.Equal(t, uint16(9), r.sim.Bank.Get(105))
	assert.Equal(t, uint16(9), r.sim.Bank.Get(108))
	// B2 was never pending and must stay untouched.
	assert.Equal(t, uint16(0), r.sim.Bank.Get(111))

	reads, writes := r.sim.RequestCounts()
	assert.Equal(t, 1, reads, "one bulk read per cycle")
	assert.Equal(t, 1, writes, "all grades flushed in one batch write")

	stats := r.orch.Stats()
	assert.Equal(t, uint64(3), stats.Decisions)
	assert.Equal(t, uint64(3), stats.WeightSorted)
	assert.Equal(t, uint64(1), stats.BatchWrites)
}

func TestCycle_NothingPending_WritesNothing(t *testing.T) {
	r := newRig(t)
	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))
	r.sim.ResetCounts()

	r.orch.Cycle()

	reads, writes := r.sim.RequestCounts()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 0, writes, "a clean snapshot must not be written back")
}

func TestCycle_ReadFailure_SkipsCycle(t *testing.T) {
	r := newRig(t)
	r.seedSlot(100, 300)
	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))

	r.sim.FailNext(1)
	r.orch.Cycle()

	assert.Equal(t, uint16(plc.GradePending), r.sim.Bank.Get(102), "no grading on a failed read")
	stats := r.orch.Stats()
	assert.Equal(t, uint64(1), stats.ReadFailures)
	assert.Equal(t, uint64(0), stats.Decisions)

	// The next cycle recovers on its own fresh read.
	r.orch.Cycle()
	assert.Equal(t, uint16(8), r.sim.Bank.Get(102))
}

func TestOverride_RoutesTargetItem(t *testing.T) {
	r := newRig(t)
	r.pos.Set(41)

	task, err := r.orch.AddOverride("A", 42, 14)
	require.NoError(t, err)

	// Position 41: target not reached, slot stays pending.
	r.seedSlot(100, 300)
	r.orch.Cycle()
	assert.Equal(t, uint16(plc.GradePending), r.sim.Bank.Get(102))
	assert.Equal(t, OverridePending, task.State)

	// Position 42: target item is in slot 1.
	r.pos.Set(42)
	r.orch.Cycle()

	assert.Equal(t, uint16(14), r.sim.Bank.Get(102))
	assert.Equal(t, OverrideSucceeded, task.State)
	assert.Empty(t, r.orch.Overrides(), "fired task leaves the pending set")
	assert.Equal(t, uint64(1), r.orch.Stats().OverrideSorted)

	d := r.drainDecision(t)
	assert.Equal(t, CauseOverride, d.Cause)
	assert.Equal(t, uint16(14), d.Lane)
	assert.Equal(t, int64(42), d.Position)
}

func TestOverride_BeatsRangeGrading(t *testing.T) {
	r := newRig(t)
	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))
	r.pos.Set(10)
	r.seedSlot(100, 300) // ranges would say lane 8

	_, err := r.orch.AddOverride("A", 10, 14)
	require.Error(t, err, "target equal to the current position is already behind")

	task, err := r.orch.AddOverride("A", 11, 14)
	require.NoError(t, err)
	r.pos.Set(11)
	r.orch.Cycle()

	assert.Equal(t, uint16(14), r.sim.Bank.Get(102))
	assert.Equal(t, OverrideSucceeded, task.State)
}

func TestOverride_MissedWhenPositionPasses(t *testing.T) {
	r := newRig(t)
	r.pos.Set(40)

	task, err := r.orch.AddOverride("B", 42, 14)
	require.NoError(t, err)

	r.pos.Set(44)
	r.orch.Cycle()

	assert.Equal(t, OverrideMissed, task.State)
	assert.Empty(t, r.orch.Overrides())
	assert.Equal(t, uint64(1), r.orch.Stats().MissedOverrides)
}

func compositeTemplate(t *testing.T) *grading.Template {
	t.Helper()
	tpl := &grading.Template{
		ID: "composite",
		Profiles: map[grading.Role]grading.Profile{
			grading.RoleWeight:  {Weight: 50, Max: 799},
			grading.RoleContent: {Weight: 50, Max: 59},
		},
		ScoresEnabled: true,
		Scores: []grading.ScoreEntry{
			{Threshold: 80, Lanes: grading.LanePair{Primary: 8, Alternate: 9}},
			{Threshold: 60, Lanes: grading.LanePair{Primary: 10, Alternate: 11}},
			{Threshold: 40, Lanes: grading.LanePair{Primary: 12, Alternate: 13}},
		},
	}
	require.NoError(t, tpl.Validate())
	return tpl
}

func TestCycle_TemplateMode_CorrelatesWeightAndContent(t *testing.T) {
	r := newRig(t)
	corr, err := correlate.New(compositeTemplate(t), map[grading.Role]int{
		grading.RoleWeight:  0,
		grading.RoleContent: 4,
	})
	require.NoError(t, err)
	r.orch.SetCorrelator(corr)
	require.NoError(t, r.orch.SetMode(ModeTemplate))

	// Content was measured four positions upstream of the weigher.
	_, err = corr.Record("A", grading.RoleContent, 40, 100, r.clock.Now())
	require.NoError(t, err)

	r.pos.Set(104)
	r.seedSlot(100, 600)
	r.orch.Cycle()

	// Score 50*600/799 + 50*40/59 = 71.45 -> 60 band, even second -> lane 10.
	assert.Equal(t, uint16(10), r.sim.Bank.Get(102))
	assert.Equal(t, uint64(1), r.orch.Stats().TemplateSorted)

	d := r.drainDecision(t)
	assert.Equal(t, CauseTemplate, d.Cause)
	assert.Equal(t, int32(600), d.Weight)
	assert.Equal(t, int32(40), d.Content)
	assert.InDelta(t, 71.45, d.Score, 0.01)
}

func TestCycle_TemplateMode_AlignmentMissRejects(t *testing.T) {
	r := newRig(t)
	corr, err := correlate.New(compositeTemplate(t), map[grading.Role]int{
		grading.RoleWeight:  0,
		grading.RoleContent: 4,
	})
	require.NoError(t, err)
	r.orch.SetCorrelator(corr)
	require.NoError(t, r.orch.SetMode(ModeTemplate))

	// No content reading ever arrived for this position.
	r.pos.Set(104)
	r.seedSlot(100, 600)
	r.orch.Cycle()

	assert.Equal(t, plc.GradeReject, r.sim.Bank.Get(102))
	stats := r.orch.Stats()
	assert.Equal(t, uint64(1), stats.AlignmentMisses)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, CauseReject, r.drainDecision(t).Cause)
}

func TestCycle_TemplateMode_ContentTriggerCannotBeConfigured(t *testing.T) {
	// The cycle drives evaluation from the weight slots. A correlator
	// that buffered weight readings instead would let gradeSlot stage a
	// zero decision for a slot nothing evaluated, so the configuration
	// is rejected before it can reach the orchestrator.
	_, err := correlate.New(compositeTemplate(t), map[grading.Role]int{
		grading.RoleWeight:  4,
		grading.RoleContent: 0,
	})
	assert.Error(t, err)
}

func TestSetMode_RequiresConfiguration(t *testing.T) {
	r := newRig(t)

	assert.Error(t, r.orch.SetMode(ModeRanges))
	assert.Error(t, r.orch.SetMode(ModeTemplate))
	assert.Equal(t, ModeOff, r.orch.Mode())

	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))
	assert.Equal(t, ModeRanges, r.orch.Mode())
}

func TestStartStop_Lifecycle(t *testing.T) {
	r := newRig(t)
	r.orch.SetRanges(testRanges())
	require.NoError(t, r.orch.SetMode(ModeRanges))

	require.NoError(t, r.orch.Start())
	assert.True(t, r.orch.Running())
	assert.Error(t, r.orch.Start(), "double start must fail")

	time.Sleep(20 * time.Millisecond)
	r.orch.Stop()
	assert.False(t, r.orch.Running())
	r.orch.Stop() // stopping twice is a no-op

	assert.NotZero(t, r.orch.Stats().Cycles, "the loop must have run")
}
