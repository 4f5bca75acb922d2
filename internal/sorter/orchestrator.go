package sorter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sortline/internal/correlate"
	"github.com/roach88/sortline/internal/counter"
	"github.com/roach88/sortline/internal/grading"
	"github.com/roach88/sortline/internal/plc"
)

// Mode selects how pending slots are graded.
type Mode int

const (
	// ModeOff leaves pending slots untouched; only overrides apply.
	ModeOff Mode = iota
	// ModeRanges grades by weight against a static range table.
	ModeRanges
	// ModeTemplate grades by correlating weight with a content reading
	// through the decision template.
	ModeTemplate
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeRanges:
		return "ranges"
	case ModeTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// DefaultInterval is the cycle period. The field controller refreshes
// slot registers a little faster than this, so each cycle sees fresh
// state without hammering the link.
const DefaultInterval = 50 * time.Millisecond

// SnapshotConn is the slice of the register client the orchestrator
// needs. *plc.Client satisfies it.
type SnapshotConn interface {
	ReadSnapshot() (*plc.ChannelSnapshot, error)
	WriteSnapshot(*plc.ChannelSnapshot) error
}

// Orchestrator owns the read/decide/write loop. All configuration is
// mutable at runtime under one coarse mutex; mutators take effect on the
// next cycle.
type Orchestrator struct {
	conn     SnapshotConn
	position *counter.Counter
	sink     *Sink
	now      func() time.Time
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	mode      Mode
	ranges    *grading.RangeTable
	corr      *correlate.Correlator
	overrides overrideSet
	stats     Stats

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInterval overrides the cycle period.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

// WithSink publishes every decision to s.
func WithSink(s *Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New returns a stopped orchestrator in ModeOff.
func New(conn SnapshotConn, position *counter.Counter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conn:     conn,
		position: position,
		now:      time.Now,
		interval: DefaultInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetRanges installs the weight range table used in ModeRanges.
func (o *Orchestrator) SetRanges(t *grading.RangeTable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ranges = t
}

// SetCorrelator installs the correlator used in ModeTemplate. The same
// instance is shared with whatever feeds content readings into it.
func (o *Orchestrator) SetCorrelator(c *correlate.Correlator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.corr = c
}

// SetMode switches the grading mode. Switching to a mode whose
// configuration is absent is an error; the prior mode stays active.
func (o *Orchestrator) SetMode(m Mode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch m {
	case ModeRanges:
		if o.ranges == nil || o.ranges.Len() == 0 {
			return fmt.Errorf("sorter: no weight ranges configured")
		}
	case ModeTemplate:
		if o.corr == nil {
			return fmt.Errorf("sorter: no correlator configured")
		}
	}
	o.mode = m
	return nil
}

// Mode reports the active grading mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// AddOverride schedules a one-shot override: the item that reaches
// target on channel is routed to lane. Targets at or behind the current
// counter value are rejected rather than created already missed.
func (o *Orchestrator) AddOverride(channel string, target int64, lane uint16) (*OverrideTask, error) {
	current := o.position.Get()
	if target <= current {
		return nil, fmt.Errorf("sorter: override target %d not ahead of position %d", target, current)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := newOverrideTask(channel, target, lane, o.now())
	o.overrides.add(t)
	return t, nil
}

// Overrides returns a copy of the pending override tasks.
func (o *Orchestrator) Overrides() []OverrideTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overrides.snapshot()
}

// Stats returns a copy of the loop counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	if o.sink != nil {
		s.DroppedEvents = o.sink.Dropped()
	}
	return s
}

// Running reports whether the loop goroutine is live.
func (o *Orchestrator) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.stop != nil
}

// Start launches the cycle loop. Starting a running orchestrator is an
// error.
func (o *Orchestrator) Start() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.stop != nil {
		return errors.New("sorter: already running")
	}
	o.stop = make(chan struct{})
	o.done = make(chan struct{})

	o.mu.Lock()
	o.stats.StartedAt = o.now()
	o.mu.Unlock()

	go o.run(o.stop, o.done)
	o.log.Info("sorting loop started", "interval", o.interval, "mode", o.Mode().String())
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish.
// Stopping a stopped orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.stop == nil {
		return
	}
	close(o.stop)
	<-o.done
	o.stop = nil
	o.done = nil
	o.log.Info("sorting loop stopped")
}

func (o *Orchestrator) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			o.Cycle()
			if elapsed := time.Since(start); elapsed > o.interval {
				o.log.Warn("cycle overran its interval",
					"elapsed", elapsed, "interval", o.interval)
			}
		}
	}
}

// Cycle performs one read/decide/write pass. The loop calls it on every
// tick; callers may also drive it directly, typically in tests or when
// single-stepping the line.
func (o *Orchestrator) Cycle() {
	snap, err := o.conn.ReadSnapshot()
	if err != nil {
		o.mu.Lock()
		o.stats.Cycles++
		o.stats.ReadFailures++
		o.mu.Unlock()
		o.log.Warn("snapshot read failed, skipping cycle", "error", err)
		return
	}

	pos := o.position.Get()
	now := o.now()

	o.mu.Lock()
	o.stats.Cycles++
	for _, channel := range snap.Channels() {
		slots, _ := snap.Slots(channel)
		for _, slot := range slots {
			if slot.Grade != plc.GradePending {
				continue
			}
			o.gradeSlot(snap, channel, slot, pos, now)
		}
	}
	if missed := o.overrides.expire(pos, now); missed > 0 {
		o.stats.MissedOverrides += uint64(missed)
		o.log.Warn("override targets passed unmet", "count", missed, "position", pos)
	}
	o.mu.Unlock()

	if !snap.Dirty() {
		return
	}
	err = o.conn.WriteSnapshot(snap)
	o.mu.Lock()
	if err != nil {
		o.stats.WriteFailures++
	} else {
		o.stats.BatchWrites++
	}
	o.mu.Unlock()
	if err != nil {
		o.log.Warn("batch write failed, next cycle re-reads", "error", err)
	}
}

// gradeSlot decides one pending slot. Caller holds o.mu.
func (o *Orchestrator) gradeSlot(snap *plc.ChannelSnapshot, channel string, slot plc.SlotRecord, pos int64, now time.Time) {
	// The first slot holds the item at the current counter position;
	// deeper slots carry items counted earlier.
	slotPos := pos - int64(slot.Sequence-1)

	if slot.Sequence == 1 {
		if task := o.overrides.match(channel, pos); task != nil {
			o.stage(snap, channel, slot, task.Lane, Decision{
				Position: pos, Lane: task.Lane, Cause: CauseOverride,
			}, now)
			task.State = OverrideSucceeded
			task.Resolved = now
			o.overrides.remove(task)
			o.stats.OverrideSorted++
			return
		}
	}

	switch o.mode {
	case ModeRanges:
		if o.ranges == nil {
			return
		}
		lane, ok := o.ranges.Lookup(slot.Weight)
		if !ok {
			o.stage(snap, channel, slot, plc.GradeReject, Decision{
				Position: slotPos, Lane: plc.GradeReject, Cause: CauseReject,
			}, now)
			o.stats.Rejected++
			return
		}
		o.stage(snap, channel, slot, lane, Decision{
			Position: slotPos, Lane: lane, Cause: CauseRange,
		}, now)
		o.stats.WeightSorted++

	case ModeTemplate:
		if o.corr == nil {
			return
		}
		d, err := o.corr.Record(channel, grading.RoleWeight, slot.Weight, slotPos, now)
		switch {
		case errors.Is(err, correlate.ErrAlignmentMiss):
			// The partner reading is permanently unreachable; the slot
			// can never be template graded.
			o.stats.AlignmentMisses++
			o.stage(snap, channel, slot, plc.GradeReject, Decision{
				Position: slotPos, Lane: plc.GradeReject, Cause: CauseReject,
			}, now)
			o.stats.Rejected++
		case errors.Is(err, correlate.ErrNoLaneMatched):
			o.stage(snap, channel, slot, plc.GradeReject, Decision{
				Position: slotPos, Lane: plc.GradeReject, Cause: CauseReject,
			}, now)
			o.stats.Rejected++
		case err != nil:
			o.log.Error("template correlation failed", "channel", channel, "error", err)
		default:
			o.stage(snap, channel, slot, d.Lane, Decision{
				Position: slotPos, Content: d.Content, Score: d.Score,
				Lane: d.Lane, Cause: CauseTemplate,
			}, now)
			o.stats.TemplateSorted++
		}
	}
}

// stage writes the grade into the snapshot image and publishes the
// decision. Caller holds o.mu.
func (o *Orchestrator) stage(snap *plc.ChannelSnapshot, channel string, slot plc.SlotRecord, grade uint16, d Decision, now time.Time) {
	if err := snap.SetGrade(channel, slot.Sequence, grade); err != nil {
		o.log.Error("grade staging failed", "channel", channel, "sequence", slot.Sequence, "error", err)
		return
	}
	o.stats.Decisions++
	if o.sink == nil {
		return
	}
	d.ID = uuid.NewString()
	d.Time = now
	d.Channel = channel
	d.Sequence = slot.Sequence
	d.Weight = slot.Weight
	o.sink.Publish(d)
}
