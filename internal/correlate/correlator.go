// Package correlate joins per-line sensor streams into template decisions.
//
// Each line (channel) runs the same two sensors at a fixed physical
// separation. The correlator owns one alignment queue per line and role,
// buffers readings from offset streams, and evaluates the active template
// when the triggering stream (offset 0) reports.
package correlate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sortline/internal/align"
	"github.com/roach88/sortline/internal/grading"
)

// ErrAlignmentMiss reports that the partner reading for a position was
// never buffered or has been skipped past. It is an expected outcome,
// not a fault: the caller falls back to the reject lane.
var ErrAlignmentMiss = errors.New("no aligned partner reading")

// ErrNoLaneMatched reports that both readings were available but no
// template rule matched. Like an alignment miss, the caller's reject
// fallback applies.
var ErrNoLaneMatched = errors.New("no template rule matched")

// Decision is a successful correlation.
type Decision struct {
	Lane    uint16
	Weight  int32
	Content int32
	Score   float64
}

// Correlator pairs sensor streams and applies the active template.
//
// Thread-safety: Record and Reconfigure may be called from any goroutine;
// a single mutex serializes queue access and template swaps.
type Correlator struct {
	mu       sync.Mutex
	template *grading.Template
	offsets  map[grading.Role]int
	queues   map[string]map[grading.Role]*align.Queue
}

// New creates a correlator with the given active template and per-role
// stream offsets. The weight stream triggers evaluation, so it must
// carry offset 0 and the content stream a positive offset (see
// ValidateOffsets). The template must already be validated.
func New(template *grading.Template, offsets map[grading.Role]int) (*Correlator, error) {
	if err := ValidateOffsets(offsets); err != nil {
		return nil, err
	}
	return &Correlator{
		template: template,
		offsets:  cloneOffsets(offsets),
		queues:   make(map[string]map[grading.Role]*align.Queue),
	}, nil
}

// Reconfigure atomically swaps the template and offsets. Existing queue
// contents are discarded: buffered positions are meaningless under new
// offsets.
func (c *Correlator) Reconfigure(template *grading.Template, offsets map[grading.Role]int) error {
	if err := ValidateOffsets(offsets); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.template = template
	c.offsets = cloneOffsets(offsets)
	c.queues = make(map[string]map[grading.Role]*align.Queue)
	return nil
}

// TemplateID returns the active template's id.
func (c *Correlator) TemplateID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.template.ID
}

// Record feeds one sensor reading at the given shared-counter position.
//
// A content reading is buffered and produces no decision. A weight
// reading looks up the content partner at (position - content offset)
// and evaluates the template; a missing partner returns
// ErrAlignmentMiss.
func (c *Correlator) Record(line string, role grading.Role, value int32, position int64, now time.Time) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.offsets[role]
	if !ok {
		return Decision{}, fmt.Errorf("correlate: role %s has no configured offset", role)
	}

	if offset > 0 {
		c.queue(line, role).Put(value, position)
		return Decision{}, nil
	}

	contentOffset := c.offsets[grading.RoleContent]
	entry, ok := c.queue(line, grading.RoleContent).GetAligned(position - int64(contentOffset))
	if !ok {
		slog.Debug("alignment miss",
			"line", line, "role", grading.RoleContent.String(), "position", position-int64(contentOffset))
		return Decision{}, ErrAlignmentMiss
	}

	weight, content := value, entry.Value

	lane, matched := c.template.Evaluate(weight, content, now)
	if !matched {
		return Decision{}, ErrNoLaneMatched
	}

	d := Decision{Lane: lane, Weight: weight, Content: content}
	if c.template.ScoresEnabled {
		d.Score = c.template.Score(weight, content)
	}
	return d, nil
}

// queue returns the line/role queue, creating it on first use. Caller
// must hold c.mu.
func (c *Correlator) queue(line string, role grading.Role) *align.Queue {
	byRole, ok := c.queues[line]
	if !ok {
		byRole = make(map[grading.Role]*align.Queue)
		c.queues[line] = byRole
	}
	q, ok := byRole[role]
	if !ok {
		q = align.NewQueue(c.offsets[role])
		byRole[role] = q
	}
	return q
}

// ValidateOffsets checks that the offsets describe a weight-triggered
// pairing: both roles present, weight at offset 0 and content at a
// positive offset. Weight readings come out of the controller slot scan,
// which is what drives evaluation; a content stream at offset 0 would
// leave weight readings buffered with nothing to pair them.
func ValidateOffsets(offsets map[grading.Role]int) error {
	weight, ok := offsets[grading.RoleWeight]
	if !ok {
		return fmt.Errorf("correlate: offsets missing role %s", grading.RoleWeight)
	}
	content, ok := offsets[grading.RoleContent]
	if !ok {
		return fmt.Errorf("correlate: offsets missing role %s", grading.RoleContent)
	}
	if weight != 0 {
		return fmt.Errorf("correlate: role %s offset must be 0, got %d", grading.RoleWeight, weight)
	}
	if content <= 0 {
		return fmt.Errorf("correlate: role %s offset must be positive, got %d", grading.RoleContent, content)
	}
	return nil
}

func cloneOffsets(offsets map[grading.Role]int) map[grading.Role]int {
	out := make(map[grading.Role]int, len(offsets))
	for role, off := range offsets {
		out[role] = off
	}
	return out
}
