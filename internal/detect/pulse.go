package detect

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sortline/internal/counter"
)

// BitReader reads one bit of a holding register. *plc.Client satisfies
// it.
type BitReader interface {
	ReadBit(addr uint16, bit uint) (bool, error)
}

// PulseSource watches a digital level and advances the item counter on
// every rising edge. It is the line's position authority: one pulse per
// item passing the photo eye.
type PulseSource struct {
	name     string
	reader   BitReader
	addr     uint16
	bit      uint
	counter  *counter.Counter
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	level bool
	armed bool
	last  Reading

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// PulseOption configures a PulseSource.
type PulseOption func(*PulseSource)

// WithPulseInterval sets the sampling period. The default of 10 ms
// resolves pulses down to roughly 20 ms width.
func WithPulseInterval(d time.Duration) PulseOption {
	return func(p *PulseSource) { p.interval = d }
}

// WithPulseLogger sets the structured logger.
func WithPulseLogger(log *slog.Logger) PulseOption {
	return func(p *PulseSource) { p.log = log }
}

// NewPulseSource returns a stopped edge source sampling bit of addr and
// ticking c on each rising edge.
func NewPulseSource(name string, reader BitReader, addr uint16, bit uint, c *counter.Counter, opts ...PulseOption) *PulseSource {
	p := &PulseSource{
		name:     name,
		reader:   reader,
		addr:     addr,
		bit:      bit,
		counter:  c,
		interval: 10 * time.Millisecond,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PulseSource) Name() string { return p.name }

// SyncCount resets the counter to an externally known position.
func (p *PulseSource) SyncCount(position int64) {
	p.counter.Set(position)
}

// Result returns the position of the last detected edge.
func (p *PulseSource) Result() (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.last.Position != 0
}

// Start launches the sampling goroutine. Idempotent.
func (p *PulseSource) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
	p.log.Info("pulse source started", "name", p.name, "addr", p.addr, "bit", p.bit)
	return nil
}

// Stop halts sampling. Idempotent.
func (p *PulseSource) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
	p.done = nil
	p.log.Info("pulse source stopped", "name", p.name)
}

func (p *PulseSource) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

// sample reads the level and counts a rising edge. A read failure
// disarms edge detection so a pulse spanning the outage is not counted
// from a stale low.
func (p *PulseSource) sample() {
	level, err := p.reader.ReadBit(p.addr, p.bit)
	if err != nil {
		p.mu.Lock()
		p.armed = false
		p.mu.Unlock()
		p.log.Debug("pulse sample failed", "name", p.name, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rising := p.armed && !p.level && level
	p.level = level
	p.armed = true
	if !rising {
		return
	}
	position := p.counter.Add(1)
	p.last = Reading{Value: 1, Position: position, At: time.Now()}
	p.log.Debug("item pulse", "name", p.name, "position", position)
}
