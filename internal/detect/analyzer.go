package detect

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Register layout of the internal-quality analyzer. Unlike the line
// controller's slot blocks these addresses are fixed by the device
// vendor's protocol sheet.
const (
	regDetectControl    uint16 = 102
	regReferenceControl uint16 = 103
	regException        uint16 = 109
	regSerial           uint16 = 110
	regResult           uint16 = 111
)

// Values seen in the control registers.
const (
	ctrlStart        uint16 = 1
	statusCollecting uint16 = 1
	statusSuccess    uint16 = 2
	statusFailed     uint16 = 3
)

// MinPollInterval is the fastest polling rate the analyzer protocol
// permits.
const MinPollInterval = 50 * time.Millisecond

// WordConn is the slice of the register client the analyzer needs.
// *plc.Client satisfies it.
type WordConn interface {
	ReadWords(addr, count uint16) ([]uint16, error)
	WriteWord(addr, value uint16) error
}

// Analyzer polls an internal-quality analyzer for per-item content
// readings. A new device-side serial number marks a new measurement;
// each one is handed to onReading tagged with the synced line position.
type Analyzer struct {
	name      string
	conn      WordConn
	onReading func(Reading)
	interval  time.Duration
	now       func() time.Time
	log       *slog.Logger

	position atomic.Int64

	mu         sync.Mutex
	last       Reading
	hasResult  bool
	lastSerial uint16
	serialSeen bool

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithPollInterval sets the polling period. Values below MinPollInterval
// are clamped to it.
func WithPollInterval(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) { a.interval = d }
}

// WithAnalyzerClock substitutes the time source. Tests only.
func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// WithAnalyzerLogger sets the structured logger.
func WithAnalyzerLogger(log *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.log = log }
}

// NewAnalyzer returns a stopped analyzer poller. onReading is called on
// the polling goroutine for every new measurement and must not block.
func NewAnalyzer(name string, conn WordConn, onReading func(Reading), opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		name:      name,
		conn:      conn,
		onReading: onReading,
		interval:  MinPollInterval,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.interval < MinPollInterval {
		a.interval = MinPollInterval
	}
	return a
}

func (a *Analyzer) Name() string { return a.name }

// SyncCount records the line position new readings will be tagged with.
func (a *Analyzer) SyncCount(position int64) {
	a.position.Store(position)
}

// Result returns the latest measurement.
func (a *Analyzer) Result() (Reading, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.hasResult
}

// Start kicks the device's reference and detection cycles and launches
// the polling goroutine. Both kicks are best effort; some devices
// trigger detection on their own.
func (a *Analyzer) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.stop != nil {
		return nil
	}

	if err := a.conn.WriteWord(regReferenceControl, ctrlStart); err != nil {
		a.log.Warn("reference kick failed, device may self-calibrate", "name", a.name, "error", err)
	}
	if err := a.conn.WriteWord(regDetectControl, ctrlStart); err != nil {
		a.log.Warn("detection kick failed, device may self-trigger", "name", a.name, "error", err)
	}

	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stop, a.done)
	a.log.Info("analyzer poller started", "name", a.name, "interval", a.interval)
	return nil
}

// Stop halts polling. Idempotent.
func (a *Analyzer) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.stop == nil {
		return
	}
	close(a.stop)
	<-a.done
	a.stop = nil
	a.done = nil
	a.log.Info("analyzer poller stopped", "name", a.name)
}

func (a *Analyzer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.poll()
		}
	}
}

// poll reads the exception, serial and result registers in one request
// and publishes a reading when the serial number advanced.
func (a *Analyzer) poll() {
	words, err := a.conn.ReadWords(regException, 3)
	if err != nil {
		a.log.Debug("analyzer poll failed", "name", a.name, "error", err)
		return
	}
	exception, serial, raw := words[0], words[1], words[2]
	if exception != 0 {
		a.log.Warn("analyzer reports exception", "name", a.name, "code", exception)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serialSeen && serial == a.lastSerial {
		return
	}
	a.lastSerial = serial
	a.serialSeen = true

	// The device reports a signed word in hundredths of a degree; the
	// pipeline works in tenths.
	value := int32(int16(raw)) / 10
	r := Reading{
		Value:    value,
		Serial:   serial,
		Position: a.position.Load(),
		At:       a.now(),
	}
	a.last = r
	a.hasResult = true
	a.log.Debug("analyzer reading", "name", a.name, "serial", serial, "value", value, "position", r.Position)

	if a.onReading != nil {
		a.onReading(r)
	}
}
