package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the registered detectors and fans lifecycle calls out to
// them.
type Manager struct {
	mu        sync.Mutex
	detectors []Detector
	log       *slog.Logger
}

// NewManager returns an empty manager logging through log.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log}
}

// Register adds a detector. Names must be unique.
func (m *Manager) Register(d Detector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.detectors {
		if existing.Name() == d.Name() {
			return fmt.Errorf("detect: detector %q already registered", d.Name())
		}
	}
	m.detectors = append(m.detectors, d)
	m.log.Info("detector registered", "name", d.Name())
	return nil
}

// StartAll starts every detector. Failures are joined and returned; the
// detectors that did start keep running.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, d := range m.detectors {
		if err := d.Start(); err != nil {
			m.log.Error("detector start failed", "name", d.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every detector and joins their goroutines.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detectors {
		d.Stop()
	}
}

// SyncCounts pushes the current item counter value to every detector.
func (m *Manager) SyncCounts(position int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detectors {
		d.SyncCount(position)
	}
}

// Results collects the latest reading of every detector that has one.
func (m *Manager) Results() map[string]Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Reading, len(m.detectors))
	for _, d := range m.detectors {
		if r, ok := d.Result(); ok {
			out[d.Name()] = r
		}
	}
	return out
}
