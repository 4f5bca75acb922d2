package detect

import "time"

// Reading is one numeric sensor result tied to a line position.
type Reading struct {
	// Value is the reading in the sensor's pipeline units (grams for
	// weighers, tenths of a degree Brix for content analyzers).
	Value int32

	// Serial is the device-side sequence number of the measurement, when
	// the device provides one.
	Serial uint16

	// Position is the item counter value the reading was taken at.
	Position int64

	At time.Time
}

// Detector is one sensor collaborator with its own polling goroutine.
type Detector interface {
	Name() string

	// Start launches the detector. Starting a running detector is a
	// no-op.
	Start() error

	// Stop halts polling and joins the goroutine.
	Stop()

	// SyncCount aligns the detector with the line's item counter so new
	// readings carry the right position.
	SyncCount(position int64)

	// Result returns the most recent reading. ok is false until the
	// first measurement arrives.
	Result() (Reading, bool)
}
