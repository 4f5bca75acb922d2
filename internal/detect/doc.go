// Package detect runs the sensor-side collaborators of the line: pollers
// for analyzer devices that produce per-item readings, and the pulse edge
// source that advances the item counter.
//
// Detectors are deliberately thin. Each one turns a device protocol into
// numeric readings and hands them to the correlator or the counter; all
// decision logic lives downstream.
package detect
