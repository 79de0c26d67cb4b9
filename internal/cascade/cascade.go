// Package cascade tracks per-file modification velocity to catch fix
// ping-pong: automation that keeps rewriting the same file is probably
// causing the errors it then tries to repair.
package cascade

import (
	"sort"
	"sync"
	"time"

	"mendgate/internal/types"
)

const (
	// DefaultHotThreshold is the modification count inside HotWindow that
	// marks a file as hot.
	DefaultHotThreshold = 3
	// HotWindow is the trailing window for hotness.
	HotWindow = time.Hour
	// AttributionWindow bounds how far back a new error can be blamed on an
	// applied fix.
	AttributionWindow = 30 * time.Minute
	// Retention is how long modification and fix records are kept.
	Retention = 24 * time.Hour
)

// Detector is process-wide state; construct once and inject. The pipeline
// calls it from a single sequential phase, the applicator records through it.
type Detector struct {
	mu           sync.Mutex
	hotThreshold int
	now          func() time.Time

	modifications map[string][]time.Time
	appliedFixes  []types.SuggestedFix
}

// Option configures a Detector.
type Option func(*Detector)

// WithHotThreshold overrides the hot modification count.
func WithHotThreshold(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.hotThreshold = n
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates an empty detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		hotThreshold:  DefaultHotThreshold,
		now:           time.Now,
		modifications: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordModification notes that path was just modified by automation.
func (d *Detector) RecordModification(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modifications[path] = append(d.modifications[path], d.now())
	d.pruneLocked()
}

// RecordFix notes an applied fix so later errors can be attributed to it.
// The fix's AppliedAt is used when set, otherwise now.
func (d *Detector) RecordFix(fix types.SuggestedFix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fix.AppliedAt.IsZero() {
		fix.AppliedAt = d.now()
	}
	d.appliedFixes = append(d.appliedFixes, fix)
	for _, p := range fix.Action.AffectedFiles {
		d.modifications[p] = append(d.modifications[p], fix.AppliedAt)
	}
	d.pruneLocked()
}

// IsFileHot reports whether path accumulated hotThreshold modifications
// inside the trailing hour.
func (d *Detector) IsFileHot(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked()
	cutoff := d.now().Add(-HotWindow)
	count := 0
	for _, ts := range d.modifications[path] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count >= d.hotThreshold
}

// CheckCascade scans applied fixes newest-first and returns the first whose
// affected files contain errorPath and whose apply time is within the
// attribution window of errorTime. Returns nil when no fix is implicated.
func (d *Detector) CheckCascade(errorPath string, errorTime time.Time) *types.SuggestedFix {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked()

	fixes := make([]types.SuggestedFix, len(d.appliedFixes))
	copy(fixes, d.appliedFixes)
	sort.Slice(fixes, func(i, j int) bool {
		return fixes[i].AppliedAt.After(fixes[j].AppliedAt)
	})

	for i := range fixes {
		fix := fixes[i]
		delta := errorTime.Sub(fix.AppliedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > AttributionWindow {
			continue
		}
		for _, p := range fix.Action.AffectedFiles {
			if p == errorPath {
				return &fix
			}
		}
	}
	return nil
}

// Reset clears all state, for test isolation.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modifications = make(map[string][]time.Time)
	d.appliedFixes = nil
}

// pruneLocked drops records older than the retention window. Callers hold mu.
func (d *Detector) pruneLocked() {
	cutoff := d.now().Add(-Retention)
	for path, stamps := range d.modifications {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(d.modifications, path)
		} else {
			d.modifications[path] = kept
		}
	}
	keptFixes := d.appliedFixes[:0]
	for _, fix := range d.appliedFixes {
		if fix.AppliedAt.After(cutoff) {
			keptFixes = append(keptFixes, fix)
		}
	}
	d.appliedFixes = keptFixes
}
