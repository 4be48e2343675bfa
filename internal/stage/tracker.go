// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stage

import "sync"

// =============================================================================
// PHASE AND STATE TYPES
// =============================================================================

// Phase is one of the three externally visible progress phases of a turn.
type Phase string

const (
	PhaseSearching  Phase = "searching"
	PhaseResponding Phase = "responding"
	PhaseCharting   Phase = "charting"
)

// phaseOrder defines the left-to-right progression of phases.
var phaseOrder = []Phase{PhaseSearching, PhaseResponding, PhaseCharting}

// State is the progress state of a single phase.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateComplete State = "complete"
)

// Snapshot is an immutable copy of the tracker state for observers.
type Snapshot map[Phase]State

// =============================================================================
// TRACKER
// =============================================================================

// Tracker is the finite-state progress model for a turn.
//
// Invariants: phases progress left-to-right; at most one phase is active at
// a time; a phase may be skipped directly to complete but never regresses
// from complete. Reset is the only transition back to pending for a
// complete phase.
type Tracker struct {
	mu     sync.Mutex
	states map[Phase]State

	// onChange receives a snapshot after every state change. Invoked
	// outside the lock.
	onChange func(Snapshot)
}

// NewTracker creates a tracker with all phases pending.
func NewTracker() *Tracker {
	return &Tracker{
		states: map[Phase]State{
			PhaseSearching:  StatePending,
			PhaseResponding: StatePending,
			PhaseCharting:   StatePending,
		},
	}
}

// OnChange registers a hook invoked with a snapshot after every mutation.
func (t *Tracker) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Activate marks the given phase active and completes every earlier phase.
// A phase already complete stays complete. Any later active phase is not
// possible by construction since activation always moves rightward.
func (t *Tracker) Activate(phase Phase) {
	t.mu.Lock()
	changed := false
	for _, p := range phaseOrder {
		if p == phase {
			if t.states[p] != StateComplete && t.states[p] != StateActive {
				t.states[p] = StateActive
				changed = true
			}
			break
		}
		// Earlier phases are swept to complete, skipping active entirely
		// when a phase was never shown.
		if t.states[p] != StateComplete {
			t.states[p] = StateComplete
			changed = true
		}
	}
	t.notifyLocked(changed)
}

// Complete marks the given phase complete.
func (t *Tracker) Complete(phase Phase) {
	t.mu.Lock()
	changed := t.states[phase] != StateComplete
	t.states[phase] = StateComplete
	t.notifyLocked(changed)
}

// Revert returns an active phase to pending. Used when chart preparation
// fails: the UI renders pending as "not yet available", not as an error.
// A complete phase never regresses.
func (t *Tracker) Revert(phase Phase) {
	t.mu.Lock()
	changed := false
	if t.states[phase] == StateActive {
		t.states[phase] = StatePending
		changed = true
	}
	t.notifyLocked(changed)
}

// Reset unconditionally returns every phase to pending.
func (t *Tracker) Reset() {
	t.mu.Lock()
	changed := false
	for _, p := range phaseOrder {
		if t.states[p] != StatePending {
			t.states[p] = StatePending
			changed = true
		}
	}
	t.notifyLocked(changed)
}

// notifyLocked releases the lock and fires the change hook if needed.
func (t *Tracker) notifyLocked(changed bool) {
	var fn func(Snapshot)
	var snap Snapshot
	if changed && t.onChange != nil {
		fn = t.onChange
		snap = t.snapshotLocked()
	}
	t.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// State returns the state of a single phase.
func (t *Tracker) State(phase Phase) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[phase]
}

// Snapshot returns a copy of the full phase map.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(t.states))
	for p, s := range t.states {
		snap[p] = s
	}
	return snap
}

// Busy returns true while any phase is active, meaning a turn is in
// flight and a new one must not start without cancelling first.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.states {
		if s == StateActive {
			return true
		}
	}
	return false
}
