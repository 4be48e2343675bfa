// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_InitialStateAllPending(t *testing.T) {
	tr := NewTracker()
	for _, p := range []Phase{PhaseSearching, PhaseResponding, PhaseCharting} {
		require.Equal(t, StatePending, tr.State(p))
	}
	require.False(t, tr.Busy())
}

func TestTracker_TurnProgression(t *testing.T) {
	tr := NewTracker()

	tr.Activate(PhaseSearching)
	require.Equal(t, StateActive, tr.State(PhaseSearching))
	require.True(t, tr.Busy())

	// First text delta: search completes, responding becomes active.
	tr.Activate(PhaseResponding)
	require.Equal(t, StateComplete, tr.State(PhaseSearching))
	require.Equal(t, StateActive, tr.State(PhaseResponding))
	require.Equal(t, StatePending, tr.State(PhaseCharting))

	tr.Complete(PhaseResponding)
	tr.Activate(PhaseCharting)
	require.Equal(t, StateActive, tr.State(PhaseCharting))

	tr.Complete(PhaseCharting)
	require.Equal(t, StateComplete, tr.State(PhaseCharting))
	require.False(t, tr.Busy())
}

func TestTracker_ActivateSkipsEarlierPhases(t *testing.T) {
	tr := NewTracker()

	// Jumping straight to responding sweeps searching to complete without
	// it ever having been active.
	tr.Activate(PhaseResponding)
	require.Equal(t, StateComplete, tr.State(PhaseSearching))
	require.Equal(t, StateActive, tr.State(PhaseResponding))
}

func TestTracker_NeverRegressesFromComplete(t *testing.T) {
	tr := NewTracker()
	tr.Complete(PhaseSearching)

	tr.Activate(PhaseSearching)
	require.Equal(t, StateComplete, tr.State(PhaseSearching))

	tr.Revert(PhaseSearching)
	require.Equal(t, StateComplete, tr.State(PhaseSearching))
}

func TestTracker_RevertActiveToPending(t *testing.T) {
	tr := NewTracker()
	tr.Activate(PhaseCharting)
	tr.Revert(PhaseCharting)
	require.Equal(t, StatePending, tr.State(PhaseCharting))
}

func TestTracker_ResetUnconditional(t *testing.T) {
	tr := NewTracker()
	tr.Activate(PhaseResponding)
	tr.Complete(PhaseResponding)
	tr.Activate(PhaseCharting)

	tr.Reset()

	for _, p := range []Phase{PhaseSearching, PhaseResponding, PhaseCharting} {
		require.Equal(t, StatePending, tr.State(p))
	}
}

func TestTracker_OnChangeDeliversSnapshots(t *testing.T) {
	tr := NewTracker()
	var got []Snapshot
	tr.OnChange(func(s Snapshot) { got = append(got, s) })

	tr.Activate(PhaseSearching)
	tr.Activate(PhaseSearching) // no change, no notification
	tr.Complete(PhaseSearching)

	require.Len(t, got, 2)
	require.Equal(t, StateActive, got[0][PhaseSearching])
	require.Equal(t, StateComplete, got[1][PhaseSearching])
}
