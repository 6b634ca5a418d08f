package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMPaths(t *testing.T) {
	cases := []struct {
		name   string
		events []Event
		want   []State
	}{
		{"no seat", []Event{EventSeatMissing}, []State{StateReceived, StateNoSeatInfo}},
		{"wrinkles failed", []Event{EventWrinklesFailed}, []State{StateReceived, StateWrinklesNotSucceeded}},
		{"bypass", []Event{EventBypass, EventSkip}, []State{StateReceived, StateProgramBypass, StateNotSteamed}},
		{"buckle unknown", []Event{EventBuckleUnknown, EventSkip}, []State{StateReceived, StateUnknownBuckle, StateNotSteamed}},
		{"steamed", []Event{EventEvaluate, EventZonesSelected}, []State{StateReceived, StateEvaluated, StateSteamed}},
		{"not needed", []Event{EventEvaluate, EventNothingToSteam}, []State{StateReceived, StateEvaluated, StateNotNeeded}},
		{"evaluation error", []Event{EventEvaluate, EventError, EventFail}, []State{StateReceived, StateEvaluated, StateError, StateFailed}},
		{"input error", []Event{EventError, EventFail}, []State{StateReceived, StateError, StateFailed}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFSM("SN1")
			for _, e := range tc.events {
				require.NoError(t, f.Fire(e))
			}
			assert.Equal(t, tc.want, f.History())
			assert.True(t, IsTerminal(f.Current()), "%s 应为终态", f.Current())
		})
	}
}

func TestFSMRejectsIllegalTransitions(t *testing.T) {
	f := NewFSM("SN1")
	assert.Error(t, f.Fire(EventZonesSelected))
	assert.Equal(t, StateReceived, f.Current())

	require.NoError(t, f.Fire(EventSeatMissing))
	for _, e := range []Event{EventEvaluate, EventSkip, EventError, EventFail} {
		assert.Error(t, f.Fire(e), "终态不应接受事件 %s", e)
	}
	assert.Equal(t, StateNoSeatInfo, f.Current())
}

func TestFSMCallbacks(t *testing.T) {
	f := NewFSM("SN42")
	var got []string
	f.RegisterCallback(StateProgramBypass, func(id string) {
		got = append(got, id)
		// 回调中允许继续推进
		require.NoError(t, f.Fire(EventSkip))
	})

	require.NoError(t, f.Fire(EventBypass))
	assert.Equal(t, []string{"SN42"}, got)
	assert.Equal(t, StateNotSteamed, f.Current())
	assert.Equal(t, []State{StateReceived, StateProgramBypass, StateNotSteamed}, f.History())
}
