package jit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordInvocation(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected int32
	}{
		{name: "fresh", state: State{}, expected: 1},
		{name: "counting", state: State{hotness: 9}, expected: 10},
		{name: "saturates", state: State{hotness: math.MaxInt32}, expected: math.MaxInt32},
		{name: "compiled", state: State{hotness: 10, compiled: true}, expected: 10},
		{name: "disqualified", state: State{hotness: DisqualifiedHotness}, expected: DisqualifiedHotness},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			recordInvocation(&tc.state)
			require.Equal(t, tc.expected, tc.state.hotness)
		})
	}
}

func TestShouldCompile(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{name: "cold", state: State{hotness: 9}, expected: false},
		{name: "at threshold", state: State{hotness: 10}, expected: true},
		{name: "above threshold", state: State{hotness: 11}, expected: true},
		{name: "compiled", state: State{hotness: 10, compiled: true}, expected: false},
		{name: "disqualified", state: State{hotness: DisqualifiedHotness}, expected: false},
		{name: "backing off", state: State{hotness: 15, retryAt: 20}, expected: false},
		{name: "back-off reached", state: State{hotness: 20, retryAt: 20}, expected: true},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, shouldCompile(&tc.state, 10))
		})
	}
}

func TestShouldCompile_DisqualifiedForever(t *testing.T) {
	s := &State{hotness: 12}
	disqualify(s)
	for i := 0; i < 1000; i++ {
		recordInvocation(s)
		require.False(t, shouldCompile(s, 0))
		require.False(t, shouldCompile(s, 10))
	}
	require.Equal(t, DisqualifiedHotness, s.hotness)
}

func TestBackOff(t *testing.T) {
	tests := []struct {
		name     string
		hotness  int32
		expected int32
	}{
		{name: "zero", hotness: 0, expected: 1},
		{name: "threshold", hotness: 10, expected: 20},
		{name: "saturates", hotness: math.MaxInt32 - 1, expected: math.MaxInt32},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			s := &State{hotness: tc.hotness}
			backOff(s)
			require.Equal(t, tc.expected, s.retryAt)
		})
	}
}
