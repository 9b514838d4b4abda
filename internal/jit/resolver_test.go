package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackjit/stackjit/internal/asm"
)

// testNode records the jump target assigned to it.
type testNode struct {
	name   string
	target asm.Node
}

func (n *testNode) String() string { return n.name }

func (n *testNode) AssignJumpTarget(target asm.Node) { n.target = target }

func (n *testNode) OffsetInBinary() int64 { return 0 }

func TestPendingJumps_Resolve(t *testing.T) {
	targets := newTargetTable(DefaultTargetCapacity)
	require.NoError(t, targets.add(4))
	require.NoError(t, targets.add(10))
	label4, label10 := &testNode{name: "L4"}, &testNode{name: "L10"}
	targets.lookup(4).label = label4
	targets.lookup(10).label = label10

	forward, backward, again := &testNode{name: "j1"}, &testNode{name: "j2"}, &testNode{name: "j3"}
	p := newPendingJumps(3)
	require.NoError(t, p.add(forward, 0, 10))
	require.NoError(t, p.add(backward, 12, 4))
	require.NoError(t, p.add(again, 14, 4))
	require.ErrorIs(t, p.add(&testNode{}, 16, 4), ErrPendingJumpsFull)

	require.NoError(t, p.resolve(targets))
	require.Equal(t, label10, forward.target)
	require.Equal(t, label4, backward.target)
	require.Equal(t, label4, again.target)
}

func TestPendingJumps_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name        string
		bound       bool
		target      int
		expectedErr string
	}{
		{
			name:        "never registered",
			bound:       true,
			target:      9,
			expectedErr: "unresolved jump: branch at pc 2 to 9",
		},
		{
			name:        "registered but never reached",
			target:      4,
			expectedErr: "unresolved jump: branch at pc 2 to 4",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			targets := newTargetTable(DefaultTargetCapacity)
			require.NoError(t, targets.add(4))
			if tc.bound {
				targets.lookup(4).label = &testNode{name: "L4"}
			}
			p := newPendingJumps(DefaultPendingCapacity)
			require.NoError(t, p.add(&testNode{name: "j"}, 2, tc.target))

			err := p.resolve(targets)
			require.ErrorIs(t, err, ErrUnresolvedJump)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}
