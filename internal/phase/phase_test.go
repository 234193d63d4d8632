package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrband/keep.ai-sub004/internal/classify"
)

func TestAllowMatrix(t *testing.T) {
	cases := []struct {
		phase   Phase
		op      Op
		allowed bool
	}{
		{Producer, OpRead, true},
		{Producer, OpTopicPublish, true},
		{Producer, OpMutate, false},
		{Prepare, OpRead, true},
		{Prepare, OpTopicPeek, true},
		{Prepare, OpMutate, false},
		{Mutate, OpMutate, true},
		{Mutate, OpRead, false},
		{Next, OpTopicPublish, true},
		{Next, OpRead, false},
	}

	for _, tc := range cases {
		c := NewController(tc.phase)
		err := c.Check(tc.op)
		if tc.allowed {
			assert.Nil(t, err, "%s/%s should be allowed", tc.phase, tc.op)
		} else {
			require.NotNil(t, err, "%s/%s should be rejected", tc.phase, tc.op)
			assert.Equal(t, classify.KindLogic, err.Kind)
		}
	}
}

func TestNullPhaseAllowsAll(t *testing.T) {
	c := NewController(Null)
	for _, op := range []Op{OpRead, OpMutate, OpTopicPeek, OpTopicPublish} {
		assert.Nil(t, c.Check(op))
	}
}

func TestSingleMutationPerMutatePhase(t *testing.T) {
	c := NewController(Mutate)

	assert.Nil(t, c.Check(OpMutate), "first mutation should be allowed")

	err := c.Check(OpMutate)
	require.NotNil(t, err, "second mutation in the same phase should be rejected")
	assert.Equal(t, classify.KindLogic, err.Kind)

	c.SetPhase(Mutate)
	assert.Nil(t, c.Check(OpMutate), "resetting the phase clears the latch")
}

func TestPhaseViolationMessage(t *testing.T) {
	c := NewController(Prepare)
	err := c.Check(OpMutate)
	require.NotNil(t, err)
	assert.Equal(t, "Operation 'mutate' not allowed in 'prepare' phase", err.Message)
}

func TestClassifyTopicOp(t *testing.T) {
	op, ok := ClassifyTopicOp("peek")
	require.True(t, ok)
	assert.Equal(t, OpTopicPeek, op)

	op, ok = ClassifyTopicOp("getByIds")
	require.True(t, ok)
	assert.Equal(t, OpTopicPeek, op)

	op, ok = ClassifyTopicOp("publish")
	require.True(t, ok)
	assert.Equal(t, OpTopicPublish, op)

	_, ok = ClassifyTopicOp("send")
	assert.False(t, ok)
}
