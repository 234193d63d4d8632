// Package phase implements the script execution phase state machine: a
// small five-state enum gating which operation classes a tool call may
// perform, with a single-mutation latch inside the mutate phase.
package phase

import (
	"fmt"

	"github.com/nostrband/keep.ai-sub004/internal/classify"
)

// Phase is one of the five execution phases.
type Phase string

const (
	Producer Phase = "producer"
	Prepare  Phase = "prepare"
	Mutate   Phase = "mutate"
	Next     Phase = "next"
	Null     Phase = "null"
)

// Op is an operation class a tool call is classified into.
type Op string

const (
	OpRead         Op = "read"
	OpMutate       Op = "mutate"
	OpTopicPeek    Op = "topic_peek"
	OpTopicPublish Op = "topic_publish"
)

// allowMatrix is the constant 4-column allow table from spec section 3.3.
var allowMatrix = map[Phase]map[Op]bool{
	Producer: {OpRead: true, OpTopicPublish: true},
	Prepare:  {OpRead: true, OpTopicPeek: true},
	Mutate:   {OpMutate: true},
	Next:     {OpTopicPublish: true},
	// Null is handled specially: every op is accepted.
}

// Controller is the phase state machine. It is not safe for concurrent use
// across goroutines calling Check/SetPhase simultaneously; callers must
// serialize access the same way evaluate() serializes guest tool calls.
type Controller struct {
	phase            Phase
	mutationExecuted bool
}

// NewController creates a controller starting in the given phase.
func NewController(initial Phase) *Controller {
	return &Controller{phase: initial}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// SetPhase transitions the controller to a new phase, driven externally by
// the caller. Every phase change resets the mutation latch.
func (c *Controller) SetPhase(p Phase) {
	c.phase = p
	c.mutationExecuted = false
}

// Check consults the controller exactly once per tool call (spec section
// 4.6). It returns nil when the operation is permitted, or a logic error
// otherwise.
func (c *Controller) Check(op Op) *classify.Error {
	if c.phase == Null {
		if op == OpMutate {
			c.mutationExecuted = true
		}
		return nil
	}

	allowed := allowMatrix[c.phase]
	if !allowed[op] {
		return classify.New(classify.KindLogic,
			fmt.Sprintf("Operation '%s' not allowed in '%s' phase", op, c.phase))
	}

	if op == OpMutate {
		if c.mutationExecuted {
			return classify.New(classify.KindLogic,
				fmt.Sprintf("Operation '%s' not allowed in '%s' phase: mutation already executed this phase", op, c.phase))
		}
		c.mutationExecuted = true
	}

	return nil
}

// ClassifyTopicOp maps a topic-namespace call name to its operation class,
// per the Tool Wrapper's operation-classification rule (spec section 4.4
// step 3): peek/getByIds -> topic_peek, publish -> topic_publish.
func ClassifyTopicOp(callName string) (Op, bool) {
	switch callName {
	case "peek", "getByIds":
		return OpTopicPeek, true
	case "publish":
		return OpTopicPublish, true
	default:
		return "", false
	}
}
