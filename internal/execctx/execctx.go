// Package execctx defines the per-script-run Execution Context: the
// identifiers, event sink, log sink, and fatal-error slot that Tool Wrapper
// closures read when a guest tool call executes.
package execctx

import (
	"sync"

	"github.com/nostrband/keep.ai-sub004/internal/classify"
)

// TaskType is the closed set of task-run kinds surfaced to event tagging.
type TaskType string

const (
	TaskPlanner    TaskType = "planner"
	TaskMaintainer TaskType = "maintainer"
	TaskWorker     TaskType = "worker"
	TaskWorkflow   TaskType = "workflow"
)

// EventSink is the append-only external collector for structured events.
// It must tolerate high call rates; the core does not batch or buffer.
type EventSink interface {
	CreateEvent(eventType string, payload map[string]any)
}

// LogSink is the append-only external collector for formatted log lines.
type LogSink interface {
	OnLog(line string)
}

// Context is created by the caller before evaluate and is read-only to the
// guest: it is exposed only via bound tool closures, never directly.
type Context struct {
	WorkflowID   string
	ScriptRunID  string
	HandlerRunID string
	TaskRunID    string
	TaskType     TaskType

	events EventSink
	logs   LogSink

	mu              sync.Mutex
	classifiedError *classify.Error
}

// New creates an Execution Context bound to the given sinks. Identifiers
// are set by the caller on the returned Context; CreateEvent does not add
// them to event payloads.
func New(events EventSink, logs LogSink) *Context {
	return &Context{events: events, logs: logs}
}

// CreateEvent appends a structured event to the current run's event log.
func (c *Context) CreateEvent(eventType string, payload map[string]any) {
	if c.events == nil {
		return
	}
	c.events.CreateEvent(eventType, payload)
}

// OnLog appends a formatted log line.
func (c *Context) OnLog(line string) {
	if c.logs == nil {
		return
	}
	c.logs.OnLog(line)
}

// StashClassifiedError records a fatal error before the Tool Wrapper
// triggers sandbox abort, per spec section 3.2 and section 4.4 step 2.
func (c *Context) StashClassifiedError(err *classify.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifiedError = err
}

// ClassifiedError returns the stashed fatal error, if any.
func (c *Context) ClassifiedError() *classify.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifiedError
}

// IsWorkflowMode reports whether this run is bound to a workflow, which
// enables liveness checks and fatal-abort-on-invalid-input (spec section
// 4.4 step 2, section 6).
func (c *Context) IsWorkflowMode() bool {
	return c.WorkflowID != ""
}
