// Package external declares the collaborator interfaces the core consumes
// but does not implement: workflow liveness, connection credentials,
// cancellation, and the tool-level stores named in spec section 6. Callers
// (or internal/storeref, for local testing) provide concrete
// implementations; their schemas are the caller's concern.
package external

import "context"

// WorkflowStatus is the closed set of statuses WorkflowStore.Get reports.
type WorkflowStatus string

const (
	WorkflowActive  WorkflowStatus = "active"
	WorkflowPaused  WorkflowStatus = "paused"
	WorkflowStopped WorkflowStatus = "stopped"
)

// Workflow is the subset of workflow state the liveness check needs.
type Workflow struct {
	ID     string
	Status WorkflowStatus
}

// WorkflowStore is consulted for the workflow-liveness check (Tool Wrapper
// step 1). A nil return with no error means the workflow is unknown to the
// store.
type WorkflowStore interface {
	Get(ctx context.Context, workflowID string) (*Workflow, error)
}

// OAuthCredentials is the caller-owned credential shape returned by
// ConnectionManager.GetCredentials.
type OAuthCredentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// Connection identifies one configured account for a service.
type Connection struct {
	Service   string
	AccountID string
}

// ConnectionManager exposes OAuth connection lookups and error reporting;
// its implementation and storage schema live outside the core.
type ConnectionManager interface {
	GetCredentials(ctx context.Context, service, accountID string) (*OAuthCredentials, error)
	ListConnectionsByService(ctx context.Context, service string) ([]Connection, error)
	MarkError(ctx context.Context, service, accountID, message string) error
}

// CancellationToken is the host-controlled abort signal a caller may pass
// into Sandbox.Evaluate.
type CancellationToken interface {
	Aborted() bool
	Reason() any
	OnAbort(cb func())
}

// ScriptStore, TaskStore, InboxStore, FileStore, MemoryStore, and NoteStore
// are tool-level dependencies: the core only ever needs the methods
// individual tool implementations call on them, so they are intentionally
// left as opaque `any` collaborators here. Tool implementations define
// their own narrower interfaces over the concrete store they need.
type (
	ScriptStore any
	TaskStore   any
	InboxStore  any
	FileStore   any
	MemoryStore any
	NoteStore   any
)
