// Package wrapper implements the Tool Wrapper binding layer: for every
// registered tool, it produces a guest callable that in order checks
// workflow liveness, validates input, classifies the operation, checks the
// phase, executes the tool, classifies any thrown error, validates output,
// and returns the result.
package wrapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/nostrband/keep.ai-sub004/internal/classify"
	"github.com/nostrband/keep.ai-sub004/internal/execctx"
	"github.com/nostrband/keep.ai-sub004/internal/external"
	"github.com/nostrband/keep.ai-sub004/internal/logging"
	"github.com/nostrband/keep.ai-sub004/internal/marshal"
	"github.com/nostrband/keep.ai-sub004/internal/phase"
	"github.com/nostrband/keep.ai-sub004/internal/tools"
)

// Wrapper owns the Tool Registry, Phase Controller, and Execution Context
// for a single script run, and builds guest callables over them.
type Wrapper struct {
	registry      *tools.Registry
	phaseCtl      *phase.Controller
	execCtx       *execctx.Context
	workflowStore external.WorkflowStore
	abortFn       func(reason string)
}

// Options configures a Wrapper. WorkflowStore and AbortFn may be nil when
// the run is not in workflow mode.
type Options struct {
	Registry      *tools.Registry
	PhaseCtl      *phase.Controller
	ExecCtx       *execctx.Context
	WorkflowStore external.WorkflowStore
	AbortFn       func(reason string)
}

// New builds a Wrapper from the given Options.
func New(opts Options) *Wrapper {
	return &Wrapper{
		registry:      opts.Registry,
		phaseCtl:      opts.PhaseCtl,
		execCtx:       opts.ExecCtx,
		workflowStore: opts.WorkflowStore,
		abortFn:       opts.AbortFn,
	}
}

// Call runs the full 7-step binding for one guest invocation of
// namespace.name(input). callName disambiguates topic-namespace operation
// names (peek/getByIds/publish) from the default read/mutate
// classification.
func (w *Wrapper) Call(ctx context.Context, namespace, name, callName string, input map[string]any) (map[string]any, error) {
	t, ok := w.registry.Get(namespace, name)
	if !ok {
		return nil, classify.New(classify.KindInternal, fmt.Sprintf("tool not found: %s.%s", namespace, name))
	}
	fullName := t.FullName()

	// Step 1: workflow liveness check.
	if w.execCtx != nil && w.execCtx.IsWorkflowMode() && w.workflowStore != nil {
		wf, err := w.workflowStore.Get(ctx, w.execCtx.WorkflowID)
		if err != nil {
			return nil, classify.Wrap(classify.KindInternal, err, "workflow store lookup failed")
		}
		if wf == nil || wf.Status != external.WorkflowActive {
			return nil, classify.New(classify.KindWorkflowPaused, "workflow is not active")
		}
	}

	// Step 2: input validation.
	if err := w.registry.ValidateInput(namespace, name, input); err != nil {
		logicErr := classify.New(classify.KindLogic,
			fmt.Sprintf("invalid input to %s: %v", fullName, err))
		logicErr.Source = fullName

		if w.execCtx != nil && w.execCtx.IsWorkflowMode() && w.abortFn != nil {
			w.execCtx.StashClassifiedError(logicErr)
			w.abortFn(logicErr.Message)
		}
		return nil, logicErr
	}

	// Step 3: operation classification.
	op := classifyOp(namespace, callName, t, input)

	// Step 4: phase check.
	if phaseErr := w.phaseCtl.Check(op); phaseErr != nil {
		phaseErr.Source = fullName
		return nil, phaseErr
	}

	// Step 5: execute.
	output, err := t.Execute(ctx, input)
	if err != nil {
		wrapped := wrapExecuteError(err, fullName)
		return nil, wrapped
	}

	// Step 6: output validation.
	if err := w.registry.ValidateOutput(namespace, name, output); err != nil {
		return nil, &classify.Error{
			Kind:    classify.KindLogic,
			Message: fmt.Sprintf("invalid output from %s: %v", fullName, err),
			Source:  fullName,
		}
	}

	logging.ToolsDebug("%s executed op=%s", fullName, op)

	// Step 7: record an event and return to guest.
	if w.execCtx != nil {
		w.execCtx.CreateEvent("tool_call", map[string]any{
			"tool":  fullName,
			"op":    string(op),
			"input": input,
		})
	}
	return output, nil
}

// GuestBindings builds one guest-callable closure per registered tool,
// keyed "Namespace_Name". Spec section 3.1 describes the guest surface as
// a nested namespace -> { name -> callable } mapping; a literal nested Go
// map of maps would force every guest call site into a type assertion to
// reach the leaf function, so the flat, capitalised "Namespace_Name" symbol
// is the idiomatic Go stand-in — addressed the same way any other host
// binding is, through a single import "host" call.
func (w *Wrapper) GuestBindings(ctx context.Context) map[string]marshal.HostFunc {
	out := make(map[string]marshal.HostFunc)
	for _, t := range w.registry.All() {
		namespace, name := t.Namespace, t.Name
		out[bindingName(namespace, name)] = w.toolFunc(ctx, namespace, name)
	}
	return out
}

// toolFunc builds the guest-callable closure for one tool. args[0] is the
// input object; an optional args[1] string overrides the call name used for
// topic-namespace operation classification (peek/getByIds/publish).
func (w *Wrapper) toolFunc(ctx context.Context, namespace, name string) marshal.HostFunc {
	return func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s.%s: missing input", namespace, name)
		}
		input, ok := args[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: input must be an object", namespace, name)
		}

		callName := name
		if len(args) > 1 {
			if cn, ok := args[1].(string); ok && cn != "" {
				callName = cn
			}
		}

		return w.Call(ctx, namespace, name, callName, input)
	}
}

func bindingName(namespace, name string) string {
	return exportedWord(namespace) + "_" + exportedWord(name)
}

func exportedWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// classifyOp implements step 3 of spec section 4.4: topic-specific
// namespaces dispatch by call name; everything else dispatches on the
// tool's read-only predicate.
func classifyOp(namespace, callName string, t *tools.Tool, input map[string]any) phase.Op {
	if op, ok := phase.ClassifyTopicOp(callName); ok {
		return op
	}
	if t.ClassifyReadOnly(input) {
		return phase.OpRead
	}
	return phase.OpMutate
}

// wrapExecuteError implements step 5's error handling and the propagation
// rule in spec section 7: a classified error thrown inside a tool is
// re-wrapped preserving its kind; an unclassified throw becomes logic.
func wrapExecuteError(err error, source string) *classify.Error {
	if ce, ok := classify.As(err); ok {
		return classify.WithSource(ce, source)
	}
	return &classify.Error{
		Kind:    classify.KindLogic,
		Message: fmt.Sprintf("Failed at %s: %v", source, err),
		Source:  source,
		Cause:   err,
	}
}
