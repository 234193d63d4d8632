// Package sandbox owns a single embedded-interpreter runtime and exposes a
// single-shot, non-reentrant evaluate() operation with deadline/abort
// wiring, a package-import allowlist, and promise-like result resolution
// for host-returned Futures.
//
// The guest language is the Go subset github.com/traefik/yaegi interprets.
// There is no JS-style microtask queue or await keyword; "async" host
// returns are represented by *marshal.Future, which guest code drains via
// a host-exposed blocking host.AwaitAll helper, and the deadline/cancellation
// race happens around that blocking call exactly as it would around an
// awaited promise. InstallTools composes a Wrapper's guest bindings into a
// Sandbox the same way any other global is installed.
package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/nostrband/keep.ai-sub004/internal/external"
	"github.com/nostrband/keep.ai-sub004/internal/logging"
	"github.com/nostrband/keep.ai-sub004/internal/marshal"
	"github.com/nostrband/keep.ai-sub004/internal/wrapper"
)

// state is the sandbox's lifecycle: idle -> running -> idle, with disposed
// as a terminal absorbing state.
type state int32

const (
	stateIdle state = iota
	stateRunning
	stateDisposed
)

// Infinity disables the evaluate deadline when passed as TimeoutMs.
const Infinity int64 = -1

const (
	defaultTimeoutMs         int64 = 300
	defaultMemoryLimitBytes  int64 = 16 * 1024 * 1024
	defaultMaxStackBytes     int64 = 512 * 1024
)

// allowedPackages is the Go-package import allowlist the guest may use,
// grounded on the teacher's yaegi-based tool executor: safe, side-effect
// free packages only, denying os/net/exec/unsafe/syscall.
var allowedPackages = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"path":            true,
	"path/filepath":   true,
	"errors":          true,
}

var importLineRe = regexp.MustCompile(`"([a-zA-Z0-9_./]+)"`)

// Options configures a new Sandbox (spec section 4.2).
type Options struct {
	TimeoutMs        int64 // Infinity disables the deadline; 0 means "use default"
	MemoryLimitBytes int64
	MaxStackBytes    int64
}

func (o Options) resolve() Options {
	if o.TimeoutMs == 0 {
		o.TimeoutMs = defaultTimeoutMs
	}
	if o.MemoryLimitBytes == 0 {
		o.MemoryLimitBytes = defaultMemoryLimitBytes
	}
	if o.MaxStackBytes == 0 {
		o.MaxStackBytes = defaultMaxStackBytes
	}
	return o
}

// EvaluateOptions configures one evaluate() call.
type EvaluateOptions struct {
	State       any
	Filename    string
	TimeoutMs   int64 // 0 means "inherit sandbox default"
	CancelToken external.CancellationToken
}

// EvalResult is the tagged union spec section 3.6 describes.
type EvalResult struct {
	Ok      bool
	Result  any
	State   any
	ErrMsg  string
}

// Sandbox is one interpreter instance. It is not safe to call Evaluate
// concurrently; Evaluate enforces idle-on-entry itself.
type Sandbox struct {
	opts Options

	st    int32 // atomic state
	mu    sync.Mutex
	interp *interp.Interpreter
	marshaller *marshal.Marshaller

	hostBindings  map[string]any
	globalHandles []*marshal.Handle
	runCtx        context.Context // set for the duration of Evaluate, read by awaitAllBuiltin
}

// New initialises a Sandbox with the given options (spec section 4.2
// "initialise").
func New(opts Options) (*Sandbox, error) {
	opts = opts.resolve()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("sandbox: failed to load standard library symbols: %w", err)
	}

	sb := &Sandbox{
		opts:         opts,
		interp:       i,
		marshaller:   marshal.New(),
		hostBindings: make(map[string]any),
	}
	if err := sb.SetGlobal(map[string]any{
		"awaitAll": marshal.HostFunc(sb.awaitAllBuiltin),
	}); err != nil {
		return nil, err
	}
	return sb, nil
}

// awaitAllBuiltin is the guest-visible host.AwaitAll: the pending-job pump's
// Promise.all equivalent (spec section 4.2). It awaits every *marshal.Future
// in args[0] concurrently via marshal.AwaitAll, bound to the current
// Evaluate call's deadline.
func (s *Sandbox) awaitAllBuiltin(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	raw, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("sandbox: awaitAll expects a slice of futures")
	}

	futures := make([]*marshal.Future, 0, len(raw))
	for _, v := range raw {
		fut, ok := v.(*marshal.Future)
		if !ok {
			return nil, fmt.Errorf("sandbox: awaitAll received a non-future value")
		}
		futures = append(futures, fut)
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	return marshal.AwaitAll(ctx, futures)
}

func (s *Sandbox) state() state {
	return state(atomic.LoadInt32(&s.st))
}

// SetGlobal injects bindings into the guest global object. Only legal when
// idle (spec section 4.2). Every value is routed through the Marshaller, the
// same path a tool call's arguments and return value take, so a bound host
// function is wrapped (panics recovered, promise-like returns deferred) and
// a bound data value is converted to its guest-visible shape (see
// marshal.Marshaller.ToHandle; only the top level is copied).
func (s *Sandbox) SetGlobal(bindings map[string]any) error {
	if s.state() == stateDisposed {
		return fmt.Errorf("Sandbox has been disposed")
	}
	if s.state() != stateIdle {
		return fmt.Errorf("Sandbox is not idle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range bindings {
		if err := s.setGlobalLocked(k, v); err != nil {
			return err
		}
	}
	return nil
}

// setGlobalLocked marshals and installs one binding. Callers must hold s.mu.
func (s *Sandbox) setGlobalLocked(name string, v any) error {
	h := s.marshaller.ToHandle(v)
	hostVal, err := s.marshaller.ToHost(h)
	if err != nil {
		s.marshaller.Table().Dispose(h)
		return fmt.Errorf("sandbox: failed to marshal global %q: %w", name, err)
	}

	s.globalHandles = append(s.globalHandles, h)
	s.hostBindings[name] = hostVal
	return s.applyBindings()
}

func (s *Sandbox) applyBindings() error {
	syms := make(map[string]reflect.Value, len(s.hostBindings))
	for k, v := range s.hostBindings {
		syms[exportedName(k)] = reflect.ValueOf(v)
	}
	exports := interp.Exports{"host/host": syms}
	return s.interp.Use(exports)
}

func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// InstallTools materialises the Tool Wrapper's guest surface: one closure
// per registered tool, bound via SetGlobal under the ctx the wrapper's
// calls will run with. Spec section 3.1 describes the guest surface as a
// nested namespace -> { name -> callable } mapping; the Go guest language
// has no ergonomic way to index into a heterogeneous nested map without a
// type assertion at every call site, so each tool is instead bound as a
// single flat "Namespace_Name" symbol (see wrapper.GuestBindings).
func (s *Sandbox) InstallTools(ctx context.Context, w *wrapper.Wrapper) error {
	bindings := w.GuestBindings(ctx)
	hostBindings := make(map[string]any, len(bindings))
	for k, v := range bindings {
		hostBindings[k] = v
	}
	return s.SetGlobal(hostBindings)
}

// Dispose releases the interpreter. Idempotent; makes further calls fail.
func (s *Sandbox) Dispose() {
	atomic.StoreInt32(&s.st, int32(stateDisposed))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.globalHandles {
		s.marshaller.Table().Dispose(h)
	}
	s.globalHandles = nil
}

// validateImports implements the allowlist check, grounded on the
// teacher's naive import-statement scan: it is a defence against the
// common case, not a security boundary on its own (see spec's Non-goals on
// sandbox escape resistance).
func validateImports(code string) error {
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case inBlock:
			if trimmed == ")" {
				inBlock = false
				continue
			}
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case !strings.HasPrefix(trimmed, "import") && !strings.Contains(trimmed, `"`):
			continue
		case !strings.HasPrefix(trimmed, "import") && strings.Contains(trimmed, `"`):
			continue
		}

		matches := importLineRe.FindAllStringSubmatch(trimmed, -1)
		for _, m := range matches {
			pkg := m[1]
			if pkg == "host" {
				continue
			}
			if !allowedPackages[pkg] {
				return fmt.Errorf("import of package %q is not allowed in the sandbox", pkg)
			}
		}
	}
	return nil
}

// wrapCode implements the code-wrapping algorithm of spec section 4.2,
// adapted to a Go guest: the source becomes the body of func Run() any,
// so a bare `return <expr>` is the canonical script return; guest errors
// become Go panics, formatted into EvalResult.ErrMsg at the boundary.
func wrapCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "package ") {
		return code
	}

	imports, body := splitLeadingImports(code)
	return fmt.Sprintf("package main\n\n%s\nfunc Run() any {\n%s\n}\n", imports, body)
}

// splitLeadingImports pulls any leading `import "..."` lines or `import (
// ... )` block off the top of a guest snippet so they can be placed after
// the synthesized package clause, where Go requires them.
func splitLeadingImports(code string) (imports, body string) {
	lines := strings.Split(code, "\n")
	i := 0
	inBlock := false
	var importLines []string

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case inBlock:
			importLines = append(importLines, lines[i])
			if line == ")" {
				inBlock = false
			}
		case line == "":
			continue
		case strings.HasPrefix(line, "import ("):
			importLines = append(importLines, lines[i])
			inBlock = true
		case strings.HasPrefix(line, "import "):
			importLines = append(importLines, lines[i])
		default:
			return strings.Join(importLines, "\n"), strings.Join(lines[i:], "\n")
		}
	}
	return strings.Join(importLines, "\n"), ""
}

// Evaluate runs one script to completion (spec section 4.2). It is
// exclusive: calling Evaluate on a running sandbox fails immediately.
func (s *Sandbox) Evaluate(ctx context.Context, code string, opts EvaluateOptions) EvalResult {
	if s.state() == stateDisposed {
		return EvalResult{ErrMsg: "Sandbox has been disposed"}
	}

	if opts.CancelToken != nil && opts.CancelToken.Aborted() {
		return EvalResult{ErrMsg: abortMessage(opts.CancelToken)}
	}

	if !atomic.CompareAndSwapInt32(&s.st, int32(stateIdle), int32(stateRunning)) {
		return EvalResult{ErrMsg: "Sandbox is already evaluating code"}
	}
	defer atomic.StoreInt32(&s.st, int32(stateIdle))

	if err := validateImports(code); err != nil {
		return EvalResult{ErrMsg: err.Error()}
	}

	timeoutMs := s.opts.TimeoutMs
	if opts.TimeoutMs != 0 {
		timeoutMs = opts.TimeoutMs
	}

	var cancel context.CancelFunc
	evalCtx := ctx
	if timeoutMs != Infinity {
		evalCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	abortCh := make(chan struct{})
	if opts.CancelToken != nil {
		opts.CancelToken.OnAbort(func() {
			select {
			case <-abortCh:
			default:
				close(abortCh)
			}
		})
	}

	if opts.State != nil {
		s.mu.Lock()
		err := s.setGlobalLocked("state", opts.State)
		s.mu.Unlock()
		if err != nil {
			return EvalResult{ErrMsg: err.Error()}
		}
	}

	s.mu.Lock()
	s.runCtx = evalCtx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runCtx = nil
		s.mu.Unlock()
	}()

	s.mu.Lock()
	if _, err := s.interp.Eval(wrapCode(code)); err != nil {
		s.mu.Unlock()
		return EvalResult{ErrMsg: err.Error()}
	}
	runFn, err := s.interp.Eval("main.Run")
	s.mu.Unlock()
	if err != nil {
		return EvalResult{ErrMsg: err.Error()}
	}

	run, ok := runFn.Interface().(func() any)
	if !ok {
		return EvalResult{ErrMsg: "internal: guest Run function has unexpected shape"}
	}

	type outcome struct {
		value any
		err   error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("%v", r)}
			}
		}()
		resultCh <- outcome{value: run()}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			return EvalResult{ErrMsg: out.err.Error()}
		}
		return s.resolvePromiseLike(evalCtx, out.value)

	case <-evalCtx.Done():
		logging.SandboxWarn("evaluate deadline/cancel fired before Run() returned")
		if opts.CancelToken != nil && opts.CancelToken.Aborted() {
			return EvalResult{ErrMsg: abortMessage(opts.CancelToken)}
		}
		return EvalResult{ErrMsg: "Execution timed out"}

	case <-abortCh:
		return EvalResult{ErrMsg: abortMessage(opts.CancelToken)}
	}
}

// resolvePromiseLike implements the promise-resolution algorithm of spec
// section 4.2, adapted for *marshal.Future instead of a JS promise handle.
func (s *Sandbox) resolvePromiseLike(ctx context.Context, value any) EvalResult {
	fut, ok := value.(*marshal.Future)
	if !ok {
		result, state := splitResultState(value)
		return EvalResult{Ok: true, Result: result, State: state}
	}

	select {
	case <-fut.Done():
		v, err := fut.Result()
		if err != nil {
			return EvalResult{ErrMsg: fmt.Sprintf("%s", err.Error())}
		}
		result, state := splitResultState(v)
		return EvalResult{Ok: true, Result: result, State: state}
	case <-ctx.Done():
		return EvalResult{ErrMsg: "Execution timed out"}
	}
}

// splitResultState implements the {result, state?} canonical-return shape
// from spec section 3.6/4.2: a script that returns a map carrying a
// "result" key has its "state" key (if any) pulled out separately; any
// other return value is the result outright, with a zero state.
func splitResultState(value any) (result, state any) {
	if m, ok := value.(map[string]any); ok {
		if r, exists := m["result"]; exists {
			return r, m["state"]
		}
	}
	return value, nil
}

func abortMessage(token external.CancellationToken) string {
	if token == nil {
		return "Aborted"
	}
	if reason := token.Reason(); reason != nil {
		if s, ok := reason.(string); ok && s != "" {
			return s
		}
		return fmt.Sprintf("%v", reason)
	}
	return "Aborted"
}
