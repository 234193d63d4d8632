package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrband/keep.ai-sub004/internal/execctx"
	"github.com/nostrband/keep.ai-sub004/internal/marshal"
	"github.com/nostrband/keep.ai-sub004/internal/phase"
	"github.com/nostrband/keep.ai-sub004/internal/tools"
	"github.com/nostrband/keep.ai-sub004/internal/wrapper"
)

func TestSynchronousArithmetic(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), "const v = 2 + 3\nreturn v", EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, 5, res.Result)
}

func TestHostCallbackRoundTrip(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	err = sb.SetGlobal(map[string]any{
		"toUpper": func(args []any) (any, error) {
			return strings.ToUpper(args[0].(string)), nil
		},
	})
	require.NoError(t, err)

	code := `import "host"

v, _ := host.ToUpper([]any{"guest"})
return v`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, "GUEST", res.Result)
}

func TestHostThrowPropagatesMessage(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	err = sb.SetGlobal(map[string]any{
		"explode": func(args []any) (any, error) {
			panic("host boom")
		},
	})
	require.NoError(t, err)

	code := `import "host"

_, err := host.Explode(nil)
if err != nil {
	panic(err)
}
return nil`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.False(t, res.Ok)
	assert.Contains(t, res.ErrMsg, "host boom")
}

func TestTimeout(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), "for {}\nreturn nil", EvaluateOptions{TimeoutMs: 20})
	require.False(t, res.Ok)
	assert.Contains(t, strings.ToLower(res.ErrMsg), "timed out")
}

func TestInfiniteTimeoutNeverFires(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), "return 1", EvaluateOptions{TimeoutMs: Infinity})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, 1, res.Result)
}

type fakeToken struct {
	aborted bool
	reason  any
	cbs     []func()
}

func (f *fakeToken) Aborted() bool   { return f.aborted }
func (f *fakeToken) Reason() any     { return f.reason }
func (f *fakeToken) OnAbort(cb func()) {
	f.cbs = append(f.cbs, cb)
}
func (f *fakeToken) fire() {
	f.aborted = true
	for _, cb := range f.cbs {
		cb()
	}
}

func TestCancellationBeforeEvaluateIsEager(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	token := &fakeToken{aborted: true}
	res := sb.Evaluate(context.Background(), "return 1", EvaluateOptions{CancelToken: token})
	require.False(t, res.Ok)
	assert.Equal(t, "Aborted", res.ErrMsg)
}

func TestCancellationDuringEvaluate(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	token := &fakeToken{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		token.fire()
	}()

	res := sb.Evaluate(context.Background(), "for {}\nreturn nil", EvaluateOptions{TimeoutMs: Infinity, CancelToken: token})
	require.False(t, res.Ok)
	assert.Equal(t, "Aborted", res.ErrMsg)
}

func TestReentrancyRejected(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	started := make(chan struct{})
	done := make(chan EvalResult, 1)
	go func() {
		close(started)
		done <- sb.Evaluate(context.Background(), "for {}\nreturn nil", EvaluateOptions{TimeoutMs: 50})
	}()
	<-started
	time.Sleep(5 * time.Millisecond)

	res := sb.Evaluate(context.Background(), "return 1", EvaluateOptions{})
	assert.Equal(t, "Sandbox is already evaluating code", res.ErrMsg)

	<-done
}

func TestDisposalMakesFurtherCallsFail(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	sb.Dispose()

	res := sb.Evaluate(context.Background(), "return 1", EvaluateOptions{})
	assert.Equal(t, "Sandbox has been disposed", res.ErrMsg)

	assert.Error(t, sb.SetGlobal(map[string]any{"x": 1}))
}

func TestImportAllowlist(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	code := `import "os"

return 1`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.False(t, res.Ok)
	assert.Contains(t, res.ErrMsg, "not allowed")
}

func newFilesTool(name string, readOnly bool) *tools.Tool {
	return &tools.Tool{
		Namespace:   "Files",
		Name:        name,
		Description: name,
		InputSchema: &tools.Schema{
			Kind:       tools.KindObject,
			Properties: map[string]*tools.Schema{"path": {Kind: tools.KindString}},
			Required:   []string{"path"},
		},
		Execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
		IsReadOnly: func(input map[string]any) bool { return readOnly },
	}
}

func TestInstallToolsGuestCallRejectedByPhase(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(newFilesTool("write", false)))

	w := wrapper.New(wrapper.Options{
		Registry: reg,
		PhaseCtl: phase.NewController(phase.Prepare),
		ExecCtx:  execctx.New(nil, nil),
	})

	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()
	require.NoError(t, sb.InstallTools(context.Background(), w))

	code := `import "host"

_, err := host.Files_Write([]any{map[string]any{"path": "x.txt"}})
if err != nil {
	return err.Error()
}
return "no error"`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Contains(t, res.Result, "not allowed in 'prepare' phase")
}

func TestInstallToolsGuestCallSucceedsWhenPhaseAllows(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(newFilesTool("read", true)))

	w := wrapper.New(wrapper.Options{
		Registry: reg,
		PhaseCtl: phase.NewController(phase.Prepare),
		ExecCtx:  execctx.New(nil, nil),
	})

	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()
	require.NoError(t, sb.InstallTools(context.Background(), w))

	code := `import "host"

out, err := host.Files_Read([]any{map[string]any{"path": "x.txt"}})
if err != nil {
	panic(err)
}
return out`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	out, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, out["ok"])
}

func TestEvaluateSplitsResultStateShape(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	code := `return map[string]any{"result": 7, "state": "step-2"}`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, 7, res.Result)
	assert.Equal(t, "step-2", res.State)
}

func TestEvaluateBareReturnHasZeroState(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), "return 42", EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, 42, res.Result)
	assert.Nil(t, res.State)
}

func TestAwaitAllBuiltinResolvesHostFutures(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	err = sb.SetGlobal(map[string]any{
		"asyncOne": func(args []any) (any, error) {
			f := marshal.NewFuture()
			go f.Resolve("one")
			return f, nil
		},
		"asyncTwo": func(args []any) (any, error) {
			f := marshal.NewFuture()
			go f.Resolve("two")
			return f, nil
		},
	})
	require.NoError(t, err)

	code := `import "host"

f1, _ := host.AsyncOne(nil)
f2, _ := host.AsyncTwo(nil)
results, err := host.AwaitAll([]any{[]any{f1, f2}})
if err != nil {
	panic(err)
}
return results`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Equal(t, []any{"one", "two"}, res.Result)
}

func TestAwaitAllBuiltinPropagatesRejection(t *testing.T) {
	sb, err := New(Options{})
	require.NoError(t, err)
	defer sb.Dispose()

	err = sb.SetGlobal(map[string]any{
		"asyncFail": func(args []any) (any, error) {
			f := marshal.NewFuture()
			go f.Reject(errors.New("downstream failure"))
			return f, nil
		},
	})
	require.NoError(t, err)

	code := `import "host"

f, _ := host.AsyncFail(nil)
_, err := host.AwaitAll([]any{[]any{f}})
if err != nil {
	return err.Error()
}
return "no error"`
	res := sb.Evaluate(context.Background(), code, EvaluateOptions{})
	require.True(t, res.Ok, res.ErrMsg)
	assert.Contains(t, res.Result, "downstream failure")
}
