// Package marshal is the only path between host-native Go values and the
// guest interpreter. It enforces the disposal-on-all-paths invariant for
// every handle it creates and owns the function-wrapping contract that lets
// host closures be called from guest code.
//
// The guest language here is the Go subset the embedded interpreter
// (traefik/yaegi) executes. There is no JS-style microtask queue, so
// "promise-like" host returns are represented by *Future, a host-provided
// type the guest can hold and the Sandbox's pending-job pump drains.
package marshal

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handle is an opaque, single-owner reference into the interpreter. Every
// Handle must be disposed exactly once; disposing it again is a no-op.
type Handle struct {
	id       uint64
	value    any
	disposed bool
}

// ID returns the handle's identity, stable for its lifetime.
func (h *Handle) ID() uint64 { return h.id }

// Table owns handle allocation and tracks live handles so callers can
// assert the no-handle-leak invariant after an evaluate() call.
type Table struct {
	mu      sync.Mutex
	nextID  uint64
	live    map[uint64]*Handle
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{live: make(map[uint64]*Handle)}
}

// LiveCount returns the number of currently undisposed handles.
func (t *Table) LiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *Table) alloc(v any) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	h := &Handle{id: t.nextID, value: v}
	t.live[h.id] = h
	return h
}

// Dispose releases a handle. Disposing an already-disposed or nil handle is
// a no-op, matching the teacher convention that a "lifetime not alive"
// condition is swallowed rather than propagated.
func (t *Table) Dispose(h *Handle) error {
	if h == nil || h.disposed {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h.disposed = true
	delete(t.live, h.id)
	return nil
}

// Future is the host-backed stand-in for a guest Promise. It is created by
// the Marshaller when a wrapped host function returns something
// promise-like, and is drained by the Sandbox's pending-job pump.
type Future struct {
	mu       sync.Mutex
	done     chan struct{}
	settled  bool
	value    any
	err      error
}

// NewFuture creates an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles the future with a value. Resolving twice is a no-op.
func (f *Future) Resolve(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.value = v
	f.settled = true
	close(f.done)
}

// Reject settles the future with an error. Rejecting twice is a no-op.
func (f *Future) Reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.err = err
	f.settled = true
	close(f.done)
}

// Done returns a channel closed once the future settles, for the pump's
// select loop.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the settled value/error. Must only be called after Done()
// has fired.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Marshaller converts between host-native values and guest handles.
type Marshaller struct {
	table *Table
}

// New creates a Marshaller backed by a fresh handle table.
func New() *Marshaller {
	return &Marshaller{table: NewTable()}
}

// Table exposes the underlying handle table for leak-accounting assertions.
func (m *Marshaller) Table() *Table { return m.table }

// ToHandle performs the host -> handle conversion described in spec section
// 4.1. Dates and regexes become their RFC 3339 / pattern strings; slices,
// arrays (byte buffers included) and maps are copied one level deep into
// []any / string-keyed map[string]any, with nested values carried over
// as they are, not copied; functions are wrapped (see WrapFunc); any other
// value is stored as given.
func (m *Marshaller) ToHandle(v any) *Handle {
	switch val := v.(type) {
	case time.Time:
		return m.table.alloc(val.UTC().Format(time.RFC3339Nano))
	case *regexp.Regexp:
		return m.table.alloc(val.String())
	case nil:
		return m.table.alloc(nil)
	case func(args []any) (any, error):
		return m.table.alloc(m.WrapFunc(val))
	case HostFunc:
		return m.table.alloc(m.WrapFunc(val))
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			return m.table.alloc(m.copySequence(rv))
		case reflect.Map:
			return m.table.alloc(m.copyMap(rv))
		default:
			return m.table.alloc(v)
		}
	}
}

func (m *Marshaller) copySequence(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func (m *Marshaller) copyMap(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := fmt.Sprintf("%v", iter.Key().Interface())
		out[key] = iter.Value().Interface()
	}
	return out
}

// ToHost performs the handle -> host conversion. Promises (Futures) are
// awaited host-side after the caller has pumped pending guest jobs; this
// function assumes that pumping already happened and the future, if any,
// has settled.
func (m *Marshaller) ToHost(h *Handle) (any, error) {
	if h == nil || h.disposed {
		return nil, fmt.Errorf("marshal: handle not alive")
	}
	if fut, ok := h.value.(*Future); ok {
		select {
		case <-fut.Done():
			return fut.Result()
		default:
			return nil, fmt.Errorf("marshal: future not settled; pump pending jobs first")
		}
	}
	return h.value, nil
}

// AwaitAll is the Promise.all equivalent for the pending-job pump: it waits
// for every Future to settle concurrently, short-circuiting on the first
// rejection or on ctx's deadline, and returns the settled values in the
// same order the futures were given.
func AwaitAll(ctx context.Context, futures []*Future) ([]any, error) {
	results := make([]any, len(futures))

	g, gctx := errgroup.WithContext(ctx)
	for i, fut := range futures {
		i, fut := i, fut
		g.Go(func() error {
			select {
			case <-fut.Done():
				v, err := fut.Result()
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// HostFunc is the host-side shape every wrapped tool/global function has
// before marshalling: it receives already-dumped host arguments and returns
// a host value (possibly a *Future for async results) or an error.
type HostFunc func(args []any) (any, error)

// WrapFunc implements the function-wrapping contract of spec section 4.1:
// arguments are already dumped to host values by the time fn runs (callers
// pass the interpreter's []any args through untouched); synchronous throws
// produce a guest error carrying the host error's message. If fn returns a
// *Future, it is passed through unchanged so the caller can await it via
// the pending-job pump; any other returned value is round-tripped through
// ToHandle/ToHost so guest code receives the same top-level-copied,
// string-keyed shape a plain data return would get.
func (m *Marshaller) WrapFunc(fn HostFunc) func(args []any) (any, error) {
	return func(args []any) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = formatPanic(r)
			}
		}()

		result, err := fn(args)
		if err != nil {
			return nil, err
		}
		if fut, ok := result.(*Future); ok {
			return fut, nil
		}

		h := m.ToHandle(result)
		defer m.table.Dispose(h)
		return m.ToHost(h)
	}
}

func formatPanic(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return fmt.Errorf("%v", r)
}
