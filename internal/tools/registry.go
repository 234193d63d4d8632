package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nostrband/keep.ai-sub004/internal/logging"
)

// key is the (namespace, name) pair spec section 3.1 requires to be unique
// within a sandbox session.
type key struct {
	namespace string
	name      string
}

// Registry is the authoritative, thread-safe catalogue of tools for one
// sandbox session. Grounded on the teacher's internal/tools/registry.go
// mutex-guarded map pattern.
type Registry struct {
	mu    sync.RWMutex
	tools map[key]*Tool
	docs  map[string]string

	inputSchemas  map[key]*compiledSchema
	outputSchemas map[key]*compiledSchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:         make(map[key]*Tool),
		docs:          make(map[string]string),
		inputSchemas:  make(map[key]*compiledSchema),
		outputSchemas: make(map[key]*compiledSchema),
	}
}

// Register adds a tool to the registry. Returns an error if the tool is
// invalid, already registered, or its schemas fail to compile.
func (r *Registry) Register(t *Tool) error {
	if err := t.Validate(); err != nil {
		return err
	}

	k := key{t.Namespace, t.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[k]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.FullName())
	}

	inCompiled, err := compile(t.FullName()+".input", t.InputSchema)
	if err != nil {
		return err
	}
	outCompiled, err := compile(t.FullName()+".output", t.OutputSchema)
	if err != nil {
		return err
	}

	r.tools[k] = t
	r.inputSchemas[k] = inCompiled
	r.outputSchemas[k] = outCompiled
	r.docs[t.FullName()] = renderDoc(t)

	logging.ToolsDebug("registered tool %s", t.FullName())
	return nil
}

// MustRegister panics on registration failure; for use at process startup
// wiring built-in tools.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get looks up a tool by namespace and name.
func (r *Registry) Get(namespace, name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[key{namespace, name}]
	return t, ok
}

// Has reports whether a (namespace, name) pair is registered.
func (r *Registry) Has(namespace, name string) bool {
	_, ok := r.Get(namespace, name)
	return ok
}

// ValidateInput validates a decoded input value against the tool's compiled
// input schema.
func (r *Registry) ValidateInput(namespace, name string, input any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inputSchemas[key{namespace, name}].Validate(input)
}

// ValidateOutput validates a decoded output value against the tool's
// compiled output schema.
func (r *Registry) ValidateOutput(namespace, name string, output any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outputSchemas[key{namespace, name}].Validate(output)
}

// Namespaces returns the sorted list of distinct namespaces registered.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range r.tools {
		seen[k.namespace] = true
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// ByNamespace returns the tools registered under a namespace, sorted by
// name.
func (r *Registry) ByNamespace(namespace string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Tool
	for k, t := range r.tools {
		if k.namespace == namespace {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every registered tool, sorted by full name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GetDocs implements the guest-visible getDocs(name) helper from spec
// section 4.3: an exact "Namespace.Name" match, or the concatenation of
// every doc whose key is prefixed by name (namespace-level help).
func (r *Registry) GetDocs(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if doc, ok := r.docs[name]; ok {
		return doc
	}

	keys := make([]string, 0)
	for k := range r.docs {
		if len(k) > len(name) && k[:len(name)] == name {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		out += r.docs[k]
	}
	return out
}
