// Package registry maps fully qualified Python symbols to the handlers that
// emit code for them.
//
// Symbols take three shapes:
//   - "module.function" for module-level callables: "json.loads", "math.sqrt"
//   - "builtins.name" for built-in functions: "builtins.print"
//   - "receiver.method" for methods on a value: "str.upper", "list.append"
//
// Method handlers receive the receiver as args[0]. Module attributes that are
// not called (sys.platform) are registered like zero-argument functions.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// Handler emits the code for one call. args are the raw argument nodes, not
// yet lowered; the handler emits every one it uses and must explicitly discard
// any it drops that may have side effects.
type Handler func(st *emit.State, args []pyast.Expr) error

// Variadic is the MaxArgs value of a handler without an upper bound.
const Variadic = -1

// Entry describes one registered handler.
type Entry struct {
	Symbol  string
	Handler Handler

	MinArgs int
	MaxArgs int // Variadic for no upper bound

	// Params names the positional slots so keyword arguments can be placed.
	Params []string

	// Returns classifies the emitted value for the inferrer.
	Returns infer.Type
	// Void handlers produce no value; expression statements skip the discard.
	Void bool
	// Fallible handlers emit a `try`; the enclosing function must return an
	// error union.
	Fallible bool
	// Requires lists the imports and the allocator the emitted code uses.
	Requires analyzer.RequirementSet
}

// CheckArity validates an argument count against the entry's declared range.
func (e *Entry) CheckArity(got int) error {
	if got < e.MinArgs || (e.MaxArgs != Variadic && got > e.MaxArgs) {
		return pyerr.NewArityError(e.Symbol, got, e.MinArgs, e.MaxArgs)
	}
	return nil
}

// ParamIndex returns the positional slot of a keyword argument.
func (e *Entry) ParamIndex(name string) (int, bool) {
	for i, p := range e.Params {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// Registry holds handler entries.
//
// Thread-safe: registration takes the write lock, lookups the read lock, so a
// populated registry can be shared by concurrent compilations.
type Registry struct {
	mu sync.RWMutex

	// entries maps the qualified symbol to its entry
	entries map[string]*Entry

	// methodIndex maps a bare method name to the receivers that define it
	methodIndex map[string][]*Entry

	// modules holds every module prefix with at least one entry
	modules map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:     make(map[string]*Entry),
		methodIndex: make(map[string][]*Entry),
		modules:     make(map[string]struct{}),
	}
}

// Register adds an entry. Registering the same symbol twice is a ConflictError.
func (r *Registry) Register(e Entry) error {
	module, name, ok := splitSymbol(e.Symbol)
	if !ok {
		return fmt.Errorf("invalid symbol %q: want <module>.<name>", e.Symbol)
	}
	if e.Handler == nil {
		return fmt.Errorf("symbol %s: nil handler", e.Symbol)
	}
	if e.MaxArgs != Variadic && e.MaxArgs < e.MinArgs {
		return fmt.Errorf("symbol %s: max args %d below min args %d", e.Symbol, e.MaxArgs, e.MinArgs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.entries[e.Symbol]; dup {
		return &ConflictError{Symbol: e.Symbol}
	}
	entry := e
	r.entries[e.Symbol] = &entry
	r.modules[module] = struct{}{}
	if isReceiver(module) {
		r.methodIndex[name] = append(r.methodIndex[name], &entry)
	}
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for a qualified symbol.
func (r *Registry) Lookup(symbol string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[symbol]
	return e, ok
}

// LookupMethod resolves a method call on a receiver of type t. When t is
// Unknown and exactly one receiver type defines the method, that one is used.
func (r *Registry) LookupMethod(t infer.Type, method string) (*Entry, bool) {
	if recv := ReceiverName(t); recv != "" {
		return r.Lookup(recv + "." + method)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.methodIndex[method]
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return nil, false
}

// HasModule reports whether any symbol is registered under module.
func (r *Registry) HasModule(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[module]
	return ok
}

// Symbols returns every registered symbol in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.entries))
	for s := range r.entries {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Len is the number of registered symbols.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Invoke looks up symbol and runs its entry. line is only used for
// diagnostics.
func (r *Registry) Invoke(st *emit.State, symbol string, args []pyast.Expr, line int) error {
	e, ok := r.Lookup(symbol)
	if !ok {
		return pyerr.NewUnresolvedSymbol(symbol, line)
	}
	return e.Invoke(st, args)
}

// Invoke checks the argument count, records the entry's requirements and runs
// the handler.
func (e *Entry) Invoke(st *emit.State, args []pyast.Expr) error {
	if err := e.CheckArity(len(args)); err != nil {
		return err
	}
	st.Require(e.Requires)
	return e.Handler(st, args)
}

// ConflictError is returned when a symbol is registered twice.
type ConflictError struct {
	Symbol string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("symbol '%s' is already registered; each symbol has exactly one handler", e.Symbol)
}

// ReceiverName is the symbol prefix of methods on values of type t, empty for
// Unknown.
func ReceiverName(t infer.Type) string {
	switch t {
	case infer.String:
		return "str"
	case infer.Sequence:
		return "list"
	case infer.Mapping:
		return "dict"
	case infer.Int:
		return "int"
	case infer.Float:
		return "float"
	}
	return ""
}

func isReceiver(module string) bool {
	switch module {
	case "str", "list", "dict", "int", "float":
		return true
	}
	return false
}

// splitSymbol splits at the last dot so nested modules ("os.path.join") keep
// their full prefix.
func splitSymbol(symbol string) (module, name string, ok bool) {
	i := strings.LastIndexByte(symbol, '.')
	if i <= 0 || i == len(symbol)-1 {
		return "", "", false
	}
	return symbol[:i], symbol[i+1:], true
}
