package registry

import (
	"fmt"
	"sync"
	"testing"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func literal(text string) Handler {
	return func(st *emit.State, _ []pyast.Expr) error {
		st.Write(text)
		return nil
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r)
	assert.Empty(t, r.Symbols())
	assert.Equal(t, 0, r.Len())
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Entry{Symbol: "json.loads", Handler: literal("x"), MinArgs: 1, MaxArgs: 1}))
	require.NoError(t, r.Register(Entry{Symbol: "os.path.join", Handler: literal("x"), MinArgs: 1, MaxArgs: Variadic}))
	require.NoError(t, r.Register(Entry{Symbol: "str.upper", Handler: literal("x"), MinArgs: 1, MaxArgs: 1, Returns: infer.String}))

	e, ok := r.Lookup("json.loads")
	require.True(t, ok)
	assert.Equal(t, "json.loads", e.Symbol)

	_, ok = r.Lookup("json.dumps")
	assert.False(t, ok)

	assert.True(t, r.HasModule("json"))
	assert.True(t, r.HasModule("os.path"))
	assert.False(t, r.HasModule("os"))
	assert.Equal(t, []string{"json.loads", "os.path.join", "str.upper"}, r.Symbols())
}

func TestRegisterRejects(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"no module", Entry{Symbol: "print", Handler: literal("")}},
		{"trailing dot", Entry{Symbol: "json.", Handler: literal("")}},
		{"nil handler", Entry{Symbol: "json.loads"}},
		{"inverted range", Entry{Symbol: "json.loads", Handler: literal(""), MinArgs: 2, MaxArgs: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRegistry().Register(tt.entry))
		})
	}
}

func TestConflict(t *testing.T) {
	r := NewRegistry()
	e := Entry{Symbol: "builtins.len", Handler: literal(""), MinArgs: 1, MaxArgs: 1}
	require.NoError(t, r.Register(e))

	err := r.Register(e)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "builtins.len", conflict.Symbol)
	assert.Contains(t, err.Error(), "already registered")

	assert.Panics(t, func() { r.MustRegister(e) })
}

func TestLookupMethod(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Entry{Symbol: "str.upper", Handler: literal(""), MinArgs: 1, MaxArgs: 1})
	r.MustRegister(Entry{Symbol: "str.find", Handler: literal(""), MinArgs: 2, MaxArgs: 2})
	r.MustRegister(Entry{Symbol: "list.append", Handler: literal(""), MinArgs: 2, MaxArgs: 2})
	r.MustRegister(Entry{Symbol: "list.index", Handler: literal(""), MinArgs: 2, MaxArgs: 2})
	r.MustRegister(Entry{Symbol: "str.index", Handler: literal(""), MinArgs: 2, MaxArgs: 2})

	tests := []struct {
		name   string
		recv   infer.Type
		method string
		want   string
		found  bool
	}{
		{"typed receiver", infer.String, "upper", "str.upper", true},
		{"typed receiver missing method", infer.Sequence, "upper", "", false},
		{"unknown receiver unique method", infer.Unknown, "append", "list.append", true},
		{"unknown receiver ambiguous method", infer.Unknown, "index", "", false},
		{"unknown receiver missing method", infer.Unknown, "frobnicate", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := r.LookupMethod(tt.recv, tt.method)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, e.Symbol)
			}
		})
	}
}

func TestModuleEntriesAreNotMethods(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Entry{Symbol: "json.loads", Handler: literal(""), MinArgs: 1, MaxArgs: 1})
	_, ok := r.LookupMethod(infer.Unknown, "loads")
	assert.False(t, ok)
}

func TestInvoke(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Entry{Symbol: "math.pi", Handler: literal("std.math.pi")})
	r.MustRegister(Entry{Symbol: "builtins.min", Handler: literal("min"), MinArgs: 1, MaxArgs: Variadic})

	t.Run("runs handler", func(t *testing.T) {
		st := emit.NewState()
		require.NoError(t, r.Invoke(st, "math.pi", nil, 3))
		assert.Equal(t, "std.math.pi", st.String())
	})

	t.Run("unresolved symbol", func(t *testing.T) {
		st := emit.NewState()
		err := r.Invoke(st, "foo.bar", nil, 7)
		var unresolved *pyerr.UnresolvedSymbolError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, "foo.bar", unresolved.Symbol)
		assert.Equal(t, 7, unresolved.Line)
		assert.Empty(t, st.String())
	})

	t.Run("too few arguments", func(t *testing.T) {
		st := emit.NewState()
		err := r.Invoke(st, "builtins.min", nil, 1)
		var arity *pyerr.ArityError
		require.ErrorAs(t, err, &arity)
		assert.Equal(t, 0, arity.Got)
		assert.Empty(t, st.String())
	})

	t.Run("records requirements", func(t *testing.T) {
		r.MustRegister(Entry{
			Symbol: "json.dumps", Handler: literal("json.stringify()"), MinArgs: 0, MaxArgs: 0,
			Requires: analyzer.RequirementSet{NeedsJSON: true, NeedsAllocator: true},
		})
		st := emit.NewState()
		require.NoError(t, r.Invoke(st, "json.dumps", nil, 1))
		assert.True(t, st.Requirements().NeedsJSON)
		assert.True(t, st.Requirements().NeedsAllocator)
	})

	t.Run("too many arguments", func(t *testing.T) {
		err := r.Invoke(emit.NewState(), "math.pi", []pyast.Expr{pyast.Int(1)}, 1)
		var arity *pyerr.ArityError
		assert.ErrorAs(t, err, &arity)
	})
}

func TestParamIndex(t *testing.T) {
	e := Entry{Params: []string{"obj", "indent"}}
	i, ok := e.ParamIndex("indent")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = e.ParamIndex("sort_keys")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.MustRegister(Entry{Symbol: fmt.Sprintf("mod%d.fn", i), Handler: literal("")})
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Symbols()
			_, _ = r.Lookup("mod0.fn")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}
