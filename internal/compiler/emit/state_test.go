package emit

import (
	"fmt"
	"testing"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nameDispatcher emits names verbatim and calls to names as name().
type nameDispatcher struct{}

func (nameDispatcher) EmitExpr(st *State, e pyast.Expr) error {
	switch n := e.(type) {
	case *pyast.Name:
		st.Write(n.ID)
		return nil
	case *pyast.Call:
		name, ok := pyast.DottedName(n.Func)
		if !ok {
			return fmt.Errorf("callee is not a name")
		}
		st.Write(name + "()")
		return nil
	}
	return fmt.Errorf("unsupported %s", e.Kind())
}

func (nameDispatcher) Infer(e pyast.Expr) infer.Type {
	if n, ok := e.(*pyast.Name); ok {
		switch n.ID {
		case "xs", "arr":
			return infer.Sequence
		case "s":
			return infer.String
		}
		return infer.Int
	}
	return infer.Unknown
}

func (nameDispatcher) ElementType(pyast.Expr) infer.Type { return infer.Int }

func (nameDispatcher) Repr(e pyast.Expr) Repr {
	if n, ok := e.(*pyast.Name); ok {
		switch n.ID {
		case "xs":
			return ReprList
		case "arr":
			return ReprArray
		}
	}
	return ReprValue
}

func TestIndentation(t *testing.T) {
	st := NewState()
	st.Line("fn f() void {")
	err := st.Block(func() error {
		st.Line("a();")
		return st.Block(func() error {
			st.Line("b();")
			return nil
		})
	})
	require.NoError(t, err)
	st.Line("}")

	assert.Equal(t, "fn f() void {\n    a();\n        b();\n}\n", st.String())
	assert.True(t, st.Balanced())
	assert.Equal(t, 2, st.Enters())
	assert.Equal(t, 2, st.Exits())
}

func TestBlockRestoresOnError(t *testing.T) {
	st := NewState()
	err := st.Block(func() error { return fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, st.Depth())
	assert.True(t, st.Balanced())
}

func TestDedentAtTopLevel(t *testing.T) {
	st := NewState()
	assert.Error(t, st.Dedent())
	assert.True(t, st.Balanced())
}

func TestCustomIndent(t *testing.T) {
	st := NewState(WithIndent("\t"), WithAllocatorName("alloc"))
	st.Indent()
	st.Line("x;")
	require.NoError(t, st.Dedent())
	assert.Equal(t, "\tx;\n", st.String())
	assert.Zero(t, st.AllocatorUses())
	assert.Equal(t, "alloc", st.Allocator())
	assert.Equal(t, 1, st.AllocatorUses())
}

func TestNewLabelIsUnique(t *testing.T) {
	st := NewState()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		for _, prefix := range []string{"super", "list", "super"} {
			l := st.NewLabel(prefix)
			assert.False(t, seen[l], "duplicate label %s", l)
			seen[l] = true
		}
	}
	assert.Equal(t, 150, st.Labels())
}

func TestNewLabelSkipsReservedNames(t *testing.T) {
	st := NewState()
	st.Reserve("list_1", "super_3_self", "x")

	assert.Equal(t, "list_2", st.NewLabel("list"))
	assert.Equal(t, "super_4", st.NewLabel("super"), "derived super_3_self is taken")
	assert.Equal(t, "x_5", st.NewLabel("x"))
	assert.Equal(t, 5, st.Labels())
}

func TestTryCounting(t *testing.T) {
	st := NewState()
	assert.Equal(t, "try ", st.Try())
	assert.Equal(t, "", st.EndTry())
	assert.Equal(t, "return err;", st.Propagate("err"))
	assert.Equal(t, 2, st.Tries())

	st.EnterTry("try_1")
	assert.Equal(t, "(", st.Try())
	assert.Equal(t, " catch |try_1_e| break :try_1_body try_1_e)", st.EndTry())
	st.EnterTry("try_2")
	assert.Equal(t, 0, st.ExitTry())
	assert.Equal(t, "break :try_1_body try_2_err;", st.Propagate("try_2_err"))
	assert.Equal(t, 2, st.ExitTry())
	assert.Equal(t, 0, st.ExitTry())

	assert.Equal(t, 2, st.Tries(), "caught calls do not make the function fallible")
	assert.Equal(t, 2, st.Caught())
}

func TestCaptureLinesAndSplice(t *testing.T) {
	st := NewState()
	st.Line("{")
	var lines string
	err := st.Block(func() error {
		var err error
		lines, err = st.CaptureLines(func() error {
			return st.Block(func() error {
				st.Line("a();")
				st.Line("b();")
				return nil
			})
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "        a();\n        b();\n", lines)
	assert.Equal(t, "{\n", st.String())

	st.Splice(lines, 1)
	st.Line("}")
	assert.Equal(t, "{\n    a();\n    b();\n}\n", st.String())
	assert.True(t, st.Balanced())
}

func TestClassContext(t *testing.T) {
	st := NewState()
	_, ok := st.CurrentClass()
	assert.False(t, ok)

	st.EnterClass("Dog", "Animal")
	st.EnterClass("Inner", "")
	c, ok := st.CurrentClass()
	require.True(t, ok)
	assert.Equal(t, "Inner", c.Name)

	st.ExitClass()
	c, _ = st.CurrentClass()
	assert.Equal(t, ClassContext{Name: "Dog", Parent: "Animal"}, c)
	st.ExitClass()
	st.ExitClass()
	_, ok = st.CurrentClass()
	assert.False(t, ok)
}

func TestEmitWithoutDispatcher(t *testing.T) {
	st := NewState()
	assert.Error(t, st.EmitExpr(pyast.Ident("x")))
	assert.Equal(t, infer.Unknown, st.Infer(pyast.Ident("x")))
}

func TestEmitArgs(t *testing.T) {
	st := NewState()
	st.SetDispatcher(nameDispatcher{})
	require.NoError(t, st.EmitArgs([]pyast.Expr{pyast.Ident("a"), pyast.CallName("b")}))
	assert.Equal(t, "a, b()", st.String())
	assert.Equal(t, infer.Int, st.Infer(pyast.Ident("a")))
}

func TestDiscard(t *testing.T) {
	t.Run("no calls", func(t *testing.T) {
		st := NewState()
		st.SetDispatcher(nameDispatcher{})
		require.NoError(t, st.Discard([]pyast.Expr{pyast.Ident("x"), pyast.Ident("int")}, "true"))
		assert.Equal(t, "true", st.String())
		assert.Equal(t, 0, st.Labels())
	})

	t.Run("call argument is evaluated", func(t *testing.T) {
		st := NewState()
		st.SetDispatcher(nameDispatcher{})
		require.NoError(t, st.Discard([]pyast.Expr{pyast.CallName("make"), pyast.Ident("int")}, "false"))
		assert.Equal(t, "discard_1: {\n    _ = make();\n    break :discard_1 false;\n}", st.String())
		assert.True(t, st.Balanced())
	})

	t.Run("error propagates", func(t *testing.T) {
		st := NewState()
		st.SetDispatcher(nameDispatcher{})
		err := st.Discard([]pyast.Expr{&pyast.Call{Func: pyast.Str("bad")}}, "true")
		assert.EqualError(t, err, "callee is not a name")
		assert.True(t, st.Balanced())
	})
}

func TestEmitSlice(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"xs", "xs.items"},
		{"arr", "&arr"},
		{"s", "s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewState()
			st.SetDispatcher(nameDispatcher{})
			require.NoError(t, st.EmitSlice(pyast.Ident(tt.name)))
			assert.Equal(t, tt.want, st.String())
		})
	}
}

func TestReprWithoutDispatcher(t *testing.T) {
	st := NewState()
	assert.Equal(t, ReprValue, st.Repr(pyast.Ident("xs")))
	assert.False(t, st.Allocated(pyast.Ident("xs")))
	assert.Equal(t, infer.Unknown, st.ElementType(pyast.Ident("xs")))
}

func TestCapture(t *testing.T) {
	st := NewState()
	st.SetDispatcher(nameDispatcher{})
	st.Write("before ")

	text, err := st.CaptureExpr(pyast.CallName("f"))
	require.NoError(t, err)
	assert.Equal(t, "f()", text)

	label, err := st.Capture(func() error {
		st.Write(st.NewLabel("blk"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "blk_1", label)
	assert.Equal(t, "before ", st.String())
	assert.Equal(t, "blk_2", st.NewLabel("blk"))
}

func TestRequire(t *testing.T) {
	st := NewState()
	assert.True(t, st.Requirements().IsEmpty())
	st.Require(analyzer.RequirementSet{NeedsAllocator: true})
	st.Require(analyzer.RequirementSet{NeedsStd: true})
	assert.Equal(t, analyzer.RequirementSet{NeedsAllocator: true, NeedsStd: true}, st.Requirements())
}
