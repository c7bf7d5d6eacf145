// Package callpattern builds registry handlers from declarative descriptors
// for the three call shapes that cover most of the standard library surface:
// a fixed-arity call, a call with optional trailing arguments, and a call whose
// result is projected through a field.
package callpattern

import (
	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// Descriptor declares how one Python callable maps onto a target call.
type Descriptor struct {
	// Symbol is the qualified Python name, "json.loads".
	Symbol string
	// Target is the emitted callee, "json.parse". For Receiver descriptors it
	// is the method name called on the first argument.
	Target string

	MinArgs int
	// MaxArgs is only read by Variadic when no Defaults are given; use
	// registry.Variadic for no upper bound.
	MaxArgs int

	// Field is the member read from the call result by Projecting.
	Field string
	// Allocator passes the allocator as the first target argument.
	Allocator bool
	// Fallible prefixes the call with try.
	Fallible bool
	// Receiver emits args[0] as the method receiver.
	Receiver bool
	// Defaults are target-language literals for omitted trailing arguments.
	Defaults []string
	// Params names the Python positional parameters, for keyword arguments.
	Params []string

	// Requires lists the imports the target call depends on. Allocator
	// descriptors add NeedsAllocator on their own.
	Requires analyzer.RequirementSet

	Returns infer.Type
	Void    bool
}

// Fixed produces a handler that requires exactly MinArgs arguments.
func Fixed(d Descriptor) registry.Entry {
	return d.entry(d.MinArgs, func(st *emit.State, args []pyast.Expr) error {
		return d.emitCall(st, args, nil)
	})
}

// Variadic produces a handler for a call with optional trailing arguments.
// Omitted arguments are filled from Defaults in order, so the target always
// receives MinArgs+len(Defaults) arguments. Without Defaults the handler
// forwards whatever it receives up to MaxArgs.
func Variadic(d Descriptor) registry.Entry {
	max := d.MaxArgs
	if len(d.Defaults) > 0 {
		max = d.MinArgs + len(d.Defaults)
	}
	return d.entry(max, func(st *emit.State, args []pyast.Expr) error {
		var fill []string
		if len(d.Defaults) > 0 {
			fill = d.Defaults[len(args)-d.MinArgs:]
		}
		return d.emitCall(st, args, fill)
	})
}

// Projecting produces a fixed-arity handler that reads Field from the result:
// `(try json.parse(allocator, s)).value`.
func Projecting(d Descriptor) registry.Entry {
	return d.entry(d.MinArgs, func(st *emit.State, args []pyast.Expr) error {
		if d.Fallible {
			st.Write("(")
		}
		if err := d.emitCall(st, args, nil); err != nil {
			return err
		}
		if d.Fallible {
			st.Write(")")
		}
		st.Write("." + d.Field)
		return nil
	})
}

// Register adds entries to r, stopping at the first error.
func Register(r *registry.Registry, entries ...registry.Entry) error {
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

func (d Descriptor) entry(max int, emitFn registry.Handler) registry.Entry {
	e := registry.Entry{
		Symbol:   d.Symbol,
		MinArgs:  d.MinArgs,
		MaxArgs:  max,
		Params:   d.Params,
		Returns:  d.Returns,
		Void:     d.Void,
		Fallible: d.Fallible,
		Requires: d.Requires,
	}
	if d.Allocator {
		e.Requires.NeedsAllocator = true
	}
	e.Handler = func(st *emit.State, args []pyast.Expr) error {
		if err := e.CheckArity(len(args)); err != nil {
			return err
		}
		return emitFn(st, args)
	}
	return e
}

func (d Descriptor) emitCall(st *emit.State, args []pyast.Expr, fill []string) error {
	if d.Receiver && len(args) == 0 {
		return pyerr.NewArityError(d.Symbol, 0, 1, d.MaxArgs)
	}
	if d.Fallible {
		st.Write(st.Try())
	}

	rest := args
	if d.Receiver {
		if err := st.EmitExpr(args[0]); err != nil {
			return err
		}
		st.Write(".")
		rest = args[1:]
	}
	st.Write(d.Target + "(")

	n := 0
	sep := func() {
		if n > 0 {
			st.Write(", ")
		}
		n++
	}
	if d.Allocator {
		sep()
		st.Write(st.Allocator())
	}
	for _, a := range rest {
		sep()
		if err := st.EmitExpr(a); err != nil {
			return err
		}
	}
	for _, lit := range fill {
		sep()
		st.Write(lit)
	}
	st.Write(")")
	if d.Fallible {
		st.Write(st.EndTry())
	}
	return nil
}
