package codegen

import (
	"strings"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
)

// Annotation is a parsed Python type annotation such as `list[int]` or
// `dict[str, list[float]]`. The zero value means "not annotated".
type Annotation struct {
	Base   string
	Params []Annotation
}

// ParseAnnotation parses the textual form of an annotation. `typing.` prefixes
// are dropped and `T | None` is read as Optional[T].
func ParseAnnotation(s string) Annotation {
	s = strings.TrimSpace(s)
	if s == "" {
		return Annotation{}
	}
	if parts := splitTop(s, '|'); len(parts) == 2 {
		a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch {
		case b == "None":
			return Annotation{Base: "Optional", Params: []Annotation{ParseAnnotation(a)}}
		case a == "None":
			return Annotation{Base: "Optional", Params: []Annotation{ParseAnnotation(b)}}
		}
	}
	s = strings.TrimPrefix(s, "typing.")
	if strings.Contains(s, "[") && strings.HasSuffix(s, "]") {
		idx := strings.Index(s, "[")
		ann := Annotation{Base: strings.TrimSpace(s[:idx])}
		for _, p := range splitTop(s[idx+1:len(s)-1], ',') {
			ann.Params = append(ann.Params, ParseAnnotation(p))
		}
		return ann
	}
	return Annotation{Base: s}
}

// splitTop splits s at sep, ignoring separators nested inside brackets.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// AnnotationOf renders an annotation expression and parses it. String
// constants are forward references.
func AnnotationOf(e pyast.Expr) Annotation {
	if e == nil {
		return Annotation{}
	}
	return ParseAnnotation(annotationText(e))
}

func annotationText(e pyast.Expr) string {
	switch n := e.(type) {
	case *pyast.Name:
		return n.ID
	case *pyast.Constant:
		if s, ok := n.Value.(string); ok {
			return s
		}
		if n.Type == pyast.ConstNone {
			return "None"
		}
	case *pyast.Attribute:
		if name, ok := pyast.DottedName(n); ok {
			return name
		}
	case *pyast.Subscript:
		inner := annotationText(n.Index)
		if t, ok := n.Index.(*pyast.Tuple); ok {
			parts := make([]string, len(t.Elts))
			for i, elt := range t.Elts {
				parts[i] = annotationText(elt)
			}
			inner = strings.Join(parts, ", ")
		}
		return annotationText(n.Value) + "[" + inner + "]"
	case *pyast.BinOp:
		if n.Op == "|" {
			return annotationText(n.Left) + " | " + annotationText(n.Right)
		}
	}
	return ""
}

func (a Annotation) IsZero() bool { return a.Base == "" }

func (a Annotation) String() string {
	if len(a.Params) == 0 {
		return a.Base
	}
	parts := make([]string, len(a.Params))
	for i, p := range a.Params {
		parts[i] = p.String()
	}
	return a.Base + "[" + strings.Join(parts, ", ") + "]"
}

// Kind classifies the annotated value. Optional[T] classifies as T.
func (a Annotation) Kind() infer.Type {
	if a.Base == "Optional" && len(a.Params) == 1 {
		return a.Params[0].Kind()
	}
	return infer.FromAnnotation(a.Base)
}

// Elem is the annotation of the items produced by iterating the value: the
// element of a list, the key of a dict.
func (a Annotation) Elem() Annotation {
	if len(a.Params) > 0 {
		return a.Params[0]
	}
	return Annotation{}
}

// Value is the value annotation of a dict.
func (a Annotation) Value() Annotation {
	if len(a.Params) > 1 {
		return a.Params[1]
	}
	return Annotation{}
}

// sameType reports whether two annotations denote the same Zig type.
func sameType(a, b Annotation) bool {
	if a.String() == b.String() {
		return true
	}
	return a.Kind() == b.Kind() && a.Kind() != infer.Unknown && len(a.Params) == 0 && len(b.Params) == 0
}

// annotationFor builds the annotation equivalent of an inferred type.
func annotationFor(t infer.Type, elem infer.Type) Annotation {
	switch t {
	case infer.Int:
		return Annotation{Base: "int"}
	case infer.Float:
		return Annotation{Base: "float"}
	case infer.String:
		return Annotation{Base: "str"}
	case infer.Sequence:
		return Annotation{Base: "list", Params: []Annotation{annotationFor(elem, infer.Unknown)}}
	case infer.Mapping:
		return Annotation{Base: "dict", Params: []Annotation{{Base: "str"}, annotationFor(elem, infer.Unknown)}}
	}
	return Annotation{}
}

// slot says where a Zig type is spelled. Lists passed as parameters are
// borrowed slices; everywhere else they are owned ArrayLists.
type slot int

const (
	storageSlot slot = iota
	paramSlot
)

var (
	allocReqs = analyzer.RequirementSet{NeedsAllocator: true}
	mapReqs   = analyzer.RequirementSet{NeedsAllocator: true, NeedsHashmapHelper: true}
)

// zigType spells an annotation as a Zig type. It reports false when the
// annotation has no Zig counterpart.
func (m *moduleGen) zigType(st *emit.State, a Annotation, where slot) (string, bool) {
	switch a.Base {
	case "int":
		return "i64", true
	case "float":
		return "f64", true
	case "str", "bytes":
		return "[]const u8", true
	case "bool":
		return "bool", true
	case "None":
		return "void", true
	case "list", "List":
		elem, ok := m.zigType(st, a.Elem(), storageSlot)
		if !ok {
			elem = "i64"
		}
		if where == paramSlot {
			return "[]const " + elem, true
		}
		return "std.ArrayList(" + elem + ")", true
	case "dict", "Dict":
		val, ok := m.zigType(st, a.Value(), storageSlot)
		if !ok {
			val = "i64"
		}
		st.Require(mapReqs)
		key := a.Elem()
		if key.IsZero() || key.Base == "str" {
			return "hashmap_helper.StringHashMap(" + val + ")", true
		}
		k, ok := m.zigType(st, key, storageSlot)
		if !ok {
			return "", false
		}
		return "std.AutoHashMap(" + k + ", " + val + ")", true
	case "Optional":
		inner, ok := m.zigType(st, a.Elem(), where)
		if !ok {
			return "", false
		}
		return "?" + inner, true
	}
	if _, ok := m.classes[a.Base]; ok {
		return "*" + a.Base, true
	}
	return "", false
}
