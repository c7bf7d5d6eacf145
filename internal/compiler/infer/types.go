package infer

// Type is the coarse static classification of an expression's runtime
// representation. Unknown is the zero value and the universal safe default.
type Type int

const (
	Unknown Type = iota
	Int
	Float
	String
	Sequence
	Mapping
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	}
	return "unknown"
}

// IsNumeric reports whether t is Int or Float.
func (t Type) IsNumeric() bool {
	return t == Int || t == Float
}

// Join is the least upper bound of two classifications: equal types join to
// themselves, Int and Float widen to Float, anything else is Unknown.
func Join(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a.IsNumeric() && b.IsNumeric():
		return Float
	}
	return Unknown
}

// JoinAll folds Join over ts. An empty list is Unknown.
func JoinAll(ts ...Type) Type {
	if len(ts) == 0 {
		return Unknown
	}
	acc := ts[0]
	for _, t := range ts[1:] {
		acc = Join(acc, t)
	}
	return acc
}

// FromAnnotation maps a Python annotation name to its classification.
func FromAnnotation(name string) Type {
	switch name {
	case "int":
		return Int
	case "float":
		return Float
	case "str":
		return String
	case "list", "List", "tuple", "Tuple":
		return Sequence
	case "dict", "Dict":
		return Mapping
	}
	return Unknown
}
