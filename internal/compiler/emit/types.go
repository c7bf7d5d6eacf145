package emit

import "metal0/pyaot/internal/compiler/infer"

// ZigType is the declaration type of values classified as t, empty when t has
// no fixed scalar representation.
func ZigType(t infer.Type) string {
	switch t {
	case infer.Int:
		return "i64"
	case infer.Float:
		return "f64"
	case infer.String:
		return "[]const u8"
	}
	return ""
}

// ElemType is the element type of containers holding values classified as t.
// Unclassified elements are stored as i64.
func ElemType(t infer.Type) string {
	if z := ZigType(t); z != "" {
		return z
	}
	return "i64"
}

// FormatVerb is the std.fmt placeholder that prints values classified as t.
func FormatVerb(t infer.Type) string {
	switch t {
	case infer.Int, infer.Float:
		return "{d}"
	case infer.String:
		return "{s}"
	}
	return "{any}"
}
