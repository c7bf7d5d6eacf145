package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

var zigKeywords = map[string]bool{
	"addrspace": true, "align": true, "allowzero": true, "and": true, "anyframe": true,
	"anytype": true, "asm": true, "async": true, "await": true, "break": true,
	"callconv": true, "catch": true, "comptime": true, "const": true, "continue": true,
	"defer": true, "else": true, "enum": true, "errdefer": true, "error": true,
	"export": true, "extern": true, "fn": true, "for": true, "if": true,
	"inline": true, "linksection": true, "noalias": true, "noinline": true, "nosuspend": true,
	"opaque": true, "or": true, "orelse": true, "packed": true, "pub": true,
	"resume": true, "return": true, "struct": true, "suspend": true, "switch": true,
	"test": true, "threadlocal": true, "try": true, "union": true, "unreachable": true,
	"usingnamespace": true, "var": true, "volatile": true, "while": true,
	// primitive type names cannot be shadowed either
	"bool": true, "type": true, "void": true, "u8": true, "i64": true, "f64": true,
	"usize": true, "isize": true, "null": true, "undefined": true, "true": true, "false": true,
}

// zigIdent escapes Python identifiers that collide with Zig keywords or
// primitive names.
func zigIdent(name string) string {
	if zigKeywords[name] {
		return `@"` + name + `"`
	}
	return name
}

// zigString renders s as a Zig string literal.
func zigString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// formatText escapes literal text for a std.fmt format string.
func formatText(s string) string {
	lit := zigString(s)
	lit = strings.ReplaceAll(lit, "{", "{{")
	lit = strings.ReplaceAll(lit, "}", "}}")
	return lit[1 : len(lit)-1]
}

// floatLiteral always carries a fractional part or exponent so Zig reads it
// as a float.
func floatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	switch s {
	case "+Inf":
		return "std.math.inf(f64)"
	case "-Inf":
		return "-std.math.inf(f64)"
	case "NaN":
		return "std.math.nan(f64)"
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
