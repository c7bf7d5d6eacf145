package frontend

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"metal0/pyaot/internal/pyast"
)

// literal is the decoded form of one string token.
type literal struct {
	fstring bool
	parts   []pyast.FStringPart
}

// str lowers a string token into a constant, or into an FString when it
// carries an f prefix.
func (c *converter) str(n *sitter.Node) (pyast.Expr, error) {
	lit, err := c.literal(n)
	if err != nil {
		return nil, err
	}
	return lit.expr(pos(n)), nil
}

// concatenated joins adjacent string tokens: "a" f"{b}" "c".
func (c *converter) concatenated(n *sitter.Node) (pyast.Expr, error) {
	var out literal
	for _, child := range named(n) {
		lit, err := c.literal(child)
		if err != nil {
			return nil, err
		}
		out.fstring = out.fstring || lit.fstring
		out.parts = appendParts(out.parts, lit.parts...)
	}
	return out.expr(pos(n)), nil
}

func (l literal) expr(p pyast.Position) pyast.Expr {
	if !l.fstring {
		var b strings.Builder
		for _, part := range l.parts {
			b.WriteString(part.Literal)
		}
		return &pyast.Constant{Position: p, Value: b.String(), Type: pyast.ConstStr}
	}
	return &pyast.FString{Position: p, Parts: l.parts}
}

// appendParts merges adjacent literal parts.
func appendParts(parts []pyast.FStringPart, more ...pyast.FStringPart) []pyast.FStringPart {
	for _, part := range more {
		if part.Expr == nil {
			if part.Literal == "" {
				continue
			}
			if n := len(parts); n > 0 && parts[n-1].Expr == nil {
				parts[n-1].Literal += part.Literal
				continue
			}
		}
		parts = append(parts, part)
	}
	return parts
}

// literal decodes a string token. The body is read from the source between
// the quotes; interpolation children cut it into literal runs.
func (c *converter) literal(n *sitter.Node) (literal, error) {
	raw := c.text(n)
	prefix := 0
	for prefix < len(raw) && strings.ContainsRune("rRbBuUfF", rune(raw[prefix])) {
		prefix++
	}
	flags := strings.ToLower(raw[:prefix])
	quote := 1
	if rest := raw[prefix:]; strings.HasPrefix(rest, `"""`) || strings.HasPrefix(rest, "'''") {
		quote = 3
	}
	if len(raw) < prefix+2*quote {
		return literal{}, c.errorf(n, "malformed string literal")
	}

	lit := literal{fstring: strings.Contains(flags, "f")}
	rawMode := strings.Contains(flags, "r")
	start := int(n.StartByte()) + prefix + quote
	end := int(n.EndByte()) - quote

	decode := func(s string) string {
		if lit.fstring {
			s = strings.ReplaceAll(strings.ReplaceAll(s, "{{", "{"), "}}", "}")
		}
		if !rawMode {
			s = unescape(s)
		}
		return s
	}

	cursor := start
	for _, child := range named(n) {
		if child.Type() != "interpolation" {
			continue
		}
		from, to := int(child.StartByte()), int(child.EndByte())
		if from > cursor {
			lit.parts = appendParts(lit.parts, pyast.FStringPart{Literal: decode(string(c.src[cursor:from]))})
		}
		part, err := c.interpolation(child)
		if err != nil {
			return literal{}, err
		}
		lit.parts = append(lit.parts, part)
		cursor = to
	}
	if end > cursor {
		lit.parts = appendParts(lit.parts, pyast.FStringPart{Literal: decode(string(c.src[cursor:end]))})
	}
	return lit, nil
}

// interpolation reads `{expr!conv:spec}`. Conversions are dropped; nested
// replacement fields in the format specifier are rejected.
func (c *converter) interpolation(n *sitter.Node) (pyast.FStringPart, error) {
	var part pyast.FStringPart
	for _, child := range named(n) {
		switch child.Type() {
		case "type_conversion":
		case "format_specifier":
			for _, inner := range named(child) {
				if inner.Type() == "interpolation" || inner.Type() == "format_expression" {
					return part, c.errorf(child, "nested format specifiers are not supported")
				}
			}
			part.Spec = strings.TrimPrefix(c.text(child), ":")
		default:
			if part.Expr != nil {
				continue
			}
			e, err := c.expr(child)
			if err != nil {
				return part, err
			}
			part.Expr = e
		}
	}
	if part.Expr == nil {
		return part, c.errorf(n, "empty f-string expression")
	}
	return part, nil
}

var hexWidth = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// unescape decodes Python backslash escapes. Unknown escapes keep the
// backslash, as Python does.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 == len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x', 'u', 'U':
			width := hexWidth[e]
			if i+width < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
					b.WriteRune(rune(v))
					i += width
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(e)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			b.WriteRune(rune(v))
			i = j - 1
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}
