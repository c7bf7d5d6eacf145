package codegen

import (
	"bufio"
	"bytes"
	"strings"
)

// Format normalizes whitespace of generated Zig: trailing blanks go, runs of
// blank lines collapse to one, no blank line follows an opening brace or
// precedes a closing one, and the file ends in exactly one newline.
func Format(src string) string {
	var (
		buf     bytes.Buffer
		pending bool
		prev    string
	)
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), len(src)+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		if line == "" {
			pending = buf.Len() > 0
			continue
		}
		trimmed := strings.TrimSpace(line)
		if pending && !strings.HasSuffix(prev, "{") && !strings.HasPrefix(trimmed, "}") {
			buf.WriteByte('\n')
		}
		pending = false
		buf.WriteString(line)
		buf.WriteByte('\n')
		prev = trimmed
	}
	return buf.String()
}
