package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "Trailing blanks",
			source:   "const x: i64 = 1;   \n",
			expected: "const x: i64 = 1;\n",
		},
		{
			name:     "Blank runs collapse",
			source:   "const a = 1;\n\n\n\nconst b = 2;",
			expected: "const a = 1;\n\nconst b = 2;\n",
		},
		{
			name: "No blank line inside braces",
			source: `pub fn main() void {

    _ = 1;

}
`,
			expected: "pub fn main() void {\n    _ = 1;\n}\n",
		},
		{
			name:     "Leading blank lines dropped",
			source:   "\n\nconst std = @import(\"std\");\n\n",
			expected: "const std = @import(\"std\");\n",
		},
		{
			name:     "Empty",
			source:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.source))
		})
	}
}
