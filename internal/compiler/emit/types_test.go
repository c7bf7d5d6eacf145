package emit

import (
	"testing"

	"metal0/pyaot/internal/compiler/infer"

	"github.com/stretchr/testify/assert"
)

func TestTypeMapping(t *testing.T) {
	tests := []struct {
		in        infer.Type
		zig, elem string
		verb      string
	}{
		{infer.Int, "i64", "i64", "{d}"},
		{infer.Float, "f64", "f64", "{d}"},
		{infer.String, "[]const u8", "[]const u8", "{s}"},
		{infer.Sequence, "", "i64", "{any}"},
		{infer.Unknown, "", "i64", "{any}"},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.zig, ZigType(tt.in))
			assert.Equal(t, tt.elem, ElemType(tt.in))
			assert.Equal(t, tt.verb, FormatVerb(tt.in))
		})
	}
}
