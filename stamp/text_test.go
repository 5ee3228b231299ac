package stamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "PAID", NormalizeText(" paid "))
	assert.Equal(t, "GEPRÜFT", NormalizeText("geprüft"))
	assert.Equal(t, "", NormalizeText("  "))
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PAID", "PAID"},
		{"(COPY)", `\(COPY\)`},
		{`A\B`, `A\\B`},
		{"GEPRÜFT", "GEPR\xdcFT"},
		{"€", "\x80"},
		{"支付", "??"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeText(tt.in), "input %q", tt.in)
	}
}
