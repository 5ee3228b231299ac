package stamp

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

// NormalizeText trims and upper-cases a display label
func NormalizeText(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// EncodeText converts s to WinAnsiEncoding and escapes it for use inside a
// PDF literal string. Runes outside the code page become '?'.
func EncodeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	escaped, err := types.Escape(b.String())
	if err != nil {
		return b.String()
	}
	return *escaped
}
