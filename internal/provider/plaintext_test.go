package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		content string
		want    string
	}{
		{name: "text unchanged", format: FormatText, content: "<p>as written</p>", want: "<p>as written</p>"},
		{name: "markdown unchanged", format: FormatMarkdown, content: "For God so *loved*", want: "For God so *loved*"},
		{name: "tags dropped", format: FormatHTML, content: "<div><p>Blessed are the <em>meek</em></p></div>", want: "Blessed are the meek"},
		{name: "blocks separate words", format: FormatHTML, content: "<p>first</p><p>second</p>", want: "first second"},
		{name: "inline joins", format: FormatHTML, content: "<b>G</b>od", want: "God"},
		{name: "scripts dropped", format: FormatHTML, content: "<p>word</p><script>var x = 1</script><style>p{}</style>", want: "word"},
		{name: "entities decoded", format: FormatHTML, content: "<p>bread &amp; wine</p>", want: "bread & wine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.format, tt.content))
		})
	}
}
