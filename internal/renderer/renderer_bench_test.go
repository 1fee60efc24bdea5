package renderer

import (
	"fmt"
	"strings"
	"testing"
)

func benchmarkDocument(sections int) string {
	var sb strings.Builder
	for i := range sections {
		fmt.Fprintf(&sb, "## Section %d\n\nSome *emphasis* and `code` with a [link](https://example.com/%d).\n\n", i, i)
		sb.WriteString("- item one\n- item two\n\n")
		sb.WriteString("```go\nfunc f() int { return 42 }\n```\n\n")
	}
	return sb.String()
}

func BenchmarkRender(b *testing.B) {
	for _, sections := range []int{1, 10, 100} {
		doc := benchmarkDocument(sections)

		b.Run(fmt.Sprintf("sections=%d/highlight", sections), func(b *testing.B) {
			r := New(Options{})
			b.ResetTimer()
			for range b.N {
				r.Render(doc)
			}
		})

		b.Run(fmt.Sprintf("sections=%d/plain", sections), func(b *testing.B) {
			r := New(Options{HighlightStyle: NoHighlight})
			b.ResetTimer()
			for range b.N {
				r.Render(doc)
			}
		})
	}
}

func BenchmarkTitle(b *testing.B) {
	markup := New(Options{}).Render(benchmarkDocument(20))

	b.ResetTimer()
	for range b.N {
		Title(markup)
	}
}
