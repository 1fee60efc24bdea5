package renderer

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// codeBlockRenderer replaces goldmark's fenced code block output with
// chroma-highlighted markup. Blocks without a language, or whose language
// is unknown, are written as plain escaped code.
type codeBlockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func newCodeBlockRenderer(style *chroma.Style) *codeBlockRenderer {
	return &codeBlockRenderer{
		style:     style,
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
	}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCodeBlock)
}

func (c *codeBlockRenderer) renderFencedCodeBlock(
	w util.BufWriter,
	source []byte,
	node ast.Node,
	entering bool,
) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	block := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	language := strings.ToLower(string(block.Language(source)))

	if lexer := lookupLexer(language); lexer != nil {
		var highlighted bytes.Buffer
		if err := c.highlight(&highlighted, lexer, code.String()); err == nil {
			_, _ = w.Write(highlighted.Bytes())
			return ast.WalkSkipChildren, nil
		}
	}

	writePlain(w, language, code.Bytes())
	return ast.WalkSkipChildren, nil
}

func (c *codeBlockRenderer) highlight(buf *bytes.Buffer, lexer chroma.Lexer, code string) error {
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}
	return c.formatter.Format(buf, c.style, iterator)
}

func (c *codeBlockRenderer) css() string {
	var buf bytes.Buffer
	if err := c.formatter.WriteCSS(&buf, c.style); err != nil {
		return ""
	}
	return buf.String()
}

func lookupLexer(language string) chroma.Lexer {
	if language == "" {
		return nil
	}
	lexer := lexers.Get(language)
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}

func writePlain(w util.BufWriter, language string, code []byte) {
	_, _ = w.WriteString("<pre><code")
	if language != "" {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML([]byte(language)))
		_, _ = w.WriteString(`"`)
	}
	_, _ = w.WriteString(">")
	_, _ = w.Write(util.EscapeHTML(code))
	_, _ = w.WriteString("</code></pre>\n")
}
