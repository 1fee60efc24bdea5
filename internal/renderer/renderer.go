// Package renderer converts Markdown documents into HTML fragments for the
// preview page.
//
// Rendering is a pure function of the input text: the same text always
// yields the same markup, nothing is read from disk, and no input can make
// Render fail. CommonMark plus the GitHub extensions are supported through
// goldmark; fenced code blocks are highlighted with chroma and the output can
// optionally be passed through a bluemonday sanitization policy.
package renderer

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// NoHighlight disables syntax highlighting when used as the style name.
const NoHighlight = "none"

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "github"

// Options configures a Renderer.
type Options struct {
	// HighlightStyle is a chroma style name, or NoHighlight.
	HighlightStyle string
	// Sanitize strips unsafe HTML from the rendered output. When false, raw
	// HTML embedded in the document is passed through untouched.
	Sanitize bool
}

// Renderer turns Markdown text into HTML. It is safe for concurrent use.
type Renderer struct {
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
	highlight *codeBlockRenderer
}

// New creates a renderer with the given options.
func New(opts Options) *Renderer {
	r := &Renderer{}

	rendererOptions := []renderer.Option{
		gmhtml.WithUnsafe(),
	}

	if style := resolveStyle(opts.HighlightStyle); style != nil {
		r.highlight = newCodeBlockRenderer(style)
		rendererOptions = append(rendererOptions,
			renderer.WithNodeRenderers(util.Prioritized(r.highlight, 200)),
		)
	}

	r.markdown = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(rendererOptions...),
	)

	if opts.Sanitize {
		r.policy = newPolicy()
	}

	return r
}

// Render converts text to HTML. Malformed Markdown always has a defined
// rendering; if conversion itself fails the text is shown literally.
func (r *Renderer) Render(text string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			out = literal(text)
		}
	}()

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(text), &buf); err != nil {
		return literal(text)
	}

	out = buf.String()
	if r.policy != nil {
		out = r.policy.Sanitize(out)
	}

	return out
}

// HighlightCSS returns the stylesheet for highlighted code blocks, or an
// empty string when highlighting is disabled.
func (r *Renderer) HighlightCSS() string {
	if r.highlight == nil {
		return ""
	}
	return r.highlight.css()
}

// literal renders text verbatim inside a preformatted block.
func literal(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>\n"
}

func resolveStyle(name string) *chroma.Style {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case NoHighlight:
		return nil
	case "":
		name = DefaultHighlightStyle
	}
	// styles.Get falls back to a default style for unknown names.
	return styles.Get(name)
}

// IsKnownStyle reports whether name is NoHighlight or a registered chroma
// style.
func IsKnownStyle(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == NoHighlight {
		return true
	}
	_, ok := styles.Registry[name]
	return ok
}

var classPattern = regexp.MustCompile(`^[\w\- ]+$`)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// chroma emits class-based spans; task lists emit disabled checkboxes.
	p.AllowAttrs("class").Matching(classPattern).OnElements("pre", "code", "span", "div", "li", "ul", "input")
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	return p
}
