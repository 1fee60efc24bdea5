package server

import (
	"context"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// PageData is everything the bootstrap page needs at render time.
type PageData struct {
	Title         string
	WebSocketPort int
	Content       string
	Stylesheet    string
	Highlight     bool
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- if .Highlight}}
<link rel="stylesheet" href="/static/highlight.css">
{{- end}}
<style id="stylesheet">{{.Stylesheet}}</style>
</head>
<body data-ws-port="{{.WebSocketPort}}">
<main id="content" class="markdown-body">{{.Content}}</main>
<div id="connection" data-state="connecting" hidden></div>
<script src="/static/viewer.js"></script>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// pageView carries the fields html/template must not escape. Content is
// markup produced by the renderer and Stylesheet is the user's own CSS.
type pageView struct {
	Title         string
	WebSocketPort int
	Content       template.HTML
	Stylesheet    template.CSS
	Highlight     bool
}

// Page renders the self-contained viewer page. Content and Stylesheet are
// inlined for first paint; viewer.js then keeps them current over the
// websocket on WebSocketPort.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return pageTmpl.Execute(w, pageView{
			Title:         data.Title,
			WebSocketPort: data.WebSocketPort,
			Content:       template.HTML(data.Content),
			Stylesheet:    template.CSS(inlineStyle(data.Stylesheet)),
			Highlight:     data.Highlight,
		})
	})
}

// inlineStyle keeps a stylesheet from closing its own <style> element.
// Trusted CSS passes through html/template untouched.
func inlineStyle(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
