package export

import (
	"fmt"
	"html"
	"io"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/crewgraph/store"
)

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 800px; margin: 2rem auto; line-height: 1.6; color: #222; }
hr { border: none; border-top: 1px solid #ddd; }
code, pre { background: #f5f5f5; }
</style>
</head>
<body>
%s
</body>
</html>
`

// HTMLExporter renders the Markdown transcript as a standalone HTML page.
type HTMLExporter struct{}

// Export writes rec as HTML.
func (e *HTMLExporter) Export(rec *store.SessionRecord, w io.Writer) error {
	_, err := io.WriteString(w, Page("Session "+rec.ID, Markdown(rec)))
	return err
}

// Extension returns "html".
func (e *HTMLExporter) Extension() string {
	return "html"
}

// RenderMarkdown converts Markdown to sanitized HTML.
func RenderMarkdown(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	htmlFlags := mdhtml.CommonFlags | mdhtml.HrefTargetBlank
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: htmlFlags})
	rendered := markdown.Render(doc, renderer)

	return string(bluemonday.UGCPolicy().SanitizeBytes(rendered))
}

// Page wraps rendered Markdown in a complete HTML document.
func Page(title, md string) string {
	return fmt.Sprintf(htmlPage, html.EscapeString(title), RenderMarkdown(md))
}
