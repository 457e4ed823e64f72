package highlight

import (
	"bytes"
	"fmt"
	"html"
	"html/template"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const DefaultStyle = "github"

type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func New(styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{
		style:     style,
		formatter: chromahtml.New(
			chromahtml.TabWidth(4),
			chromahtml.WithLineNumbers(true),
			// Numbers go in their own cell so copying the code leaves them behind.
			chromahtml.LineNumbersInTable(true),
		),
	}
}

// HTML renders code in language as an inline-styled <pre> block.
func (h *Highlighter) HTML(code, language string) (template.HTML, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return Plain(code), fmt.Errorf("tokenise %s: %w", language, err)
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		return Plain(code), fmt.Errorf("format %s: %w", language, err)
	}
	return template.HTML(buf.String()), nil
}

// Plain renders text as an escaped <pre> block.
func Plain(text string) template.HTML {
	return template.HTML("<pre><code>" + html.EscapeString(text) + "</code></pre>")
}
