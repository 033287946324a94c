package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	hl "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		hl.NewHighlighting(hl.WithStyle("github")), // inline colours
	),
)

// chromaLang maps editor language ids to names the highlighter knows.
var chromaLang = map[string]string{
	"astro":      "html",
	"svelte":     "html",
	"vue":        "html",
	"plaintext":  "text",
	"typescript": "ts",
	"javascript": "js",
}

// SourceToHTML renders a document's text as highlighted HTML.
//
//	path – document path, used to guess lang when it is empty
//	lang – editor language id ("astro", "typescript", "markdown", ...)
//
// Markdown is rendered as a document; anything else as one fenced code block.
func SourceToHTML(path, lang, text string) templ.Component {
	if lang == "" {
		lang = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	src := text
	if lang != "md" && lang != "markdown" {
		if mapped, ok := chromaLang[lang]; ok {
			lang = mapped
		}
		fence := "```"
		for strings.Contains(text, fence) {
			fence += "`"
		}
		src = fence + lang + "\n" + text + "\n" + fence
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return templ.ComponentFunc(func(context.Context, io.Writer) error {
			return fmt.Errorf("render %s: %w", path, err)
		})
	}
	return templ.Raw(buf.String())
}
