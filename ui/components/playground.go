package components

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

// File is one entry of the inline files payload.
type File struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Lang string `json:"lang,omitempty"`
}

// NavItem is one navigation target.
type NavItem struct {
	Path   string
	Active bool
}

// PlaygroundView is everything the root container needs.
type PlaygroundView struct {
	ID         string
	Title      string
	State      string
	Error      string
	PreviewURL string
	Nav        []NavItem
	ActivePath string
	ActiveText string
	Files      []File
}

func esc(s string) string { return templ.EscapeString(s) }

// Page wraps body in the document shell.
func Page(title string, body ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<link rel="stylesheet" href="/static/playground.css">
<link rel="icon" href="/static/favicon.svg" type="image/svg+xml">
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0-beta.11/bundles/datastar.js"></script>
</head>
<body>
<main>`, esc(title))
		if err != nil {
			return err
		}
		for _, c := range body {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</main>\n</body>\n</html>\n")
		return err
	})
}

// Playground renders the root container: navigation, editor, preview, output
// and the inline files payload.
func Playground(v PlaygroundView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		payload, err := json.Marshal(v.Files)
		if err != nil {
			return err
		}
		id := esc(v.ID)
		if _, err := fmt.Fprintf(w, `<section class="playground" id="playground-%s" data-playground="%s" data-on-load="@get('/playgrounds/%s/stream')">`, id, id, id); err != nil {
			return err
		}
		if v.Title != "" {
			if _, err := fmt.Fprintf(w, `<h2>%s</h2>`, esc(v.Title)); err != nil {
				return err
			}
		}
		for _, c := range []templ.Component{
			Nav(v.ID, v.Nav),
			Editor(v.ID, v.ActivePath, v.ActiveText),
			Status(v.ID, v.State, v.Error),
			Preview(v.ID, v.PreviewURL, 0),
		} {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, `<small class="sync" id="sync-%s"></small><pre class="output" id="output-%s"></pre><script type="application/json" data-files>%s</script></section>`, id, id, payload)
		return err
	})
}

// Nav renders the file list and the action buttons. The active file carries
// aria-selected.
func Nav(id string, items []NavItem) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		eid := esc(id)
		if _, err := fmt.Fprintf(w, `<nav data-nav id="nav-%s">`, eid); err != nil {
			return err
		}
		for _, it := range items {
			selected := ""
			if it.Active {
				selected = ` aria-selected="true"`
			}
			p := esc(it.Path)
			if _, err := fmt.Fprintf(w,
				`<button type="button" data-file="%s"%s data-on-click="@post('/playgrounds/%s/select?path=%s')">%s</button>`,
				p, selected, eid, esc(url.QueryEscape(it.Path)), p); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w,
			`<span class="actions">`+
				`<button type="button" data-action="reload" data-on-click="@post('/playgrounds/%[1]s/reload')">Reload</button>`+
				`<button type="button" data-action="reset" data-on-click="@post('/playgrounds/%[1]s/reset')">Reset</button>`+
				`<button type="button" data-action="download" data-on-click="@post('/_api/playground?id=%[1]s')">Download</button>`+
				`</span></nav>`, eid)
		return err
	})
}

// Editor renders the active document as a form posting on input.
func Editor(id, path, text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		eid := esc(id)
		_, err := fmt.Fprintf(w,
			`<form data-editor id="editor-%[1]s" data-on-input__debounce.300ms="@post('/playgrounds/%[1]s/edit', {contentType: 'form'})">`+
				`<input type="hidden" name="path" value="%[2]s">`+
				`<textarea name="text" spellcheck="false" aria-label="%[2]s">%[3]s</textarea></form>`,
			eid, esc(path), esc(text))
		return err
	})
}

// Status renders the controller state.
func Status(id, state, errText string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if errText != "" {
			_, err := fmt.Fprintf(w, `<div class="status failed" id="status-%s" data-state="%s">%s: %s</div>`, esc(id), esc(state), esc(state), esc(errText))
			return err
		}
		_, err := fmt.Fprintf(w, `<div class="status" id="status-%s" data-state="%s">%s</div>`, esc(id), esc(state), esc(state))
		return err
	})
}

// Preview renders the preview frame. Without a URL it shows the loader.
// reloads is part of the element so every reload replaces the frame.
func Preview(id, src string, reloads int) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if src == "" {
			_, err := fmt.Fprintf(w, `<div class="preview loading" id="preview-%s"><span class="loader"></span><iframe data-preview title="preview"></iframe></div>`, esc(id))
			return err
		}
		_, err := fmt.Fprintf(w, `<div class="preview" id="preview-%s" data-reloads="%d"><iframe data-preview title="preview" src="%s"></iframe></div>`,
			esc(id), reloads, esc(string(templ.URL(src))))
		return err
	})
}

// OutputLine renders one dev server line.
func OutputLine(line string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<div>%s</div>", esc(line))
		return err
	})
}

// SyncStatus renders the result of the last write into the sandbox.
func SyncStatus(id, path, errText string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if errText != "" {
			_, err := fmt.Fprintf(w, `<small class="sync failed" id="sync-%s">%s: %s</small>`, esc(id), esc(path), esc(errText))
			return err
		}
		_, err := fmt.Fprintf(w, `<small class="sync" id="sync-%s">saved %s</small>`, esc(id), esc(path))
		return err
	})
}

// SourceView wraps highlighted source HTML.
func SourceView(path string, html templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<article class="source" data-path="%s">`, esc(path)); err != nil {
			return err
		}
		if err := html.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</article>")
		return err
	})
}
