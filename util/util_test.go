package util

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subj string
		want          bool
	}{
		{"event.playground.*.state", "event.playground.project-0.state", true},
		{"event.playground.*.state", "event.playground.project-0.output", false},
		{"event.playground.>", "event.playground.project-0.output", true},
		{"event.playground.*", "event.playground.project-0.output", false},
		{">", "anything.at.all", true},
		{"event.playground.>", "event.playground", false},
		{"a.b", "a.b", true},
		{"a.b.c", "a.b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubjectMatches(tt.pattern, tt.subj), "%s ~ %s", tt.pattern, tt.subj)
	}
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "project-3", SubjectToken("event.playground.project-3.state", 2))
	assert.Equal(t, "", SubjectToken("event.playground", 2))
	assert.Equal(t, "", SubjectToken("event", -1))
	assert.Equal(t, "project-3", PlaygroundOf("command.playground.project-3.edit"))
	assert.Equal(t, "", PlaygroundOf("event.sandbox.server.ready"))
}

func TestSelectorFor(t *testing.T) {
	assert.Equal(t, "#output-project-0", SelectorFor("event.playground.project-0.state"))
	assert.Equal(t, "#sub-event-sandbox-server-ready", SelectorFor("event.sandbox.server.ready"))
	assert.Equal(t, "#sub-event-wild-fullwild", SelectorFor("event.*.>"))
}

func render(t *testing.T, path, lang, text string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, SourceToHTML(path, lang, text).Render(context.Background(), &buf))
	return buf.String()
}

func TestSourceToHTML(t *testing.T) {
	out := render(t, "/src/lib/x.ts", "typescript", "const answer = 42;")
	assert.Contains(t, out, "<pre")
	assert.Contains(t, out, "answer")

	out = render(t, "/README.md", "markdown", "# Title")
	assert.Contains(t, out, "<h1")
	assert.NotContains(t, out, "<pre")

	out = render(t, "/src/pages/index.astro", "astro", "<h1>home</h1>")
	assert.Contains(t, out, "&lt;")
	assert.NotContains(t, out, "<h1>home</h1>")
}

func TestSourceToHTMLFenceInText(t *testing.T) {
	out := render(t, "/doc.txt", "plaintext", "before\n```\ninside\n```\nafter")
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("<pre")))
}
