package runtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"playground/internal/messages"
	"playground/internal/playground"
	"playground/internal/project"
	"playground/internal/sandbox"
	"playground/internal/sandbox/sandboxtest"

	"github.com/nats-io/nats.go/jetstream"
	datastar "github.com/starfederation/datastar/sdk/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMsg implements the parts of jetstream.Msg the renderers and runner use.
type fakeMsg struct {
	jetstream.Msg
	subject string
	data    []byte
	acked   bool
}

func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Ack() error      { m.acked = true; return nil }

func newManager(t *testing.T) *playground.Manager {
	t.Helper()
	fake := sandboxtest.New()
	m := playground.NewManager(playground.Deps{Shared: sandbox.NewShared(fake.Boot)}, playground.DefaultConfig())
	t.Cleanup(m.Close)
	return m
}

func files() []project.ProjectFile {
	return []project.ProjectFile{
		{Path: "/src/pages/index.astro", Content: "<h1>home</h1>", Language: "astro"},
		{Path: "/src/components/Foo.astro", Content: "<p>foo</p>", Language: "astro"},
	}
}

func TestRunnerApply(t *testing.T) {
	m := newManager(t)
	s, err := m.Create(files(), "owner")
	require.NoError(t, err)
	r := NewRunner(nil, m)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, messages.NewSelectFileCommand(s.ID(), "/src/components/Foo.astro")))
	assert.Equal(t, "/src/components/Foo.astro", s.Documents().Active())

	require.NoError(t, r.Apply(ctx, messages.NewEditFileCommand(s.ID(), "/src/components/Foo.astro", "<p>bar</p>")))
	text, _ := s.Documents().Text("/src/components/Foo.astro")
	assert.Equal(t, "<p>bar</p>", text)

	require.NoError(t, r.Apply(ctx, messages.NewPatchFilesCommand(s.ID(), []byte(`{"/src/pages/index.astro":"<h1>x</h1>"}`))))
	text, _ = s.Documents().Text("/src/pages/index.astro")
	assert.Equal(t, "<h1>x</h1>", text)

	require.NoError(t, r.Apply(ctx, messages.NewResetCommand(s.ID())))
	assert.Equal(t, "/src/pages/index.astro", s.Documents().Active())
	text, _ = s.Documents().Text("/src/pages/index.astro")
	assert.Equal(t, "<h1>home</h1>", text)

	assert.ErrorIs(t, r.Apply(ctx, messages.NewReloadCommand(s.ID())), playground.ErrNotReady)
	assert.ErrorIs(t, r.Apply(ctx, messages.NewResetCommand("project-99")), ErrUnknownPlayground)
	assert.ErrorIs(t, r.Apply(ctx, messages.NewSelectFileCommand(s.ID(), "/nope.astro")), project.ErrUnknownPath)
}

func TestRunnerHandleCommandAcks(t *testing.T) {
	m := newManager(t)
	s, err := m.Create(files(), "owner")
	require.NoError(t, err)
	r := NewRunner(nil, m)

	ok := &fakeMsg{subject: "command.playground." + s.ID() + ".select", data: []byte(`{"path":"/src/components/Foo.astro"}`)}
	r.handleCommand(context.Background(), ok)
	assert.True(t, ok.acked)
	assert.Equal(t, "/src/components/Foo.astro", s.Documents().Active())

	bad := &fakeMsg{subject: "command.playground." + s.ID() + ".select", data: []byte(`{`)}
	r.handleCommand(context.Background(), bad)
	assert.True(t, bad.acked)
}

func eventMsg(t *testing.T, evt messages.Event) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return &fakeMsg{subject: evt.Subject(), data: data}
}

func render(t *testing.T, renderers []Renderer, msg jetstream.Msg) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stream", nil)
	sse := datastar.NewSSE(rec, req)
	require.NoError(t, Render(context.Background(), renderers, msg, sse))
	return rec.Body.String()
}

func TestCatalogueSubjects(t *testing.T) {
	c := NewCatalogue(newManager(t))

	subjects := c.SubjectsFor("project-0")
	assert.Contains(t, subjects, "event.playground.project-0.state")
	assert.Contains(t, subjects, "event.playground.project-0.output")
	assert.Len(t, subjects, 5)

	renderers := c.ForSubjects(append(subjects, subjects...))
	assert.Len(t, renderers, 6)
	assert.Equal(t, ">", renderers[len(renderers)-1].Pattern)
}

func TestRenderers(t *testing.T) {
	m := newManager(t)
	s, err := m.Create(files(), "owner")
	require.NoError(t, err)
	c := NewCatalogue(m)
	renderers := c.ForSubjects(c.SubjectsFor(s.ID()))

	body := render(t, renderers, eventMsg(t, messages.NewStateChangedEvent(s.ID(), "failed").WithError("boom")))
	assert.Contains(t, body, `id="status-project-0"`)
	assert.Contains(t, body, "failed: boom")

	body = render(t, renderers, eventMsg(t, messages.NewPreviewReadyEvent(s.ID(), "http://localhost:3000", 2)))
	assert.Contains(t, body, `src="http://localhost:3000"`)
	assert.Contains(t, body, `data-reloads="2"`)

	body = render(t, renderers, eventMsg(t, messages.NewOutputEvent(s.ID(), "<ready>")))
	assert.Contains(t, body, "#output-project-0")
	assert.Contains(t, body, "&lt;ready&gt;")

	require.NoError(t, s.Select(context.Background(), "/src/components/Foo.astro"))
	body = render(t, renderers, eventMsg(t, messages.NewActiveFileEvent(s.ID(), "/src/components/Foo.astro")))
	assert.Contains(t, body, `data-file="/src/components/Foo.astro" aria-selected="true"`)
	assert.Contains(t, body, "&lt;p&gt;foo&lt;/p&gt;")

	body = render(t, renderers, &fakeMsg{subject: "event.playground.project-0.unknown", data: []byte(`{}`)})
	assert.Contains(t, body, "event.playground.project-0.unknown")
	assert.Contains(t, body, "#output-project-0")
}

func TestViewMarksActiveDocument(t *testing.T) {
	m := newManager(t)
	s, err := m.Create(files(), "owner")
	require.NoError(t, err)

	v := View(s, "counter")
	assert.Equal(t, "project-0", v.ID)
	assert.Equal(t, "uninitialized", v.State)
	assert.Equal(t, "<h1>home</h1>", v.ActiveText)
	require.Len(t, v.Nav, 2)
	assert.True(t, v.Nav[0].Active)
	assert.False(t, v.Nav[1].Active)
	assert.Len(t, v.Files, 2)
}
