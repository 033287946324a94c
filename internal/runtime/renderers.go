package runtime

import (
	"context"

	"playground/internal/messages"
	"playground/internal/playground"
	components "playground/ui/components"

	datastar "github.com/starfederation/datastar/sdk/go"
)

// View builds the root container model of a session.
func View(s *playground.Session, title string) components.PlaygroundView {
	snap := s.Snapshot()
	v := components.PlaygroundView{
		ID:         snap.ID,
		Title:      title,
		State:      string(snap.State),
		Error:      snap.Error,
		PreviewURL: snap.PreviewURL,
		ActivePath: snap.ActivePath,
	}
	v.Nav = navItems(snap)
	for _, d := range snap.Documents {
		if d.Active {
			v.ActiveText = d.Text
		}
	}
	for _, f := range s.Documents().Initial() {
		v.Files = append(v.Files, components.File{Name: f.Path, Code: f.Content, Lang: f.Language})
	}
	return v
}

func navItems(snap playground.Snapshot) []components.NavItem {
	items := make([]components.NavItem, 0, len(snap.Documents))
	for _, d := range snap.Documents {
		items = append(items, components.NavItem{Path: d.Path, Active: d.Active})
	}
	return items
}

// ─────────────────── PLAYGROUND EVENTS ───────────────────

func renderState(_ context.Context, sse *datastar.ServerSentEventGenerator, id string, evt messages.StateChangedEvent) error {
	return sse.MergeFragmentTempl(components.Status(id, evt.State, evt.Error))
}

func renderPreview(_ context.Context, sse *datastar.ServerSentEventGenerator, id string, evt messages.PreviewReadyEvent) error {
	return sse.MergeFragmentTempl(components.Preview(id, evt.URL, evt.Reloads))
}

func renderOutput(_ context.Context, sse *datastar.ServerSentEventGenerator, id string, evt messages.OutputEvent) error {
	return sse.MergeFragmentTempl(
		components.OutputLine(evt.Line),
		datastar.WithSelectorID("output-"+id),
		datastar.WithMergeAppend(),
	)
}

func renderSynced(_ context.Context, sse *datastar.ServerSentEventGenerator, id string, evt messages.FileSyncedEvent) error {
	return sse.MergeFragmentTempl(components.SyncStatus(id, evt.Path, evt.Error))
}

// renderActive re-renders navigation and editor from the session's current
// documents, so the editor shows the newly active text.
func (c *Catalogue) renderActive(_ context.Context, sse *datastar.ServerSentEventGenerator, id string, evt messages.ActiveFileEvent) error {
	s, ok := c.sessions.Get(id)
	if !ok {
		return nil
	}
	snap := s.Snapshot()
	text, _ := s.Documents().Text(evt.Path)
	if err := sse.MergeFragmentTempl(components.Nav(id, navItems(snap))); err != nil {
		return err
	}
	return sse.MergeFragmentTempl(components.Editor(id, evt.Path, text))
}

// ─────────────────── REGISTRY ──────────────────────────

// NewCatalogue returns the renderer catalogue for playground events.
func NewCatalogue(sessions Sessions) *Catalogue {
	c := &Catalogue{sessions: sessions}
	c.specs = []RendererSpec{
		{Pattern: messages.StateChangedSubjectPattern, Build: func(subj string) Renderer {
			return newTypedRenderer(subj, renderState)
		}},
		{Pattern: messages.PreviewReadySubjectPattern, Build: func(subj string) Renderer {
			return newTypedRenderer(subj, renderPreview)
		}},
		{Pattern: messages.ActiveFileSubjectPattern, Build: func(subj string) Renderer {
			return newTypedRenderer(subj, c.renderActive)
		}},
		{Pattern: messages.OutputSubjectPattern, Build: func(subj string) Renderer {
			return newTypedRenderer(subj, renderOutput)
		}},
		{Pattern: messages.FileSyncedSubjectPattern, Build: func(subj string) Renderer {
			return newTypedRenderer(subj, renderSynced)
		}},
	}
	return c
}
