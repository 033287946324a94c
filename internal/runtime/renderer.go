package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"playground/util"

	"github.com/a-h/templ"
	"github.com/nats-io/nats.go/jetstream"
	datastar "github.com/starfederation/datastar/sdk/go"
)

// RenderFunc renders one event message into the SSE stream.
type RenderFunc func(ctx context.Context, msg jetstream.Msg, sse *datastar.ServerSentEventGenerator) error

type Renderer struct {
	Pattern    string
	MatchFunc  func(string) bool
	RenderFunc RenderFunc
}

// RendererSpec is a catalogue entry: a wildcard pattern and a factory that
// builds a concrete Renderer for a subscription subject matching it.
type RendererSpec struct {
	Pattern string
	Build   func(subj string) Renderer
}

// Catalogue holds the renderer specs of the playground UI stream.
type Catalogue struct {
	specs    []RendererSpec
	sessions Sessions
}

// ForSubjects materialises a renderer for every (subject, RendererSpec) pair where
// the subject matches the renderer's pattern. The fallback renderer is always
// the last element.
func (c *Catalogue) ForSubjects(subjects []string) []Renderer {
	out := make([]Renderer, 0)
	seen := make(map[string]struct{})
	for _, s := range subjects {
		for _, spec := range c.specs {
			if !util.SubjectMatches(spec.Pattern, s) {
				continue
			}
			key := spec.Pattern + "|" + s
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, spec.Build(s))
		}
	}
	out = append(out, fallback)
	return out
}

// SubjectsFor returns the concrete event subjects of one playground.
func (c *Catalogue) SubjectsFor(id string) []string {
	out := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		out = append(out, strings.Replace(spec.Pattern, "*", id, 1))
	}
	return out
}

// Render hands msg to the first matching renderer.
func Render(ctx context.Context, renderers []Renderer, msg jetstream.Msg, sse *datastar.ServerSentEventGenerator) error {
	for _, r := range renderers {
		if r.MatchFunc(msg.Subject()) {
			return r.RenderFunc(ctx, msg, sse)
		}
	}
	return nil
}

func newRenderer(pattern string, fn RenderFunc) Renderer {
	return Renderer{
		Pattern:    pattern,
		MatchFunc:  func(subj string) bool { return util.SubjectMatches(pattern, subj) },
		RenderFunc: fn,
	}
}

// newTypedRenderer decodes the JSON payload into T and invokes handler with
// the playground id taken from the subject.
func newTypedRenderer[T any](pattern string, handler func(context.Context, *datastar.ServerSentEventGenerator, string, T) error) Renderer {
	return newRenderer(pattern, func(ctx context.Context, msg jetstream.Msg, sse *datastar.ServerSentEventGenerator) error {
		var p T
		dec := json.NewDecoder(bytes.NewReader(msg.Data()))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode %T: %w", p, err)
		}
		return handler(ctx, sse, util.PlaygroundOf(msg.Subject()), p)
	})
}

// fallback appends any unrecognised message to the playground's output box.
var fallback = newRenderer(
	">",
	func(ctx context.Context, msg jetstream.Msg, sse *datastar.ServerSentEventGenerator) error {
		frag := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
			_, err := fmt.Fprintf(w, "<pre>%s\n%s</pre>", templ.EscapeString(msg.Subject()), templ.EscapeString(string(msg.Data())))
			return err
		})
		return sse.MergeFragmentTempl(
			frag,
			datastar.WithSelector(util.SelectorFor(msg.Subject())),
			datastar.WithMergeAppend(),
		)
	},
)
