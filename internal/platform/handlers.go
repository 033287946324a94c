package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"playground/internal/messages"
	"playground/internal/playground"
	"playground/internal/project"
	"playground/internal/runtime"
	components "playground/ui/components"
	"playground/util"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
)

const maxBody = 10 << 20

// Health returns 200 OK.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readFields parses a request body into a flat field map. JSON,
// multipart/form-data, x-www-form-urlencoded and query parameters are
// accepted; query parameters never override body fields.
func readFields(r *http.Request) (map[string]any, error) {
	data := map[string]any{}
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case strings.Contains(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxBody); err != nil {
			return nil, fmt.Errorf("invalid multipart form data: %w", err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form data: %w", err)
		}
	}
	for key, values := range r.Form {
		if _, ok := data[key]; ok || len(values) == 0 {
			continue
		}
		data[key] = values[0]
	}
	for key, values := range r.URL.Query() {
		if _, ok := data[key]; !ok && len(values) > 0 {
			data[key] = values[0]
		}
	}
	return data, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

type playgroundCtxKey struct{}

// playgroundCtx resolves {id} to a live session or answers 404.
func (a *App) playgroundCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s, ok := a.manager.Get(id)
		if !ok {
			http.Error(w, "unknown playground", http.StatusNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), playgroundCtxKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playgroundFrom(r *http.Request) *playground.Session {
	s, _ := r.Context().Value(playgroundCtxKey{}).(*playground.Session)
	return s
}

// Index renders one playground container per example project of the
// browser session, plus the playgrounds it created itself.
func Index(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owned, err := app.ownerPlaygrounds(r.Context(), SessionID(r))
		if err != nil {
			slog.Error("Index: failed to load playgrounds", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		body := make([]templ.Component, 0, len(owned))
		for _, o := range owned {
			body = append(body, components.Playground(runtime.View(o.Session, o.Title)))
		}
		templ.Handler(components.Page("Playground", body...)).ServeHTTP(w, r)
	}
}

// CreatePlayground starts a session from a {files: [...]} body.
func CreatePlayground(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		files, err := project.DecodeFiles(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s, err := app.manager.Launch(app.ctx, files, SessionID(r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID()})
	}
}

// GetPlayground returns the session snapshot.
func GetPlayground(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, playgroundFrom(r).Snapshot())
}

// publishCommand validates and publishes cmd, answering 202 on success.
func publishCommand(app *App, w http.ResponseWriter, r *http.Request, cmd messages.Command) {
	if err := cmd.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("validation error: %v", err), http.StatusBadRequest)
		return
	}
	if err := app.publisher.PublishCommand(r.Context(), cmd); err != nil {
		http.Error(w, fmt.Sprintf("publish error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent", "subject": cmd.Subject()})
}

// requireDocument answers 404 unless path is a document of s.
func requireDocument(w http.ResponseWriter, s *playground.Session, path string) bool {
	if _, ok := s.Documents().Text(path); !ok {
		http.Error(w, fmt.Sprintf("unknown document %q", path), http.StatusNotFound)
		return false
	}
	return true
}

// SelectFile publishes a select command for {path}.
func SelectFile(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readFields(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s, path := playgroundFrom(r), stringField(data, "path")
		if !requireDocument(w, s, path) {
			return
		}
		publishCommand(app, w, r, messages.NewSelectFileCommand(s.ID(), path))
	}
}

// EditFile publishes an edit command for {path, text}.
func EditFile(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readFields(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s, path := playgroundFrom(r), stringField(data, "path")
		text, ok := data["text"].(string)
		if !ok {
			http.Error(w, "missing text", http.StatusBadRequest)
			return
		}
		if !requireDocument(w, s, path) {
			return
		}
		publishCommand(app, w, r, messages.NewEditFileCommand(s.ID(), path, text))
	}
}

// PatchFiles publishes a merge patch over path → text.
func PatchFiles(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		var patch map[string]any
		if err := json.Unmarshal(raw, &patch); err != nil {
			http.Error(w, "patch must be a JSON object", http.StatusBadRequest)
			return
		}
		s := playgroundFrom(r)
		for path := range patch {
			if !requireDocument(w, s, path) {
				return
			}
		}
		publishCommand(app, w, r, messages.NewPatchFilesCommand(s.ID(), raw))
	}
}

// Reset publishes a reset command.
func Reset(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publishCommand(app, w, r, messages.NewResetCommand(playgroundFrom(r).ID()))
	}
}

// Reload publishes a reload command. It answers 409 before the preview exists.
func Reload(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := playgroundFrom(r)
		if st, _ := s.State(); st != playground.StateReady {
			http.Error(w, playground.ErrNotReady.Error(), http.StatusConflict)
			return
		}
		publishCommand(app, w, r, messages.NewReloadCommand(s.ID()))
	}
}

// Source renders the current text of ?path= as highlighted HTML.
func Source(w http.ResponseWriter, r *http.Request) {
	s := playgroundFrom(r)
	path := r.URL.Query().Get("path")
	doc, ok := s.Documents().Get(path)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown document %q", path), http.StatusNotFound)
		return
	}
	html := util.SourceToHTML(doc.Path, doc.Language, doc.Text)
	templ.Handler(components.SourceView(doc.Path, html)).ServeHTTP(w, r)
}

// Download answers a {files: [...]} body, or ?id= of a live playground, with
// the project as plain text.
func Download(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var files []project.ProjectFile
		if id := r.URL.Query().Get("id"); id != "" {
			s, ok := app.manager.Get(id)
			if !ok {
				http.Error(w, "unknown playground", http.StatusNotFound)
				return
			}
			files = s.Download()
		} else {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				http.Error(w, "read body", http.StatusBadRequest)
				return
			}
			if files, err = project.DecodeFiles(raw); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, f := range files {
			fmt.Fprintf(w, "// %s\n%s\n\n", f.Path, f.Content)
		}
	}
}
