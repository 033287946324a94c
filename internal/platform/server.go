package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"playground/ui"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerConfig holds HTTP server tunables.
type HTTPServerConfig struct {
	Port         int           `envconfig:"HTTP_PORT"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT"`
	EnableTLS    bool          `envconfig:"HTTP_TLS"`       // whether to use HTTPS
	CertFile     string        `envconfig:"HTTP_CERT_FILE"` // path to TLS certificate
	KeyFile      string        `envconfig:"HTTP_KEY_FILE"`  // path to TLS private key
}

const cookieName = "playground"

// SessionMiddleware assigns a browser session id on first visit and puts it
// in the request context. The id owns the playgrounds launched for it.
func SessionMiddleware(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := store.Get(r, cookieName)
			id, ok := sess.Values["id"].(string)
			if !ok || id == "" {
				id = uuid.NewString()
				sess.Values["id"] = id
				sess.Options = &sessions.Options{
					Path:     "/",
					MaxAge:   60 * 60 * 24 * 7, // 1 week
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				}
				if err := sess.Save(r, w); err != nil {
					slog.Warn("Failed to save session cookie", "err", err)
				}
			}
			ctx := context.WithValue(r.Context(), sessionCtxKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// crossOriginIsolation sets the headers the in-browser runtime needs for
// shared memory.
func crossOriginIsolation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the chi router of the playground server.
func NewRouter(app *App) http.Handler {
	store := sessions.NewCookieStore([]byte(app.cfg.SessionCfg.CookieSecret))

	r := chi.NewRouter()
	r.Use(crossOriginIsolation)
	r.Use(SessionMiddleware(store))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(chiLogger)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/health", Health)

	r.Get("/", Index(app))
	r.Route("/playgrounds", func(r chi.Router) {
		r.Post("/", CreatePlayground(app))
		r.Route("/{id}", func(r chi.Router) {
			r.Use(app.playgroundCtx)
			r.Get("/", GetPlayground)
			r.Get("/stream", PlaygroundStream(app))
			r.Get("/source", Source)
			r.Post("/select", SelectFile(app))
			r.Post("/edit", EditFile(app))
			r.Patch("/files", PatchFiles(app))
			r.Post("/reset", Reset(app))
			r.Post("/reload", Reload(app))
		})
	})
	r.Post("/_api/playground", Download(app))

	staticFS, _ := fs.Sub(ui.StaticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	return r
}

// RunHTTPServer serves the playground until ctx is done. The returned channel
// carries a listen or shutdown failure and is closed once the server stopped.
func RunHTTPServer(ctx context.Context, app *App, cfg HTTPServerConfig) <-chan error {
	errCh := make(chan error, 2)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(app),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout, // non-positive keeps SSE streams open
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopped := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errCh <- fmt.Errorf("http shutdown: %w", err)
		}
	}()

	go func() {
		defer close(errCh)
		slog.Info("HTTP server listening", "addr", srv.Addr, "tls", cfg.EnableTLS)
		var err error
		if cfg.EnableTLS {
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		close(stopped)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		<-shutdownDone
	}()

	return errCh
}

// chiLogger is a lightweight slog adapter for chi middleware.
func chiLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t0 := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(t0)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, fmt.Sprint(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, routePattern).Observe(duration.Seconds())
		slog.Info("http", "method", r.Method, "path", r.URL.Path, "route", routePattern, "status", status, "duration", duration)
	})
}

type sessionCtxKey struct{}

// SessionID returns the browser session id from the request context.
func SessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionCtxKey{}).(string)
	return id
}
