// Package server is the HTTP front end: it receives uploads, runs the
// size-constrained search and renders the result page.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/AnyUserName/imgshrink/internal/shrink"
	"github.com/AnyUserName/imgshrink/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options configures the HTTP service.
type Options struct {
	Bind           string
	MaxUploadBytes int64
	// EncodeTimeout bounds one encode including the wait for a slot; zero
	// disables the limit.
	EncodeTimeout time.Duration
	// MaxConcurrent caps simultaneous encodes; zero means NumCPU.
	MaxConcurrent int
	DefaultTarget float64
}

// Server handles upload and result requests.
type Server struct {
	opts     Options
	store    *storage.Store
	shrinker *shrink.Shrinker
	logger   *slog.Logger
	tmpl     *template.Template
	sem      chan struct{}
	now      func() time.Time
	// writeOutput stores a compressed file and returns its final name.
	writeOutput func(name string, data []byte) (string, error)
}

// New creates a Server. The store must already exist.
func New(opts Options, store *storage.Store, shrinker *shrink.Shrinker, logger *slog.Logger) (*Server, error) {
	if store == nil || shrinker == nil {
		return nil, errors.New("server: store and shrinker are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = runtime.NumCPU()
	}
	if opts.DefaultTarget <= 0 {
		opts.DefaultTarget = 200
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{
		opts:        opts,
		store:       store,
		shrinker:    shrinker,
		logger:      logger,
		tmpl:        tmpl,
		sem:         make(chan struct{}, opts.MaxConcurrent),
		now:         time.Now,
		writeOutput: store.WriteFile,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embedded at build time
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/compress", s.handleCompress)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", hideDotFiles(http.FileServer(http.Dir(s.store.Dir())))))
	return s.withRequestLog(mux)
}

// Run listens on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	writeTimeout := time.Duration(0)
	if s.opts.EncodeTimeout > 0 {
		writeTimeout = s.opts.EncodeTimeout + 30*time.Second
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	s.logger.Info("server listening",
		slog.String("address", listener.Addr().String()),
		slog.String("storage", s.store.Dir()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.render(w, r, "index.html", struct{ DefaultTarget float64 }{s.opts.DefaultTarget})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		requestLogger(r.Context(), s.logger).Error("render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

func hideDotFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(part, ".") {
				http.NotFound(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
