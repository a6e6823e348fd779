package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/Vellum/pkg/assets"
	"github.com/CTAG07/Vellum/pkg/csrf"
	"github.com/CTAG07/Vellum/pkg/routing"
	"github.com/CTAG07/Vellum/pkg/templating"
	"github.com/spf13/cast"
)

// PageData is the value every site template receives as dot.
type PageData struct {
	Title   string
	Posts   []Post
	Post    Post
	Page    int
	HasPrev bool
	HasNext bool
	Form    map[string]string
	Errors  map[string]string
}

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	tm          *templating.TemplateManager
	router      *routing.Router
	assets      *assets.Resolver
	tokens      *csrf.Manager
	tokenStore  *csrf.SQLStore
	posts       *PostStore
	templateAPI *TemplateAPI
	serverAPI   *ServerAPI
	siteHandler http.Handler
	apiHandler  http.Handler
	now         func() time.Time
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	tokenStore, err := csrf.NewSQLStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf store: %w", err)
	}
	tokens := csrf.NewManager(tokenStore, cfg.CSRF, logger)

	router := routing.New(logger)
	resolver := assets.NewResolver(cfg.Server.PublicDir, cm.IsDebug, logger)
	view := templating.NewViewExtension(templating.ViewOptions{
		Assets: resolver,
		Routes: router,
		CSRF:   tokens,
		Logger: logger,
	})

	tm, err := templating.NewTemplateManager(logger, cfg.Templates, cfg.Server.TemplateDir, view)
	if err != nil {
		tokenStore.Close()
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		tm:          tm,
		router:      router,
		assets:      resolver,
		tokens:      tokens,
		tokenStore:  tokenStore,
		posts:       NewPostStore(db),
		templateAPI: NewTemplateAPI(tm, tokens, logger),
		serverAPI:   NewServerAPI(cm, actionChan, logger),
		now:         time.Now,
	}

	// "/posts/new" must be registered before "/posts/{slug}".
	router.Use(server.logRequests)
	router.HandleFunc("home", "/", server.handleHome, http.MethodGet)
	router.HandleFunc("posts.index", "/posts", server.handleIndex, http.MethodGet)
	router.HandleFunc("posts.new", "/posts/new", server.handleNew, http.MethodGet)
	router.HandleFunc("posts.show", "/posts/{slug}", server.handleShow, http.MethodGet)
	router.Handle("posts.create", "/posts", tokens.Protect(http.HandlerFunc(server.handleCreate)), http.MethodPost)
	router.HandleFunc("", "/favicon.ico", handleFavicon)
	router.NotFound(http.HandlerFunc(server.handlePublic))
	server.siteHandler = tokens.Middleware(router)

	apiRouter := routing.New(logger)
	// The health check stays unauthenticated so something like docker can use it.
	apiRouter.HandleFunc("api.health", "/api/health", server.serverAPI.handleHealthCheck, http.MethodGet)
	authed := apiRouter.Subrouter("/api")
	authed.Use(server.authenticate)
	server.templateAPI.RegisterRoutes(authed)
	server.serverAPI.RegisterRoutes(authed)
	apiRouter.NotFound(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Not Found")
	}))
	server.apiHandler = apiRouter

	return server, nil
}

// Close releases the prepared statements held by the server.
func (s *Server) Close() {
	s.tokenStore.Close()
}

// runPruner removes expired csrf tokens every interval until ctx is done.
func (s *Server) runPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("CSRF token pruning disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.tokens.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Failed to prune csrf tokens", "error", err)
			}
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start), "remote_addr", r.RemoteAddr)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context(), s.cm.Get().Server.PostsPerPage, 0)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, r, http.StatusOK, "home.tmpl.html", PageData{Title: "Home", Posts: posts})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	perPage := s.cm.Get().Server.PostsPerPage
	if perPage <= 0 {
		perPage = DefaultServerConfig().PostsPerPage
	}
	page := cast.ToInt(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	total, err := s.posts.Count(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	posts, err := s.posts.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.render(w, r, http.StatusOK, "posts_index.tmpl.html", PageData{
		Title:   "Posts",
		Posts:   posts,
		Page:    page,
		HasPrev: page > 1,
		HasNext: page*perPage < total,
	})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.Get(r.Context(), routing.Vars(r)["slug"])
	if errors.Is(err, ErrPostNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, r, http.StatusOK, "post_show.tmpl.html", PageData{Title: post.Title, Post: post})
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "post_new.tmpl.html", PageData{
		Title:  "New post",
		Form:   map[string]string{},
		Errors: map[string]string{},
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	form := map[string]string{
		"title": strings.TrimSpace(r.PostForm.Get("title")),
		"body":  strings.TrimSpace(r.PostForm.Get("body")),
	}
	errs := map[string]string{}
	if form["title"] == "" {
		errs["title"] = "A title is required."
	}
	if form["body"] == "" {
		errs["body"] = "The post needs a body."
	}
	if len(errs) > 0 {
		s.render(w, r, http.StatusUnprocessableEntity, "post_new.tmpl.html", PageData{Title: "New post", Form: form, Errors: errs})
		return
	}

	post, err := s.posts.Create(r.Context(), form["title"], form["body"], s.now())
	if err != nil {
		s.serverError(w, err)
		return
	}
	target, err := s.router.URL("posts.show", "slug", post.Slug)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.logger.Info("Created post", "slug", post.Slug, "remote_addr", r.RemoteAddr)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handlePublic serves regular files from the public directory for requests
// no route matched. Directories and missing files get the 404 page.
func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	publicDir := s.assets.PublicDir()
	if publicDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		s.notFound(w, r)
		return
	}
	file := filepath.Join(publicDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		s.notFound(w, r)
		return
	}
	if r.URL.RawQuery != "" {
		// Versioned asset URLs change whenever the file does.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	http.ServeFile(w, r, file)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if !s.tm.HasTemplate("404.tmpl.html") {
		http.NotFound(w, r)
		return
	}
	s.render(w, r, http.StatusNotFound, "404.tmpl.html", PageData{Title: "Not found"})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("Request failed", "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// render executes name into a buffer first so a failing template never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	var buf bytes.Buffer
	if err := s.tm.ExecuteRequest(&buf, r, name, data); err != nil {
		s.logger.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	setPageHeaders(w)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func setPageHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "same-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline';")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// handleFavicon answers favicon requests with no content so they never reach
// the 404 page.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
