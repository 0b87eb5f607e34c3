package main

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loomkit/loom/pkg/loom"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Server struct {
	config      *Config
	db          *sql.DB
	logger      *slog.Logger
	mgr         *loom.Manager
	md          goldmark.Markdown
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	pageMux     *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(config *Config, configPath string, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {

	mgr, err := loom.NewManager(logger, config.Server.TemplateDir, config.Server.TemplateExt, config.Engine.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}

	// The test endpoint compiles request bodies outside the manager, so it
	// needs its own loader rooted at the same directory.
	testOpts := config.Engine.Options()
	testOpts.Loader = &loom.FileLoader{Dir: config.Server.TemplateDir, Ext: config.Server.TemplateExt}

	// api initialization
	authAPI := NewAuthAPI(db, logger)
	templateAPI := NewTemplateAPI(mgr, testOpts, config.Server.TemplateExt, logger)
	statsAPI := NewStatsAPI(db, logger)
	serverAPI := NewServerAPI(config, configPath, actionChan, mgr, logger)

	server := &Server{
		config:      config,
		db:          db,
		logger:      logger,
		mgr:         mgr,
		md:          goldmark.New(goldmark.WithExtensions(extension.GFM)),
		authAPI:     authAPI,
		templateAPI: templateAPI,
		statsAPI:    statsAPI,
		serverAPI:   serverAPI,
		pageMux:     http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)

	server.apiMux.Handle("/api/", authedAPI)

	server.pageMux.HandleFunc("/favicon.ico", handleFavicon)
	server.pageMux.HandleFunc("/", server.handlePage)

	return server, nil
}

// handlePage renders the template named by the request path with locals taken
// from the query string. The empty path serves "index".
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		name = "index"
	}
	if strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}

	locals := make(map[string]any)
	for key, values := range r.URL.Query() {
		locals[key] = values[0]
	}

	start := time.Now()
	var buf strings.Builder
	err := s.mgr.Execute(r.Context(), &buf, name, locals)
	elapsed := time.Since(start)

	if logErr := s.statsAPI.LogRender(r.Context(), name, elapsed, buf.Len(), err != nil); logErr != nil {
		s.logger.Warn("Failed to log render stats", "template", name, "error", logErr)
	}

	if err != nil {
		var nf *loom.TemplateNotFoundError
		if errors.As(err, &nf) || errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Served page",
		"template", name,
		"remote_addr", r.RemoteAddr,
		"bytes", buf.Len(),
		"elapsed", elapsed)

	setPageHeaders(w)

	// Markdown templates get converted to HTML after rendering, so template
	// tags can still generate markdown source.
	if s.config.Server.RenderMarkdown && strings.HasSuffix(name, ".md") {
		var html bytes.Buffer
		if err = s.md.Convert([]byte(buf.String()), &html); err != nil {
			s.logger.Error("Failed to convert markdown", "template", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		_, _ = html.WriteTo(w)
		return
	}

	_, _ = strings.NewReader(buf.String()).WriteTo(w)
}

func setPageHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// handleFavicon keeps favicon requests out of the render stats by returning
// no content.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
