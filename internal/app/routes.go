package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simp-lee/usercrud/internal/middleware"
	"github.com/simp-lee/usercrud/internal/pkg"
	"github.com/simp-lee/usercrud/internal/session"
	"github.com/simp-lee/usercrud/web"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	Sessions   *session.Store
	Mode       string // "debug" or "release"
	CSRFSecret string
	// BasePath mounts the application, e.g. "/myapp". Empty means the root.
	BasePath string
	// MetricsPath serves Prometheus metrics at the root when non-empty.
	MetricsPath string
}

// RegisterRoutes registers all application routes on the given gin.Engine.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}
	if deps.Sessions == nil {
		return errors.New("session store is required")
	}

	basePath := strings.TrimRight(deps.BasePath, "/")
	root := r.Group(basePath)

	// Static assets
	if err := registerStaticRoutesWithError(root, basePath, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	// Probes live at the server root regardless of the mount.
	r.GET("/health", healthHandler(deps.Sessions))
	if deps.MetricsPath != "" {
		r.GET(deps.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// The user list is the only page.
	root.GET("/", redirectHandler(basePath+"/users"))
	if basePath != "" {
		r.GET("/", redirectHandler(basePath+"/users"))
	}

	sessions := session.Middleware(deps.Sessions, cookiePath(basePath))

	// API routes: no CSRF; the SameSite=Strict session cookie is not sent
	// cross-site.
	api := root.Group("/api/v1")
	api.Use(sessions)

	// Page routes: with CSRF
	pages := root.Group("/")
	pages.Use(
		middleware.CSRFWithConfig(middleware.CSRFConfig{
			Secret:     deps.CSRFSecret,
			CookiePath: cookiePath(basePath),
		}),
		sessions,
	)

	// Register module routes
	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api, pages)
	}

	// NoRoute handler
	r.NoRoute(noRouteHandler(basePath))

	return nil
}

func cookiePath(basePath string) string {
	if basePath == "" {
		return "/"
	}
	return basePath
}

func redirectHandler(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, target)
	}
}

// healthHandler reports process liveness and the number of live sessions.
func healthHandler(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"components": gin.H{
				"sessions": sessions.Len(),
			},
		})
	}
}

// noRouteHandler returns a handler that renders a 404 HTML page for browser
// requests or a JSON response for API clients.
func noRouteHandler(basePath string) gin.HandlerFunc {
	apiPrefix := basePath + "/api/"
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, apiPrefix) {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}

		renderError(c, http.StatusNotFound, "not found")
	}
}

func registerStaticRoutesWithError(r gin.IRoutes, basePath, mode string) error {
	prefix := basePath + "/static"
	if mode == "debug" {
		debugStaticFS, err := resolveDebugStaticFS()
		if err != nil {
			return fmt.Errorf("resolve debug static filesystem: %w", err)
		}
		fileServer := http.StripPrefix(prefix, http.FileServer(http.FS(debugStaticFS)))
		r.GET("/static/*filepath", func(c *gin.Context) {
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
		return nil
	}

	// Release mode: serve from embed.FS with cache headers.
	staticFS, err := fs.Sub(web.EmbeddedFS, "static")
	if err != nil {
		return fmt.Errorf("create sub filesystem for static assets: %w", err)
	}
	r.GET("/static/*filepath", cacheStaticHandler(prefix, http.FS(staticFS)))
	return nil
}

func resolveDebugStaticFS() (fs.FS, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("resolve current file path")
	}

	projectRoot := filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", ".."))
	staticDir := filepath.Join(projectRoot, "web", "static")
	if _, err := os.Stat(staticDir); err != nil {
		return nil, fmt.Errorf("stat static directory %q: %w", staticDir, err)
	}

	return os.DirFS(staticDir), nil
}

// cacheStaticHandler wraps an http.FileSystem handler and sets a Cache-Control
// header for release mode static assets.
func cacheStaticHandler(prefix string, fsys http.FileSystem) gin.HandlerFunc {
	fileServer := http.StripPrefix(prefix, http.FileServer(fsys))
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
