package http

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/webbridge/internal/domain/window"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/shared/id"
	"github.com/GriffinCanCode/webbridge/internal/shared/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds the identity settings the page handler needs.
type Config struct {
	MultiClient bool
	UseCookies  bool
	CookieName  string
	Version     string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	manager *window.Manager
	metrics *monitoring.Metrics
	logger  *zap.Logger
	cfg     Config
	etag    string
}

// NewHandlers creates a new handler set
func NewHandlers(manager *window.Manager, metrics *monitoring.Metrics, logger *zap.Logger, cfg Config) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "webbridge_client"
	}
	return &Handlers{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		etag:    utils.ETag(ClientScript()),
	}
}

// Root redirects to the lowest numbered window
func (h *Handlers) Root(c *gin.Context) {
	windows := h.manager.Windows()
	if len(windows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no window to show"})
		return
	}
	c.Redirect(http.StatusFound, "/win/"+strconv.FormatUint(windows[0].ID(), 10)+"/")
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	stats := h.manager.Stats()
	body := gin.H{
		"status":             "healthy",
		"version":            h.cfg.Version,
		"windows":            len(h.manager.Windows()),
		"clients_seen":       stats.ClientsSeen,
		"active_connections": stats.ActiveConnections,
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ClientScript serves the browser side of the bridge
func (h *Handlers) ClientScript(c *gin.Context) {
	c.Header("ETag", h.etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == h.etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", ClientScript())
}

// Page serves GET /win/:id/*filepath: the window content at the root and
// files from the window's root folder below it
func (h *Handlers) Page(c *gin.Context) {
	windowID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window id"})
		return
	}
	win, ok := h.manager.Window(windowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window"})
		return
	}

	page := win.Page()
	rel := c.Param("filepath")
	if rel == "" || rel == "/" {
		h.issueCookie(c)
		if page.Inline {
			h.serveHTML(c, []byte(page.Content))
			return
		}
		if page.Content == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "window has no content"})
			return
		}
		rel = page.Content
	}

	full, err := utils.SafeJoin(page.RootFolder, rel)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.logger.Warn("Failed to read file", zap.String("path", full), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	ctype := ContentType(full, data)
	if strings.HasPrefix(ctype, "text/html") {
		h.serveHTML(c, data)
		return
	}
	c.Data(http.StatusOK, ctype, data)
}

func (h *Handlers) serveHTML(c *gin.Context, page []byte) {
	out, err := InjectClientScript(page)
	if err != nil {
		h.logger.Warn("Failed to inject client script", zap.Error(err))
		out = page
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", out)
}

// issueCookie mints the identity cookie in multi-client cookie mode when
// the browser does not present a valid one.
func (h *Handlers) issueCookie(c *gin.Context) {
	if !h.cfg.MultiClient || !h.cfg.UseCookies {
		return
	}
	if v, err := c.Cookie(h.cfg.CookieName); err == nil && id.IsClientCookie(v) {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, id.NewClientCookie().String(), 0, "/", "", false, true)
}

// ContentType resolves the media type of a served file: extension first,
// content sniffing otherwise.
func ContentType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}
