package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GriffinCanCode/webbridge/internal/domain/window"
	"github.com/GriffinCanCode/webbridge/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticServer struct{}

func (staticServer) Start() (string, error) { return "http://127.0.0.1:1", nil }

func setup(t *testing.T, cfg Config) (*window.Manager, *gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	mgr := window.NewManager(window.Options{RootFolder: root}, nil)
	mgr.SetServer(staticServer{})
	t.Cleanup(mgr.Exit)

	h := NewHandlers(mgr, nil, nil, cfg)
	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET(ClientScriptPath, h.ClientScript)
	router.GET("/win/:id/*filepath", h.Page)
	return mgr, router, root
}

func get(router *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInlinePageGetsClientScript(t *testing.T) {
	mgr, router, _ := setup(t, Config{})
	win := mgr.NewWindow()
	_, err := win.StartServer(`<html><head><title>t</title></head><body>hi</body></html>`)
	require.NoError(t, err)

	w := get(router, "/win/1/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<script src="/webbridge.js"></script>`)
	assert.Contains(t, w.Body.String(), "hi")
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestInjectionIsNotDuplicated(t *testing.T) {
	page := []byte(`<html><head><script src="webbridge.js"></script></head><body></body></html>`)
	out, err := InjectClientScript(page)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "webbridge.js"))

	out, err = InjectClientScript([]byte("<p>fragment</p>"))
	require.NoError(t, err)
	assert.Contains(t, string(out), clientScriptTag)
	assert.Contains(t, string(out), "<p>fragment</p>")
}

func TestFilesFromRootFolder(t *testing.T) {
	mgr, router, root := setup(t, Config{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>file</h1>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob"), []byte("%PDF-1.4\n"), 0o644))

	win := mgr.NewWindow()
	_, err := win.Show("index.html")
	require.NoError(t, err)

	w := get(router, "/win/1/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>file</h1>")
	assert.Contains(t, w.Body.String(), clientScriptTag)

	w = get(router, "/win/1/css/site.css", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/css"))

	w = get(router, "/win/1/blob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = get(router, "/win/1/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownWindowAndBadID(t *testing.T) {
	_, router, _ := setup(t, Config{})

	assert.Equal(t, http.StatusNotFound, get(router, "/win/5/", nil).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/win/abc/", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/", nil).Code)
}

func TestRootRedirectsToFirstWindow(t *testing.T) {
	mgr, router, _ := setup(t, Config{})
	_, err := mgr.NewWindowID(4)
	require.NoError(t, err)
	mgr.NewWindow()

	w := get(router, "/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/win/1/", w.Header().Get("Location"))
}

func TestCookieIssuedInMultiClientMode(t *testing.T) {
	mgr, router, _ := setup(t, Config{MultiClient: true, UseCookies: true})
	win := mgr.NewWindow()
	_, err := win.StartServer("<html></html>")
	require.NoError(t, err)

	w := get(router, "/win/1/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "webbridge_client", cookies[0].Name)
	assert.True(t, id.IsClientCookie(cookies[0].Value))
	assert.True(t, cookies[0].HttpOnly)

	header := http.Header{"Cookie": []string{"webbridge_client=" + cookies[0].Value}}
	w = get(router, "/win/1/", header)
	assert.Empty(t, w.Result().Cookies())
}

func TestNoCookieInSingleClientMode(t *testing.T) {
	mgr, router, _ := setup(t, Config{})
	win := mgr.NewWindow()
	_, err := win.StartServer("<html></html>")
	require.NoError(t, err)

	w := get(router, "/win/1/", nil)
	assert.Empty(t, w.Result().Cookies())
}

func TestClientScriptETag(t *testing.T) {
	_, router, _ := setup(t, Config{})

	w := get(router, ClientScriptPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "window.webbridge")
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = get(router, ClientScriptPath, http.Header{"If-None-Match": []string{etag}})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestHealth(t *testing.T) {
	mgr, router, _ := setup(t, Config{Version: "test"})
	mgr.NewWindow()

	w := get(router, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"windows":1`)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
}
