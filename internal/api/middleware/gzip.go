package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
	wrote  bool
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	g.wrote = true
	g.Header().Del("Content-Length")
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) WriteHeader(code int) {
	g.Header().Del("Content-Length")
	g.ResponseWriter.WriteHeader(code)
}

// Gzip compresses responses for clients that accept it. Requests whose path
// starts with one of skipPrefixes, and WebSocket upgrades, pass through.
func Gzip(level int, skipPrefixes ...string) gin.HandlerFunc {
	pool := sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}

	return func(c *gin.Context) {
		if !shouldCompress(c.Request, skipPrefixes) {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		gw := &gzipWriter{ResponseWriter: c.Writer, writer: gz}
		c.Writer = gw

		defer func() {
			if !gw.wrote {
				// Empty bodies (304, 204, HEAD) must not carry a gzip stream.
				c.Writer.Header().Del("Content-Encoding")
				gz.Reset(io.Discard)
			}
			gz.Close()
			pool.Put(gz)
		}()

		c.Next()
	}
}

func shouldCompress(r *http.Request, skipPrefixes []string) bool {
	if r.Method == http.MethodHead {
		return false
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}
