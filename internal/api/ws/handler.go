package ws

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/window"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webbridge/internal/shared/id"
	"github.com/GriffinCanCode/webbridge/internal/shared/types"
	"github.com/GriffinCanCode/webbridge/internal/shared/utils"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CookieName is the client identity cookie.
const CookieName = "webbridge_client"

// Options configures the handler.
type Options struct {
	// MaxMessageSize bounds a single browser frame in bytes.
	MaxMessageSize int64

	// SendBuffer is how many outgoing frames may queue per connection.
	// A connection whose queue overflows is closed.
	SendBuffer int

	// CheckOrigin overrides the upgrader origin check. Nil accepts every
	// origin, which suits a local bridge.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades browser connections and pumps frames to the manager.
type Handler struct {
	manager  *window.Manager
	tracer   *tracing.Tracer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	opts     Options
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *window.Manager, tracer *tracing.Tracer, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 16 << 20
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		manager: manager,
		tracer:  tracer,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		opts: opts,
	}
}

// HandleConnection serves GET /_bridge/ws/:id for the lifetime of the
// connection.
func (h *Handler) HandleConnection(c *gin.Context) {
	windowID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window id"})
		return
	}
	if _, ok := h.manager.Window(windowID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window"})
		return
	}

	rawCookies := c.Request.Header.Get("Cookie")
	if len(rawCookies) > utils.MaxCookieLength {
		c.JSON(http.StatusRequestHeaderFieldsTooLarge, gin.H{"error": "cookie header too large"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	t := newTransport(conn, h.opts.SendBuffer)
	go t.writePump()

	cookie := clientCookie(c.Request)
	res, err := h.manager.Connect(windowID, cookie, rawCookies, t)
	if err != nil {
		h.logger.Warn("Rejecting connection", zap.Uint64("window", windowID), zap.Error(err))
		t.Close()
		<-t.finished
		return
	}
	connID := res.Connection.ID

	var span *tracing.Span
	if h.tracer != nil {
		span, _ = h.tracer.StartSpan(c.Request.Context(), "ws.session")
		span.SetTag("window", strconv.FormatUint(windowID, 10))
		span.SetTag("client", strconv.FormatUint(res.Client.ID, 10))
		span.SetTag("connection", strconv.FormatUint(connID, 10))
	}

	readErr := h.readPump(t, connID)

	t.Close()
	if err := h.manager.Disconnect(connID); err != nil && !errors.Is(err, window.ErrClosed) {
		h.logger.Debug("Disconnect after read loop", zap.Uint64("connection", connID), zap.Error(err))
	}
	<-t.finished

	if span != nil {
		if readErr != nil {
			span.SetError(readErr)
		}
		span.Finish()
		h.tracer.Submit(span)
	}
}

// readPump decodes frames until the socket fails. Unexpected close errors
// are returned; normal closes yield nil.
func (h *Handler) readPump(t *transport, connID uint64) error {
	conn := t.conn
	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed():
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("WebSocket read error", zap.Uint64("connection", connID), zap.Error(err))
				return err
			}
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.TextMessage {
			h.logger.Debug("Ignoring non-text frame", zap.Uint64("connection", connID), zap.Int("kind", kind))
			continue
		}

		var msg types.Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Malformed frame", zap.Uint64("connection", connID), zap.Error(err))
			continue
		}
		if msg.Type == types.MessageCall {
			if err := utils.ValidateElement(msg.Element); err != nil {
				h.logger.Debug("Rejected call", zap.Uint64("connection", connID), zap.Error(err))
				// The page still waits for an answer.
				if msg.ID != 0 {
					_ = t.Send(types.Message{Type: types.MessageReturn, ID: msg.ID})
				}
				continue
			}
		}

		if err := h.manager.HandleMessage(connID, msg); err != nil {
			h.logger.Debug("Frame not handled",
				zap.Uint64("connection", connID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
}

// clientCookie returns the identity cookie if it is one we could have
// issued.
func clientCookie(r *http.Request) string {
	ck, err := r.Cookie(CookieName)
	if err != nil || !id.IsClientCookie(ck.Value) {
		return ""
	}
	return ck.Value
}
