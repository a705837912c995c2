package bridge

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OriginHeader is the trusted header the embedder integration stamps onto
// every bridge request with the requesting frame's origin. It is set only
// by the native host process, never forwarded from chrome-controlled
// script, so a compromised content frame cannot forge it from JavaScript.
const OriginHeader = "X-Switchboard-Origin"

// HTTPHandler serves POST /bridge: the chrome's request/response polling
// transport. Each request body is one verb line; the response body is
// whatever Dispatch returns.
type HTTPHandler struct {
	dispatcher *Dispatcher
	limiter    *OriginRateLimiter
	logger     *zap.Logger
}

// NewHTTPHandler wires a Dispatcher to the gin route.
func NewHTTPHandler(d *Dispatcher, limiter *OriginRateLimiter, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{dispatcher: d, limiter: limiter, logger: logger}
}

// Register mounts the bridge route (and a liveness probe) on router.
func (h *HTTPHandler) Register(router gin.IRouter) {
	router.POST("/bridge", h.serveBridge)
	router.GET("/bridge/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func (h *HTTPHandler) serveBridge(c *gin.Context) {
	origin := c.GetHeader(OriginHeader)

	if h.limiter != nil && !h.limiter.Allow(origin) {
		c.String(http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable request body")
		return
	}

	raw := string(body)
	verb := parseLine(raw).verb
	c.Set("bridge_verb", verb)

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), origin, raw)
	if err != nil {
		if err == ErrForbiddenOrigin {
			h.logger.Warn("bridge request from unprivileged origin", zap.String("origin", origin), zap.String("verb", verb))
			c.String(http.StatusForbidden, "forbidden")
			return
		}
		if err == ErrQueueFull {
			c.String(http.StatusServiceUnavailable, "retry")
			return
		}
		c.String(http.StatusOK, err.Error())
		return
	}
	c.String(http.StatusOK, resp)
}
