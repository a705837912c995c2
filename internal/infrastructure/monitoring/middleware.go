package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware that records bridge verb request
// metrics. The verb is read back from the gin context, since a single
// POST /bridge route dispatches many distinct verbs.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		verb, _ := c.Get("bridge_verb")
		verbName, _ := verb.(string)
		if verbName == "" {
			verbName = "unknown"
		}

		status := "ok"
		if c.Writer.Status() >= 400 {
			status = "error"
		}

		metrics.RecordBridgeRequest(verbName, status, time.Since(start))
	}
}

// Timer measures the duration of an engine resource manager call.
type Timer struct {
	start time.Time
	metrics *Metrics
	op    string
}

// NewTimer starts timing an engine call.
func NewTimer(metrics *Metrics, op string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, op: op}
}

// Stop records the call's duration and outcome ("ok" or "error").
func (t *Timer) Stop(status string) {
	t.metrics.RecordEngineCall(t.op, status, time.Since(t.start))
}
