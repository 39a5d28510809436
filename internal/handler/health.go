package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by repository.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports store and Redis connectivity, the audit sink breaker state
// and the audit dead letter queue depth (null without Redis). rdb and sinkCB may be nil when those parts are not configured. The
// breaker only informs; an open sink does not make the engine unhealthy.
func Health(store Pinger, rdb *redis.Client, sinkCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		storeStatus := "connected"
		if store.Ping(ctx) != nil {
			storeStatus = "error"
		}

		redisStatus := "disabled"
		var dlqDepth *int64
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			} else if n, err := worker.DLQLength(ctx, rdb, worker.QueueAudit); err == nil {
				dlqDepth = &n
			}
		}

		sinkStatus := "disabled"
		if sinkCB != nil {
			sinkStatus = sinkCB.State().String()
		}

		status := http.StatusOK
		if storeStatus == "error" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":         status == http.StatusOK,
			"store":      storeStatus,
			"redis":      redisStatus,
			"audit_sink": sinkStatus,
			"audit_dlq":  dlqDepth,
		})
	}
}
