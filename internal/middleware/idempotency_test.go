package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/logger"
	"fleetops/internal/middleware"
)

func TestIdempotency_ReplaysPerUser(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })

	var calls int32
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetIdentity(c, domain.Identity{UserID: c.GetHeader("X-User"), Role: domain.RoleDriver})
		c.Next()
	})
	r.Use(middleware.IdempotencyMiddleware(client, logger.Discard()))
	r.POST("/events", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	key := uuid.NewString()
	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("Idempotency-Key", key)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("u-1")
	second := send("u-1")
	other := send("u-2")

	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Empty(t, other.Header().Get("Idempotent-Replay"), "keys are scoped per user")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
