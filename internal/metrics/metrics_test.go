package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/messages/:chatId", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/messages/:chatId", "418"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages/c1", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/messages/:chatId", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecordEvent(t *testing.T) {
	before := testutil.ToFloat64(chatEvents.WithLabelValues("message_sent"))
	RecordEvent("message_sent")
	assert.Equal(t, before+1, testutil.ToFloat64(chatEvents.WithLabelValues("message_sent")))
}
