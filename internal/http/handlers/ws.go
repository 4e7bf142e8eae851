package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/metrics"
	"github.com/pansan0/saleidia/internal/ws"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type WSHandler struct {
	Hub                  *ws.Hub
	Verifier             identity.Verifier
	Log                  *zap.Logger
	WSInsecureSkipVerify bool
}

func (h *WSHandler) Handle(c *gin.Context) {
	// browsers cannot set headers on a websocket handshake
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	opts := &websocket.AcceptOptions{InsecureSkipVerify: h.WSInsecureSkipVerify}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		h.Log.Debug("ws accept failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	// push-only; reading keeps control frames flowing
	ctx := conn.CloseRead(c.Request.Context())

	client := h.Hub.AddClient(userID, conn)
	metrics.SessionOpened()
	defer func() {
		h.Hub.RemoveClient(client)
		metrics.SessionClosed()
	}()

	<-ctx.Done()
}
