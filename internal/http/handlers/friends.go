package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"github.com/pansan0/saleidia/internal/metrics"
	"go.uber.org/zap"
)

type FriendHandler struct {
	Friends *chat.Friends
	Log     *zap.Logger
}

func (h *FriendHandler) List(c *gin.Context) {
	friends, err := h.Friends.List(c.Request.Context(), c.Param("userId"))
	if err != nil {
		fail(c, h.Log, "list friends", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

type friendRequestReq struct {
	FromUserID string `json:"fromUserId" binding:"required"`
	ToUserID   string `json:"toUserId" binding:"required"`
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req friendRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	fr, err := h.Friends.SendRequest(c.Request.Context(), middleware.MustUserID(c), req.FromUserID, req.ToUserID)
	if err != nil {
		fail(c, h.Log, "send friend request", err)
		return
	}
	metrics.RecordEvent("friend_request")
	c.JSON(http.StatusOK, gin.H{"success": true, "request": fr})
}

func (h *FriendHandler) Pending(c *gin.Context) {
	reqs, err := h.Friends.PendingRequests(c.Request.Context(), middleware.MustUserID(c), c.Param("userId"))
	if err != nil {
		fail(c, h.Log, "list friend requests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

type respondReq struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *FriendHandler) Respond(c *gin.Context) {
	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	fr, err := h.Friends.Respond(c.Request.Context(), middleware.MustUserID(c), c.Param("requestId"), *req.Accept)
	if err != nil {
		fail(c, h.Log, "respond friend request", err)
		return
	}
	metrics.RecordEvent("friend_request_" + string(fr.Status))
	c.JSON(http.StatusOK, gin.H{"success": true, "request": fr})
}
