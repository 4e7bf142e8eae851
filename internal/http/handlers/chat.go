package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"github.com/pansan0/saleidia/internal/metrics"
	"go.uber.org/zap"
)

type ChatHandler struct {
	Chats    *chat.Chats
	Messages *chat.Messages
	Log      *zap.Logger
}

type createChatReq struct {
	UserID1 string `json:"userId1" binding:"required"`
	UserID2 string `json:"userId2" binding:"required"`
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	ch, err := h.Chats.Create(c.Request.Context(), middleware.MustUserID(c), req.UserID1, req.UserID2)
	if err != nil {
		fail(c, h.Log, "create chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": ch})
}

func (h *ChatHandler) List(c *gin.Context) {
	list, err := h.Chats.List(c.Request.Context(), middleware.MustUserID(c), c.Param("userId"), c.Query("q"))
	if err != nil {
		fail(c, h.Log, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	if err := h.Chats.MarkRead(c.Request.Context(), middleware.MustUserID(c), c.Param("chatId")); err != nil {
		fail(c, h.Log, "mark read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type pinReq struct {
	Pinned *bool `json:"pinned" binding:"required"`
}

func (h *ChatHandler) SetPinned(c *gin.Context) {
	var req pinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	if err := h.Chats.SetPinned(c.Request.Context(), middleware.MustUserID(c), c.Param("chatId"), *req.Pinned); err != nil {
		fail(c, h.Log, "pin chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sendMessageReq struct {
	ChatID   string `json:"chatId" binding:"required"`
	SenderID string `json:"senderId" binding:"required"`
	Text     string `json:"text"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	msg, err := h.Messages.Send(c.Request.Context(), middleware.MustUserID(c), req.ChatID, req.SenderID, req.Text)
	if err != nil {
		fail(c, h.Log, "send message", err)
		return
	}
	metrics.RecordEvent("message_sent")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	msgs, err := h.Messages.List(c.Request.Context(), middleware.MustUserID(c), c.Param("chatId"))
	if err != nil {
		fail(c, h.Log, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
