package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"github.com/pansan0/saleidia/internal/models"
	"go.uber.org/zap"
)

type UserHandler struct {
	Profiles *chat.Profiles
	Log      *zap.Logger
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.Profiles.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		fail(c, h.Log, "get user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *UserHandler) Update(c *gin.Context) {
	var patch models.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badBody(c, err)
		return
	}

	u, err := h.Profiles.Update(c.Request.Context(), middleware.MustUserID(c), c.Param("userId"), patch)
	if err != nil {
		fail(c, h.Log, "update user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.Profiles.Search(c.Request.Context(), middleware.MustUserID(c), c.Query("q"))
	if err != nil {
		fail(c, h.Log, "search users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
