package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/metrics"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type AuthHandler struct {
	Profiles *chat.Profiles
	Provider identity.Provider
	Log      *zap.Logger
}

type signupReq struct {
	Email    string           `json:"email"`
	Password string           `json:"password"`
	UserData *models.UserData `json:"userData"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	reg, err := h.Profiles.Register(c.Request.Context(), req.Email, req.Password, req.UserData)
	if err != nil {
		fail(c, h.Log, "signup", err)
		return
	}
	metrics.RecordEvent("user_registered")

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"user":     reg.User,
		"authUser": reg.AuthUser,
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	session, err := h.Provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, h.Log, "login", err)
		return
	}

	var user *models.User
	u, err := h.Profiles.Get(c.Request.Context(), session.User.ID)
	switch {
	case err == nil:
		user = &u
	case !errors.Is(err, apperr.ErrNotFound):
		fail(c, h.Log, "login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": session,
		"user":    user,
	})
}
