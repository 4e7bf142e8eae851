package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/metrics"
	"github.com/pansan0/saleidia/internal/ws"
	"go.uber.org/zap"
)

// LegacyPrefix is the base path the mobile app was built against.
const LegacyPrefix = "/make-server-60f140bd"

type Deps struct {
	Service  *chat.Service
	Provider identity.Provider
	Hub      *ws.Hub
	Limiter  *middleware.RateLimiter
	Log      *zap.Logger

	AnonKey              string
	WSInsecureSkipVerify bool
}

// NewRouter builds the engine with every route mounted at the root and again
// under LegacyPrefix.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS(), metrics.Middleware(), middleware.RequestLogger(d.Log))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	mount(r.Group(""), d)
	mount(r.Group(LegacyPrefix), d)
	return r
}

func mount(g *gin.RouterGroup, d Deps) {
	authH := &AuthHandler{Profiles: d.Service.Profiles, Provider: d.Provider, Log: d.Log}
	userH := &UserHandler{Profiles: d.Service.Profiles, Log: d.Log}
	friendH := &FriendHandler{Friends: d.Service.Friends, Log: d.Log}
	chatH := &ChatHandler{Chats: d.Service.Chats, Messages: d.Service.Messages, Log: d.Log}
	wsH := &WSHandler{Hub: d.Hub, Verifier: d.Provider, Log: d.Log, WSInsecureSkipVerify: d.WSInsecureSkipVerify}

	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.GET("/ws", wsH.Handle)

	public := g.Group("")
	public.Use(middleware.AnonKeyMiddleware(d.AnonKey, d.Provider))
	if d.Limiter != nil {
		public.Use(d.Limiter.Handler())
	}
	public.POST("/signup", authH.Signup)
	public.POST("/login", authH.Login)

	authed := g.Group("")
	authed.Use(middleware.AuthMiddleware(d.Provider))
	if d.Limiter != nil {
		authed.Use(d.Limiter.Handler())
	}

	authed.GET("/user/:userId", userH.Get)
	authed.PUT("/user/:userId", userH.Update)
	authed.GET("/search/users", userH.Search)

	authed.GET("/friends/:userId", friendH.List)
	authed.POST("/friend-request", friendH.SendRequest)
	authed.GET("/friend-requests/:userId", friendH.Pending)
	authed.POST("/friend-request/:requestId/respond", friendH.Respond)

	authed.POST("/chat", chatH.Create)
	authed.GET("/chats/:userId", chatH.List)
	authed.POST("/chats/:chatId/read", chatH.MarkRead)
	authed.PUT("/chats/:chatId/pin", chatH.SetPinned)

	authed.POST("/message", chatH.SendMessage)
	authed.GET("/messages/:chatId", chatH.ListMessages)
}
