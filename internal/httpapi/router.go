// Package httpapi assembles the gin router.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/config"
	"github.com/studysensei/exambot/internal/httpapi/handlers"
	"github.com/studysensei/exambot/internal/httpapi/middleware"
	"github.com/studysensei/exambot/internal/store/rabbitmq"
	"github.com/studysensei/exambot/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store,
	svc *chat.Service, rabbit *rabbitmq.Publisher, logger *slog.Logger) *gin.Engine {

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, svc, rabbit, logger)

	r.GET("/ping", h.Ping)
	r.GET("/languages", h.ListLanguages)

	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.Use(middleware.RateLimit(rds, cfg.RateLimitPerMin, logger))

	authGroup.GET("/me", h.Me)
	authGroup.PATCH("/me", h.UpdateMe)

	authGroup.GET("/knowledge/stats", h.KnowledgeStats)

	authGroup.POST("/chat/sessions", h.CreateChatSession)
	authGroup.GET("/chat/sessions", h.ListChatSessions)
	authGroup.PATCH("/chat/sessions/:session_id", h.RenameChatSession)
	authGroup.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)
	authGroup.GET("/chat/sessions/:session_id/turns", h.ListChatTurns)
	authGroup.GET("/chat/sessions/:session_id/analytics", h.GetSessionAnalytics)
	authGroup.POST("/chat/sessions/:session_id/passages", h.AddSessionPassage)

	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.POST("/chat/messages/stream", h.SendChatMessageStream)
	authGroup.POST("/chat/messages/async", h.SendChatMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetChatJob)

	return r
}
