// Package handlers implements the HTTP endpoints on top of the chat service.
package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/config"
	"github.com/studysensei/exambot/internal/httpapi/middleware"
	"github.com/studysensei/exambot/internal/store/rabbitmq"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
	// Rabbit is nil when the async path is disabled.
	Rabbit *rabbitmq.Publisher
	Logger *slog.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *chat.Service, rabbit *rabbitmq.Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{DB: db, Cfg: cfg, ChatSvc: svc, Rabbit: rabbit, Logger: logger}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
