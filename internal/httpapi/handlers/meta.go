package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/studysensei/exambot/internal/classify"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/prompt"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// ListLanguages exposes the closed set of response languages.
func (h *Handler) ListLanguages(c *gin.Context) {
	common.OK(c, gin.H{
		"languages": prompt.SupportedLanguages(),
		"default":   prompt.DefaultLanguage,
	})
}

// KnowledgeStats reports the loaded knowledge base size and the topic set.
func (h *Handler) KnowledgeStats(c *gin.Context) {
	common.OK(c, gin.H{
		"passages": h.ChatSvc.KnowledgeSize(),
		"topics":   classify.Topics(),
	})
}
