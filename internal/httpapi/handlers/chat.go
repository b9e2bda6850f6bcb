package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/models"
	"github.com/studysensei/exambot/internal/prompt"
)

type createSessionReq struct {
	Language string `json:"language"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}
	if req.Language != "" && !prompt.IsSupported(req.Language) {
		common.Fail(c, http.StatusBadRequest, 10010, "unsupported language")
		return
	}

	// Sessions opened without a language inherit the account preference.
	lang := req.Language
	if lang == "" {
		var user models.User
		if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err == nil {
			lang = user.PreferredLanguage
		}
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, lang)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{
		"session_id": sess.ID,
		"title":      sess.Title,
		"language":   sess.Language,
	})
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

type renameSessionReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req renameSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.ChatSvc.RenameSession(c.Request.Context(), uid, c.Param("session_id"), req.Title)
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to rename session")
		return
	}
	common.OK(c, gin.H{"title": req.Title})
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.ChatSvc.DeleteSession(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to delete session")
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) ListChatTurns(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	turns, err := h.ChatSvc.Transcript(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to list turns")
		return
	}
	common.OK(c, gin.H{"turns": turns})
}

func (h *Handler) GetSessionAnalytics(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	summary, err := h.ChatSvc.Analytics(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to load analytics")
		return
	}
	common.OK(c, gin.H{"analytics": summary})
}

type addPassageReq struct {
	Content string `json:"content" binding:"required"`
}

// AddSessionPassage attaches extra grounding text to one session.
func (h *Handler) AddSessionPassage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req addPassageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.ChatSvc.AddSessionPassage(c.Request.Context(), uid, c.Param("session_id"), req.Content)
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to add passage")
		return
	}
	common.OK(c, gin.H{"added": true})
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Language  string `json:"language"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Language != "" && !prompt.IsSupported(req.Language) {
		common.Fail(c, http.StatusBadRequest, 10010, "unsupported language")
		return
	}

	reply, err := h.ChatSvc.Submit(c.Request.Context(), uid, req.SessionID, req.Message, req.Language)
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to answer message")
		return
	}

	common.OK(c, gin.H{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}

func (h *Handler) SendChatMessageStream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Language != "" && !prompt.IsSupported(req.Language) {
		common.Fail(c, http.StatusBadRequest, 10010, "unsupported language")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	ctx := c.Request.Context()
	chunks, result, errs := h.ChatSvc.SubmitStream(ctx, uid, req.SessionID, req.Message, req.Language)

	// heartbeat ticker keeps intermediaries from closing idle connections
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{"type": "chunk", "delta": ch})

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case err := <-errs:
			if err == nil {
				errs = nil
				continue
			}
			msg := "internal error"
			if chat.IsNotFound(err) {
				msg = "session not found"
			}
			writeJSON("error", gin.H{"type": "error", "message": msg})
			return

		case reply, ok := <-result:
			if !ok {
				return
			}
			writeJSON("done", gin.H{
				"type":              "done",
				"assistant_turn_id": reply.AssistantTurnID,
				"topic":             reply.Topic,
				"refused":           reply.Refused,
				"citations":         reply.Citations,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async answering disabled")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Language != "" && !prompt.IsSupported(req.Language) {
		common.Fail(c, http.StatusBadRequest, 10010, "unsupported language")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.ChatSvc.ValidateSessionOwner(c.Request.Context(), uid, req.SessionID); err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		h.Logger.Error("session ownership check failed", "user_id", uid, "session_id", req.SessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		SessionID:      req.SessionID,
		Query:          req.Message,
		Language:       req.Language,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Logger.Error("failed to create job", "user_id", uid, "session_id", req.SessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Enqueue only when a new job was created.
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Logger.Error("failed to enqueue job", "job_id", j.ID, "error", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if chat.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":             j.ID,
			"session_id":     j.SessionID,
			"status":         j.Status,
			"result_turn_id": j.ResultTurnID,
			"error":          j.Error,
			"created_at":     j.CreatedAt,
			"updated_at":     j.UpdatedAt,
		},
	})
}
