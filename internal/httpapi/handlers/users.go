package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/auth"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/models"
	"github.com/studysensei/exambot/internal/prompt"
)

type createUserReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Language string `json:"preferred_language"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email, username and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{
		Email:             req.Email,
		Username:          req.Username,
		PasswordHash:      hash,
		PreferredLanguage: prompt.Normalize(req.Language),
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe email or username already exists)")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"username":           user.Username,
		"preferred_language": user.PreferredLanguage,
		"token":              token,
	})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", req.Email).
		First(&user).Error
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same answer for unknown email and wrong password.
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{"token": token, "id": user.ID})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"username":           user.Username,
		"preferred_language": user.PreferredLanguage,
		"created_at":         user.CreatedAt,
	})
}

type updateMeReq struct {
	PreferredLanguage string `json:"preferred_language" binding:"required"`
}

// UpdateMe changes the caller's default response language.
func (h *Handler) UpdateMe(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateMeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !prompt.IsSupported(req.PreferredLanguage) {
		common.Fail(c, http.StatusBadRequest, 10010, "unsupported language")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", uid).
		Update("preferred_language", req.PreferredLanguage).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"preferred_language": req.PreferredLanguage})
}
