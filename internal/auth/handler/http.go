// Package handler exposes the authentication HTTP API under /api/auth.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "commerce-auth/backend/internal/audit/domain"
	authservice "commerce-auth/backend/internal/auth/service"
	"commerce-auth/backend/internal/server/middleware"
	userservice "commerce-auth/backend/internal/user/service"
)

// AuditLister reads back a user's recorded auth events.
type AuditLister interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

// Handler wires the auth and registration services to gin routes.
type Handler struct {
	auth        *authservice.Service
	users       *userservice.Service
	audit       AuditLister
	requireAuth gin.HandlerFunc
}

// New returns a Handler. requireAuth guards the authenticated routes. audit
// may be nil; /me/audit then reports an empty history.
func New(auth *authservice.Service, users *userservice.Service, audit AuditLister, requireAuth gin.HandlerFunc) *Handler {
	return &Handler{auth: auth, users: users, audit: audit, requireAuth: requireAuth}
}

// Mount registers all auth routes on the group, conventionally /api/auth.
func (h *Handler) Mount(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
	rg.POST("/refresh", h.refresh)
	rg.POST("/logout", h.logout)
	rg.POST("/send-verify-email", h.sendVerifyEmail)
	rg.GET("/verify-email", h.verifyEmail)
	rg.POST("/forgot-password", h.forgotPassword)
	rg.POST("/reset-password", h.resetPassword)
	rg.GET("/me", h.requireAuth, h.me)
	rg.GET("/me/audit", h.requireAuth, h.myAudit)
	rg.DELETE("/sessions/:uuid", h.requireAuth, h.revokeSession)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, userservice.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, userservice.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet requirements"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration request"})
	default:
		c.JSON(http.StatusCreated, gin.H{
			"id":    user.ID,
			"email": user.Email,
		})
	}
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionUUID  string    `json:"session_uuid"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	res, err := h.auth.Login(c.Request.Context(), authservice.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	switch {
	case errors.Is(err, authservice.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, authservice.ErrAccountNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "account not verified"})
	case err != nil:
		h.serverError(c, "login", err)
	default:
		c.JSON(http.StatusOK, tokenResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			ExpiresAt:    res.ExpiresAt,
			SessionUUID:  res.SessionUUID,
		})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, authservice.ErrInvalidRefreshToken),
		errors.Is(err, authservice.ErrTokenRevoked),
		errors.Is(err, authservice.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
	case err != nil:
		h.serverError(c, "refresh", err)
	default:
		c.JSON(http.StatusOK, tokenResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			ExpiresAt:    res.ExpiresAt,
			SessionUUID:  res.SessionUUID,
		})
	}
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logout answers 204 whether or not anything was found to revoke. Only a
// store failure becomes an error.
func (h *Handler) logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req) // absent or malformed body is fine

	err := h.auth.Logout(c.Request.Context(), c.GetHeader("Authorization"), req.RefreshToken)
	if err != nil {
		h.serverError(c, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) sendVerifyEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	err := h.auth.SendVerificationEmail(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, authservice.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": "account already verified"})
	case errors.Is(err, authservice.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case err != nil:
		h.serverError(c, "send-verify-email", err)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
	}
}

func (h *Handler) verifyEmail(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
		return
	}

	err := h.auth.VerifyEmail(c.Request.Context(), code)
	switch {
	case errors.Is(err, authservice.ErrInvalidOrExpiredCode),
		errors.Is(err, authservice.ErrUserNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
	case err != nil:
		h.serverError(c, "verify-email", err)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "email verified"})
	}
}

// forgotPassword answers 200 for unknown emails too; the response must not
// disclose whether an account exists.
func (h *Handler) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.serverError(c, "forgot-password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset email has been sent"})
}

type resetPasswordRequest struct {
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and new_password are required"})
		return
	}

	err := h.auth.ResetPassword(c.Request.Context(), req.Code, req.NewPassword)
	switch {
	case errors.Is(err, authservice.ErrInvalidOrExpiredCode),
		errors.Is(err, authservice.ErrUserNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
	case err != nil:
		h.serverError(c, "reset-password", err)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

func (h *Handler) me(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      id.UserID,
		"session_uuid": id.SessionUUID,
		"authorities":  id.Authorities,
	})
}

// revokeSession revokes one of the caller's sessions, device-management
// style; all of the session's refresh tokens die with it.
func (h *Handler) revokeSession(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	err := h.auth.RevokeSessionByUUID(c.Request.Context(), id.UserID, c.Param("uuid"))
	switch {
	case errors.Is(err, authservice.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case err != nil:
		h.serverError(c, "revoke-session", err)
	default:
		c.Status(http.StatusNoContent)
	}
}

type auditEntry struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// myAudit returns the caller's recorded auth events, newest first.
func (h *Handler) myAudit(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	limit := parseInt32(c.Query("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := parseInt32(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	entries := []auditEntry{}
	if h.audit != nil {
		logs, err := h.audit.ListByUser(c.Request.Context(), id.UserID, limit, offset)
		if err != nil {
			h.serverError(c, "me-audit", err)
			return
		}
		for _, l := range logs {
			entries = append(entries, auditEntry{
				Action:    l.Action,
				Resource:  l.Resource,
				IP:        l.IP,
				Metadata:  l.Metadata,
				CreatedAt: l.CreatedAt,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": entries})
}

func parseInt32(s string, def int32) int32 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

// serverError hides internals behind a generic 500 and logs the cause.
func (h *Handler) serverError(c *gin.Context, op string, err error) {
	log.Printf("auth handler: %s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
