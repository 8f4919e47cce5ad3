package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casperarmani/backendmultchat/internal/middleware"
	"github.com/casperarmani/backendmultchat/internal/session"
)

// Login authenticates credentials against the external auth backend and
// issues a session cookie. Login attempts are rate limited per client IP; a
// store outage during the check fails closed.
func (h *Handlers) Login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing credentials"})
		return
	}

	allowed, err := h.limiter.Allow(c.Request.Context(), "login", c.ClientIP())
	if err != nil {
		h.logger.Error().Err(err).Msg("Rate limit check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Service unavailable"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many login attempts. Please try again later."})
		return
	}

	user, err := h.persist.SignIn(c.Request.Context(), email, password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	sessionID, err := session.GenerateToken()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate session token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	err = h.sessions.Create(c.Request.Context(), sessionID, session.Session{
		UserID:      user.ID,
		Email:       user.Email,
		LastRefresh: float64(time.Now().Unix()),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create session"})
		return
	}

	h.setSessionCookie(c, sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful"})
}

// Signup registers an account and signs the user straight in. Signups are
// rate limited per client IP, tighter than login.
func (h *Handlers) Signup(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing credentials"})
		return
	}

	allowed, err := h.limiter.Allow(c.Request.Context(), "signup", c.ClientIP())
	if err != nil {
		h.logger.Error().Err(err).Msg("Rate limit check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Service unavailable"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many signup attempts. Please try again later."})
		return
	}

	user, err := h.persist.SignUp(c.Request.Context(), email, password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Signup failed"})
		return
	}

	sessionID, err := session.GenerateToken()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate session token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	err = h.sessions.Create(c.Request.Context(), sessionID, session.Session{
		UserID:      user.ID,
		Email:       user.Email,
		LastRefresh: float64(time.Now().Unix()),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create session"})
		return
	}

	h.setSessionCookie(c, sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Signup successful"})
}

// Logout deletes the session immediately. No grace period.
func (h *Handlers) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(middleware.SessionCookie); err == nil && sessionID != "" {
		if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to delete session")
		}
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logout successful"})
}

// AuthStatus reports whether the request carries a live session, refreshing
// it in passing. Never answers an error status: an unknown session is a
// normal "not authenticated" result.
func (h *Handlers) AuthStatus(c *gin.Context) {
	sessionID, err := c.Cookie(middleware.SessionCookie)
	if err != nil || sessionID == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "message": "No session found"})
		return
	}

	alive, err := h.sessions.Refresh(c.Request.Context(), sessionID)
	if err != nil || !alive {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "message": "Session expired or invalid"})
		return
	}

	sess, err := h.sessions.Validate(c.Request.Context(), sessionID)
	if err != nil || sess == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "message": "Session expired or invalid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated":  true,
		"user":           gin.H{"id": sess.UserID, "email": sess.Email},
		"session_status": "active",
	})
}

func (h *Handlers) setSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.SessionCookie,
		sessionID,
		int(h.sessions.Lifetime().Seconds()),
		"/",
		"",
		h.cfg.Server.CookieSecure,
		true,
	)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cfg.Server.CookieSecure, true)
}
