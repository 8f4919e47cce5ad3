// Package middleware holds the gin middleware shared by the HTTP surface.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casperarmani/backendmultchat/internal/session"
)

// SessionCookie is the name of the session id cookie.
const SessionCookie = "session_id"

// Identity is the authenticated principal threaded through request
// handling. Handlers read it instead of sniffing session payload shapes.
type Identity struct {
	UserID string
	Email  string
}

const identityKey = "auth.identity"

// SetIdentity attaches the authenticated identity to the request.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// CurrentIdentity returns the authenticated identity set by RequireAuth.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// RequireAuth validates the session cookie and attaches the identity to the
// request. A missing, expired or malformed session and a store outage all
// answer 401: auth paths fail closed. Validation refreshes the session when
// its staleness passed the refresh threshold.
func RequireAuth(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		sess, err := sessions.Validate(c.Request.Context(), sessionID)
		if err != nil || sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		// Sliding expiration: no-op while inside the refresh threshold.
		if _, err := sessions.Refresh(c.Request.Context(), sessionID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		SetIdentity(c, Identity{UserID: sess.UserID, Email: sess.Email})
		c.Next()
	}
}
