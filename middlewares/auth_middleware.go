package middlewares

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

const (
	HeaderBartenderKey = "X-Bartender-Key"
	RoleBartender      = "bartender"
	SessionRoleKey     = "role"

	credentialKey = "credential"
	roleKey       = "role"
)

// CredentialMiddleware -> collect whatever the caller presented into a services.Credential.
// It never rejects; authorization happens in the service or in RequireBartender.
// A nil issuer disables sessions: neither cookies nor bearer tokens count.
func CredentialMiddleware(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := services.Credential{
			Key:     strings.TrimSpace(c.GetHeader(HeaderBartenderKey)),
			Session: hasBartenderSession(c, tokens),
		}
		if cred.Key == "" {
			cred.Key = strings.TrimSpace(c.Query("key"))
		}

		c.Set(credentialKey, cred)
		if cred.Session {
			c.Set(roleKey, RoleBartender)
		}
		c.Next()
	}
}

// CredentialFrom returns the credential collected for this request.
func CredentialFrom(c *gin.Context) services.Credential {
	if v, ok := c.Get(credentialKey); ok {
		if cred, ok := v.(services.Credential); ok {
			return cred
		}
	}
	return services.Credential{}
}

func hasBartenderSession(c *gin.Context, tokens *utils.TokenIssuer) bool {
	if tokens == nil {
		return false
	}
	if role, ok := sessions.Default(c).Get(SessionRoleKey).(string); ok && role == RoleBartender {
		return true
	}

	token := ""
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else {
		// browsers cannot set headers on websocket handshakes
		token = c.Query("token")
	}
	if token == "" {
		return false
	}

	claims, err := tokens.Parse(token)
	if err != nil {
		utils.InfoLogger.Debugf("Rejected session token: %v", err)
		return false
	}
	return claims.Role == RoleBartender
}
