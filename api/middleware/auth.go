package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth 校验 Authorization: Bearer <token>
// token为空时拒绝所有请求
func BearerAuth(token string) gin.HandlerFunc {
	if token == "" {
		log.Warn("API key is not configured, authenticated endpoints will reject all requests")
	}

	return func(c *gin.Context) {
		provided, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			HandleError(c, NewUnauthorizedError(MsgInvalidAPIKey))
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken 从Authorization头中提取token
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
