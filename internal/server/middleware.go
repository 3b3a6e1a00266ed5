package server

import (
	"crypto/subtle"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// requireJSON rejects state-changing requests whose Content-Type is not
// application/json, body or no body. Browsers cannot send such a request
// cross-origin without a preflight, which this API never answers.
func requireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mt != "application/json" {
			writeJSON(c, http.StatusUnsupportedMediaType, resultResp{Success: false, Message: "Content-Type must be application/json"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// tokenAuth requires "Authorization: Bearer <token>" on every request when
// token is set.
func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeJSON(c, http.StatusUnauthorized, resultResp{Success: false, Message: "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
