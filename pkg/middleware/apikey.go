package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// headerKeyAPIKey はAndroidクライアントが送るAPIキーのHTTPヘッダーキー。
const headerKeyAPIKey = "X-API-Key"

const (
	// SourceAndroid はAPIキー認証されたAndroidクライアントからの操作を表す。
	SourceAndroid = "android"
	// SourceWeb は管理者JWTで認証されたWeb管理画面からの操作を表す。
	SourceWeb = "web"
)

// APIKeyOrAdmin はAndroidクライアントのAPIキーまたは管理者JWTの
// どちらかでの認証を要求するGinミドルウェアを返す。
// 認証に成功した場合、コンテキストに変更元を表す "source" を設定する。
// 在庫変更通知のsourceフィールドはこの値から決まる。
func APIKeyOrAdmin(jwtSecret, apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(headerKeyAPIKey); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				c.Set("source", SourceAndroid)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "APIキーが無効です",
			})
			return
		}

		claims, err := parseBearerToken(c, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}
		if claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "管理者権限が必要です",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("source", SourceWeb)
		c.Next()
	}
}

// GetSource はGinコンテキストから変更元（"web" または "android"）を取得する。
// APIKeyOrAdminミドルウェアが事前に適用されている必要がある。
func GetSource(c *gin.Context) string {
	source, _ := c.Get("source")
	if s, ok := source.(string); ok {
		return s
	}
	return ""
}
