package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"agrimandi/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// authClaims 是登录时签发的 JWT 载荷，Subject 存用户 ID。
type authClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AuthMiddleware 校验 Bearer JWT，并把 userID / role 写入请求上下文。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || uid == 0 {
			abortUnauthorized(c, "invalid token subject")
			return
		}

		// 老 token 可能没有 role 声明，按权限最低的买家处理
		role := strings.TrimSpace(strings.ToLower(claims.Role))
		if role == "" {
			role = model.RoleBuyer
		}

		c.Set("userID", int(uid))
		c.Set("role", role)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	c.Abort()
}
