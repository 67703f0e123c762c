package middleware

import (
	"context"
	"net/http"

	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

// CookieName 会话 cookie 的名字。
const CookieName = "cg_session"

const principalKey = "principal"

// Principal 是当前请求的已认证主体。
//
// 它在 SessionAuth 里从数据库加载一次，之后所有组件都拿这个显式的值做
// 权限判断，而不是从请求上下文里零散地取字段。
type Principal struct {
	ID       uint
	Username string
	Email    string
	IsAdmin  bool
	Active   bool
}

// PrincipalStore 按会话里的用户 ID 加载用户。
type PrincipalStore interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

// SessionAuth 校验会话 cookie 并把 Principal 写入上下文。
//
// cookie 缺失、签名非法、会话过期或用户已被删除都会返回 401。
func SessionAuth(sessions *session.Store, users PrincipalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
			c.Abort()
			return
		}

		userID, err := sessions.Get(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
			c.Abort()
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
			c.Abort()
			return
		}

		c.Set(principalKey, Principal{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			IsAdmin:  user.IsAdmin,
			Active:   user.Active,
		})
		c.Next()
	}
}

// RequireAdmin 要求管理员权限，必须挂在 SessionAuth 之后。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !p.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "You need to have Admin permissions in order to proceed"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireActive 要求邮箱已确认的账号，必须挂在 SessionAuth 之后。
//
// 用于许愿等需要激活账号的操作。
func RequireActive() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !p.Active {
			c.JSON(http.StatusForbidden, gin.H{"error": "Please confirm your email address first"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetPrincipal 从上下文取出当前主体。
func GetPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// SetPrincipal 直接写入主体，只给测试用。
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
}
