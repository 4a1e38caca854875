package middleware

import (
	"net/http"

	"storefront/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "sid"

	ctxSessionID = "session_id"
	ctxSession   = "session"
	ctxStore     = "session_store"
	ctxMaxAge    = "session_max_age"
)

// Sessions 读取 sid cookie 并加载会话；没有 cookie 时分配新 sid。
// 会话只在处理函数调用 SaveSession 时写回。
func Sessions(store session.Store, maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			sid = session.NewID()
			setSessionCookie(c, sid, maxAge)
		}
		sess, err := store.Load(c.Request.Context(), sid)
		if err != nil {
			// 存储不可用时当作空会话继续。
			logger(c).Warn("session load failed", "error", err)
			sess = session.Session{}
		}
		c.Set(ctxSessionID, sid)
		c.Set(ctxSession, &sess)
		c.Set(ctxStore, store)
		c.Set(ctxMaxAge, maxAge)
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, sid string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sid, maxAge, "/", "", false, true)
}

// RotateSession 换发新 sid 并删除旧 sid 下的会话，内容保留到新 sid。
// 权限提升（后台登录）前调用，之后照常 SaveSession。
func RotateSession(c *gin.Context) error {
	v, ok := c.Get(ctxStore)
	if !ok {
		return nil
	}
	if old := SessionID(c); old != "" {
		if err := v.(session.Store).Delete(c.Request.Context(), old); err != nil {
			return err
		}
	}
	sid := session.NewID()
	setSessionCookie(c, sid, c.GetInt(ctxMaxAge))
	c.Set(ctxSessionID, sid)
	return nil
}

func SessionID(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}

// GetSession 返回当前请求的会话，处理函数可直接修改。
func GetSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(ctxSession); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	s := &session.Session{}
	c.Set(ctxSession, s)
	return s
}

// SaveSession 写回当前会话。
func SaveSession(c *gin.Context) error {
	v, ok := c.Get(ctxStore)
	if !ok {
		return nil
	}
	return v.(session.Store).Save(c.Request.Context(), SessionID(c), *GetSession(c))
}

// RequireAdmin 未登录后台时返回 401。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetSession(c).LoggedIn() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 401,
				"msg":  "请先登录",
			})
			return
		}
		c.Next()
	}
}
