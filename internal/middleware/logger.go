package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	ctxLogger    = "logger"
	ctxRequestID = "request_id"
)

// RequestLogger 分配请求 ID，挂上带 request_id 的 logger，结束时记一行访问日志。
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		c.Header(HeaderRequestID, rid)
		l := base.With("request_id", rid)
		c.Set(ctxRequestID, rid)
		c.Set(ctxLogger, l)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		l.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

// Logger 返回当前请求的 logger，没有时返回默认 logger。
func Logger(c *gin.Context) *slog.Logger {
	return logger(c)
}

func logger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// Recovery 记录 panic 并返回 500。
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		logger(c).Error("panic recovered", "panic", err)
		c.AbortWithStatusJSON(500, gin.H{"code": 500, "msg": "服务器内部错误"})
	})
}
