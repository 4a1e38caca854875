package middleware

import (
	"net/http"

	"storefront/internal/reqscope"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const ctxScope = "reqscope"

// Scope 为每个请求创建 reqscope.Scope，请求结束（包括 panic）时归还连接。
func Scope(pool *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := reqscope.New(c.Request.Context(), pool)
		defer func() {
			if err := s.Close(); err != nil {
				logger(c).Warn("request scope close failed", "error", err)
			}
		}()
		c.Set(ctxScope, s)
		c.Next()
	}
}

func GetScope(c *gin.Context) *reqscope.Scope {
	v, _ := c.Get(ctxScope)
	s, _ := v.(*reqscope.Scope)
	return s
}

// DB 返回请求作用域内的数据库句柄；取连接失败时直接写 503 并返回 false。
func DB(c *gin.Context) (*gorm.DB, bool) {
	s := GetScope(c)
	if s == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "数据库不可用"})
		return nil, false
	}
	db, err := s.DB()
	if err != nil {
		logger(c).Error("acquire db failed", "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "数据库不可用"})
		return nil, false
	}
	return db, true
}
