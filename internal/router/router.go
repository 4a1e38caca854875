package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/faq"
	"storefront/internal/ledger"
	"storefront/internal/middleware"
	"storefront/internal/newsletter"
	"storefront/internal/queue"
	"storefront/internal/session"
	"storefront/internal/ticket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps 路由依赖。可选项为 nil 时对应功能降级（不限流、不发邮件、事件只写日志）。
type Deps struct {
	DB       *gorm.DB
	Sessions session.Store
	Claims   session.Claimer
	Limiter  middleware.Limiter
	Events   queue.Sink

	Ledger    *ledger.Ledger
	Catalog   *catalog.Catalog
	Announcer *newsletter.Announcer
	FAQ       *faq.Client
	Tickets   ticket.Renderer

	Logger     *slog.Logger
	SiteURL    string
	SessionTTL time.Duration
	// StaticDir 商品图片所在目录，删除商品时清理；为空时不处理文件。
	StaticDir string
	Now       func() time.Time
}

type handlers struct {
	Deps
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStore(d.SessionTTL)
	}
	if d.Events == nil {
		d.Events = queue.LogSink{Logger: d.Logger}
	}
	if d.Claims == nil {
		d.Claims = session.NewMemoryClaimer()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.New()
	}
	if d.Catalog == nil {
		d.Catalog = catalog.New()
	}
	if d.Tickets.QR == nil && d.Tickets.Barcode == nil {
		d.Tickets = ticket.Default
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d}

	r.Use(
		middleware.RequestLogger(d.Logger),
		middleware.Recovery(),
		middleware.Sessions(d.Sessions, int(d.SessionTTL/time.Second)),
		middleware.Scope(d.DB),
	)
	if d.StaticDir != "" {
		r.Static("/static", d.StaticDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	h.registerPublic(api)
	h.registerAdmin(api.Group("/admin"))
}

func reply(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "msg": msg})
}

// internalError 记录原始错误，响应里只给通用提示。
func internalError(c *gin.Context, err error) {
	middleware.Logger(c).Error("request failed", "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, "服务器内部错误")
}

// notFoundOr 哨兵错误映射为 404，其余按 500 处理。
func notFoundOr(c *gin.Context, err error, msg string, sentinels ...error) {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			fail(c, http.StatusNotFound, msg)
			return
		}
	}
	internalError(c, err)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "ID无效")
		return 0, false
	}
	return id, true
}

// trackingURL 订单追踪地址，二维码里编码的就是它。
func (h *handlers) trackingURL(code string) string {
	return h.SiteURL + "/api/orders/track/" + code
}
