package router

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/faq"
	"storefront/internal/inbox"
	"storefront/internal/ledger"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/newsletter"
	"storefront/internal/queue"
	"storefront/internal/report"

	"github.com/gin-gonic/gin"
)

func (h *handlers) registerAdmin(g *gin.RouterGroup) {
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)

	a := g.Group("", middleware.RequireAdmin())
	a.GET("/dashboard", h.dashboard)

	a.GET("/products", h.adminProducts)
	a.POST("/products", h.createProduct)
	a.GET("/products/:id", h.adminProduct)
	a.PUT("/products/:id", h.updateProduct)
	a.DELETE("/products/:id", h.deleteProduct)
	a.POST("/products/:id/publish", h.setPublished(true))
	a.POST("/products/:id/draft", h.setPublished(false))
	a.POST("/products/:id/duplicate", h.duplicateProduct)

	a.GET("/orders", h.adminOrders)
	a.POST("/orders/clear", h.clearOrders)
	a.POST("/orders/lookup", h.lookupOrder)
	a.GET("/orders/:id", h.adminOrder)
	a.PUT("/orders/:id/status", h.setOrderStatus)
	a.GET("/orders/:id/ticket", h.orderTicket)

	a.GET("/messages", h.messages)
	a.POST("/messages/:id/toggle", h.toggleMessage)
	a.DELETE("/messages/:id", h.deleteMessage)

	a.GET("/reviews", h.reviews)
	a.POST("/reviews", h.createReview)
	a.PUT("/reviews/:id", h.updateReview)
	a.DELETE("/reviews/:id", h.deleteReview)

	a.GET("/newsletter", h.subscribers)
	a.POST("/newsletter", h.addSubscriber)
	a.PUT("/newsletter/:id", h.updateSubscriber)
	a.DELETE("/newsletter/:id", h.deleteSubscriber)

	a.GET("/ai", h.aiContext)
	a.PUT("/ai", h.saveAIContext)
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	admin, err := auth.Authenticate(db, req.Username, strings.TrimSpace(req.Password))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fail(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		internalError(c, err)
		return
	}
	if err := middleware.RotateSession(c); err != nil {
		internalError(c, err)
		return
	}
	sess := middleware.GetSession(c)
	sess.AdminID = admin.ID
	sess.AdminUsername = admin.Username
	if err := middleware.SaveSession(c); err != nil {
		internalError(c, err)
		return
	}
	middleware.Logger(c).Info("admin login", "admin_id", admin.ID)
	reply(c, gin.H{"id": admin.ID, "username": admin.Username})
}

func (h *handlers) logout(c *gin.Context) {
	sess := middleware.GetSession(c)
	sess.AdminID = 0
	sess.AdminUsername = ""
	if err := middleware.SaveSession(c); err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"msg": "Logged out"})
}

func (h *handlers) dashboard(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	d, err := report.BuildDashboard(db, h.Now())
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, d)
}

// productRequest 后台商品表单，价格按十进制字符串提交（"19.99"）。
type productRequest struct {
	Title           string   `json:"title" binding:"required"`
	DescriptionHTML string   `json:"description_html"`
	Price           string   `json:"price"`
	Discount        string   `json:"discount"`
	Category        string   `json:"category"`
	Tags            string   `json:"tags"`
	SKU             string   `json:"sku"`
	Stock           int64    `json:"stock"`
	Published       bool     `json:"published"`
	Images          []string `json:"images"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Title:           r.Title,
		DescriptionHTML: r.DescriptionHTML,
		PriceCents:      cart.ParseCents(r.Price),
		DiscountCents:   cart.ParseOptionalCents(r.Discount),
		Category:        r.Category,
		Tags:            r.Tags,
		SKU:             r.SKU,
		Stock:           r.Stock,
		Published:       r.Published,
		Images:          r.Images,
	}
}

func (h *handlers) adminProducts(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	products, err := catalog.List(db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, viewsOf(products, nil))
}

func (h *handlers) adminProduct(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := catalog.Get(db, id)
	if err != nil {
		notFoundOr(c, err, "商品不存在", catalog.ErrNotFound)
		return
	}
	reply(c, viewOf(*p, nil))
}

func (h *handlers) productWriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrTitleRequired):
		fail(c, http.StatusBadRequest, "Title is required")
	case errors.Is(err, catalog.ErrNotFound):
		fail(c, http.StatusNotFound, "商品不存在")
	case errors.Is(err, catalog.ErrCodeExhausted):
		fail(c, http.StatusConflict, "Could not save product. Please try again.")
	default:
		internalError(c, err)
	}
}

// announce 新商品通知：异步邮件 + 事件。
func (h *handlers) announce(c *gin.Context, p *model.Product) {
	h.Announcer.Queue(*p)
	h.Events.Emit(c.Request.Context(), queue.NewProductCreated(p))
}

func (h *handlers) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := h.Catalog.Create(db, req.input())
	if err != nil {
		h.productWriteError(c, err)
		return
	}
	h.announce(c, p)
	reply(c, viewOf(*p, nil))
}

func (h *handlers) updateProduct(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := h.Catalog.Update(db, id, req.input())
	if err != nil {
		h.productWriteError(c, err)
		return
	}
	reply(c, viewOf(*p, nil))
}

func (h *handlers) deleteProduct(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	images, err := catalog.Delete(db, id)
	if err != nil {
		notFoundOr(c, err, "商品不存在", catalog.ErrNotFound)
		return
	}
	h.removeImages(c, images)
	reply(c, gin.H{"id": id})
}

// removeImages 尽力删除商品图片文件，路径限制在 StaticDir 内。
func (h *handlers) removeImages(c *gin.Context, images []string) {
	if h.StaticDir == "" {
		return
	}
	for _, img := range images {
		path := filepath.Join(h.StaticDir, filepath.Clean("/"+img))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			middleware.Logger(c).Warn("remove product image failed", "path", path, "error", err)
		}
	}
}

func (h *handlers) setPublished(published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c, "id")
		if !valid {
			return
		}
		db, ok := middleware.DB(c)
		if !ok {
			return
		}
		p, err := h.Catalog.SetPublished(db, id, published)
		if err != nil {
			notFoundOr(c, err, "商品不存在", catalog.ErrNotFound)
			return
		}
		reply(c, viewOf(*p, nil))
	}
}

func (h *handlers) duplicateProduct(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := h.Catalog.Duplicate(db, id)
	if err != nil {
		h.productWriteError(c, err)
		return
	}
	h.announce(c, p)
	reply(c, viewOf(*p, nil))
}

// orderView 后台订单详情：解码后的行项目和公开编号。
type orderView struct {
	*model.Order
	Items      []model.LineItem `json:"items"`
	PublicCode string           `json:"public_code"`
	TotalLabel string           `json:"total_label"`
}

func (h *handlers) viewOrder(c *gin.Context, o *model.Order) (orderView, bool) {
	items, err := o.LineItems()
	if err != nil {
		internalError(c, err)
		return orderView{}, false
	}
	db, ok := middleware.DB(c)
	if !ok {
		return orderView{}, false
	}
	return orderView{
		Order:      o,
		Items:      items,
		PublicCode: h.Ledger.EnsurePublicCode(db, o),
		TotalLabel: cart.FormatCents(o.TotalCents),
	}, true
}

func (h *handlers) adminOrders(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	orders, err := ledger.List(db, status)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, "未知的订单状态")
			return
		}
		internalError(c, err)
		return
	}
	counts, total, err := report.StatusCounts(db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"orders": orders, "current_status": status, "counts": counts, "total": total})
}

func (h *handlers) adminOrder(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	o, err := ledger.Get(db, id)
	if err != nil {
		notFoundOr(c, err, "订单不存在", ledger.ErrNotFound)
		return
	}
	if v, ok := h.viewOrder(c, o); ok {
		reply(c, v)
	}
}

func (h *handlers) setOrderStatus(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	st, err := ledger.SetStatus(db, id, strings.TrimSpace(req.Status))
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, "未知的订单状态")
			return
		}
		notFoundOr(c, err, "订单不存在", ledger.ErrNotFound)
		return
	}
	middleware.GetScope(c).Forget(memoTopSellers)
	h.Events.Emit(c.Request.Context(), queue.NewStatusChanged(id, st))
	reply(c, gin.H{"id": id, "status": st})
}

func (h *handlers) clearOrders(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	n, err := ledger.Clear(db)
	if err != nil {
		internalError(c, err)
		return
	}
	middleware.GetScope(c).Forget(memoTopSellers)
	middleware.Logger(c).Warn("orders cleared", "count", n, "admin", middleware.GetSession(c).AdminUsername)
	h.Events.Emit(c.Request.Context(), queue.NewOrdersCleared())
	reply(c, gin.H{"deleted": n})
}

func (h *handlers) lookupOrder(c *gin.Context) {
	var req struct {
		Code string `json:"order_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, "Please enter an order ID or code.")
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	o, err := ledger.Lookup(db, req.Code)
	if err != nil {
		notFoundOr(c, err, "Order not found.", ledger.ErrNotFound)
		return
	}
	if v, ok := h.viewOrder(c, o); ok {
		reply(c, v)
	}
}

func (h *handlers) orderTicket(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	o, err := ledger.Get(db, id)
	if err != nil {
		notFoundOr(c, err, "订单不存在", ledger.ErrNotFound)
		return
	}
	v, ok := h.viewOrder(c, o)
	if !ok {
		return
	}
	reply(c, gin.H{
		"order":  v,
		"ticket": h.Tickets.Render(h.trackingURL(v.PublicCode), v.PublicCode),
	})
}

func (h *handlers) messages(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	list, err := inbox.List(db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, list)
}

func (h *handlers) toggleMessage(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	if err := inbox.ToggleRead(db, id); err != nil {
		notFoundOr(c, err, "留言不存在", inbox.ErrNotFound)
		return
	}
	reply(c, gin.H{"id": id})
}

func (h *handlers) deleteMessage(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	if err := inbox.Delete(db, id); err != nil {
		notFoundOr(c, err, "留言不存在", inbox.ErrNotFound)
		return
	}
	reply(c, gin.H{"id": id})
}

type reviewRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Body      string `json:"body"`
}

func (r reviewRequest) input() catalog.ReviewInput {
	rating := r.Rating
	if rating == 0 {
		rating = 5
	}
	return catalog.ReviewInput{ProductID: r.ProductID, Name: r.Name, Rating: rating, Body: r.Body}
}

func (h *handlers) reviews(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	var productID int64
	if raw := strings.TrimSpace(c.Query("product_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fail(c, http.StatusBadRequest, "商品ID无效")
			return
		}
		productID = id
	}
	list, err := catalog.ListReviews(db, productID)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"reviews": list, "current_pid": productID})
}

func (h *handlers) reviewWriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		fail(c, http.StatusNotFound, "商品不存在")
	case errors.Is(err, catalog.ErrReviewNotFound):
		fail(c, http.StatusNotFound, "评价不存在")
	default:
		internalError(c, err)
	}
}

func (h *handlers) createReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	r, err := catalog.CreateReview(db, req.input(), h.Now())
	if err != nil {
		h.reviewWriteError(c, err)
		return
	}
	middleware.GetScope(c).Forget(memoRatings)
	reply(c, r)
}

func (h *handlers) updateReview(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	r, err := catalog.UpdateReview(db, id, req.input())
	if err != nil {
		h.reviewWriteError(c, err)
		return
	}
	middleware.GetScope(c).Forget(memoRatings)
	reply(c, r)
}

func (h *handlers) deleteReview(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	pid, err := catalog.DeleteReview(db, id)
	if err != nil {
		h.reviewWriteError(c, err)
		return
	}
	middleware.GetScope(c).Forget(memoRatings)
	reply(c, gin.H{"id": id, "product_id": pid})
}

func (h *handlers) subscribers(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	list, err := newsletter.List(db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, list)
}

func (h *handlers) addSubscriber(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Please enter a valid email address.")
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	added, err := newsletter.Subscribe(db, req.Email, h.Now())
	if err != nil && !errors.Is(err, newsletter.ErrInvalidEmail) {
		internalError(c, err)
		return
	}
	if !added {
		fail(c, http.StatusConflict, "Email invalid or already subscribed.")
		return
	}
	reply(c, gin.H{"added": true})
}

func (h *handlers) subscriberWriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, newsletter.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, "Please enter a valid email address.")
	case errors.Is(err, newsletter.ErrDuplicate):
		fail(c, http.StatusConflict, "This email is already subscribed.")
	case errors.Is(err, newsletter.ErrNotFound):
		fail(c, http.StatusNotFound, "Subscriber not found.")
	default:
		internalError(c, err)
	}
}

func (h *handlers) updateSubscriber(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	if err := newsletter.Update(db, id, req.Email); err != nil {
		h.subscriberWriteError(c, err)
		return
	}
	reply(c, gin.H{"id": id, "email": newsletter.Normalize(req.Email)})
}

func (h *handlers) deleteSubscriber(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	if err := newsletter.Delete(db, id); err != nil {
		h.subscriberWriteError(c, err)
		return
	}
	reply(c, gin.H{"id": id})
}

func (h *handlers) aiContext(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	text, err := faq.LoadContext(db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"context": text})
}

func (h *handlers) saveAIContext(c *gin.Context) {
	var req struct {
		Context string `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	text := strings.TrimSpace(req.Context)
	if err := faq.SaveContext(db, text); err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"context": text})
}
