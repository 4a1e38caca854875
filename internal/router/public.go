package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/faq"
	"storefront/internal/inbox"
	"storefront/internal/ledger"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/newsletter"
	"storefront/internal/queue"
	"storefront/internal/reqscope"
	rediskey "storefront/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	memoTopSellers = "top_sellers"
	memoRatings    = "ratings"

	// HeaderIdempotencyKey 客户端为每次结账生成的随机键，重复提交只会下一单。
	HeaderIdempotencyKey = "Idempotency-Key"
	checkoutClaimTTL     = 10 * time.Minute
)

// staticFAQ 固定问答，AI 助手只补充这些之外的问题。
var staticFAQ = []gin.H{
	{"q": "How do I place an order?", "a": "Browse products, add to cart, and proceed to checkout."},
	{"q": "What payment methods are accepted?", "a": "Cash on delivery by default; other options can be enabled by the store."},
	{"q": "How long does delivery take?", "a": "Usually 2 to 5 business days depending on your location."},
	{"q": "Can I return a product?", "a": "Yes, within 14 days if unused and in original packaging."},
}

func (h *handlers) registerPublic(g *gin.RouterGroup) {
	g.GET("/home", h.home)
	g.GET("/products", h.shop)
	g.GET("/products/:id", h.productDetail)
	g.POST("/products/:id/quick-checkout", middleware.RateLimit(h.Limiter, "checkout"), h.quickCheckout)

	g.GET("/cart", h.viewCart)
	g.POST("/cart/items", h.addToCart)
	g.PUT("/cart", h.updateCart)
	g.DELETE("/cart/items/:pid", h.removeFromCart)
	g.POST("/checkout", middleware.RateLimit(h.Limiter, "checkout"), h.checkout)

	g.GET("/orders/:id/success", h.orderSuccess)
	g.GET("/orders/track/:code", h.trackOrder)

	g.POST("/contact", h.contact)
	g.GET("/newsletter", h.newsletterFeatured)
	g.POST("/newsletter", h.subscribe)
	g.GET("/faq", h.faqList)
	g.POST("/faq", middleware.RateLimit(h.Limiter, "faq"), h.askFAQ)
}

// productView 前台商品展示：附带实际售价、格式化价格和评分。
type productView struct {
	model.Product
	EffectiveCents int64        `json:"effective_cents"`
	PriceLabel     string       `json:"price_label"`
	Rating         model.Rating `json:"rating"`
}

func viewOf(p model.Product, ratings map[int64]model.Rating) productView {
	eff := cart.EffectivePrice(p)
	return productView{
		Product:        p,
		EffectiveCents: eff,
		PriceLabel:     cart.FormatCents(eff),
		Rating:         ratings[p.ID],
	}
}

func viewsOf(ps []model.Product, ratings map[int64]model.Rating) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewOf(p, ratings))
	}
	return out
}

// ratings 同一请求内只查询一次评分聚合。
func ratings(c *gin.Context, db *gorm.DB) (map[int64]model.Rating, error) {
	return reqscope.Memo(middleware.GetScope(c), memoRatings, func() (map[int64]model.Rating, error) {
		return catalog.Ratings(db)
	})
}

// topSellerID 同一请求内只统计一次畅销商品，没有订单时为 0。
func topSellerID(c *gin.Context, db *gorm.DB) (int64, error) {
	sellers, err := reqscope.Memo(middleware.GetScope(c), memoTopSellers, func() ([]ledger.Seller, error) {
		return ledger.TopSellers(db, 1, time.Time{})
	})
	if err != nil || len(sellers) == 0 {
		return 0, err
	}
	return sellers[0].ProductID, nil
}

func (h *handlers) home(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	top, err := topSellerID(c, db)
	if err != nil {
		internalError(c, err)
		return
	}
	products, err := catalog.Home(db, top)
	if err != nil {
		internalError(c, err)
		return
	}
	rs, err := ratings(c, db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"products": viewsOf(products, rs), "top_seller_id": top})
}

func (h *handlers) shop(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	q, category := c.Query("q"), c.Query("category")
	products, err := catalog.Search(db, q, category)
	if err != nil {
		internalError(c, err)
		return
	}
	rs, err := ratings(c, db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"products": viewsOf(products, rs), "q": strings.TrimSpace(q), "category": strings.TrimSpace(category)})
}

func (h *handlers) productDetail(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := catalog.GetPublished(db, id)
	if err != nil {
		notFoundOr(c, err, "商品不存在", catalog.ErrNotFound)
		return
	}
	reviews, err := catalog.ListReviews(db, id)
	if err != nil {
		internalError(c, err)
		return
	}
	rs, err := ratings(c, db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"product": viewOf(*p, rs), "reviews": reviews})
}

type cartView struct {
	Items      []model.LineItem `json:"items"`
	TotalCents int64            `json:"total_cents"`
	TotalLabel string           `json:"total_label"`
	Count      int              `json:"count"`
}

func (h *handlers) buildCartView(c *gin.Context, db *gorm.DB) (cartView, error) {
	sess := middleware.GetSession(c)
	items, total, err := cart.BuildItems(db, sess.Cart)
	if err != nil {
		return cartView{}, err
	}
	return cartView{Items: items, TotalCents: total, TotalLabel: cart.FormatCents(total), Count: sess.Cart.Count()}, nil
}

func (h *handlers) viewCart(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	v, err := h.buildCartView(c, db)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, v)
}

func (h *handlers) saveCartAndRespond(c *gin.Context) {
	if err := middleware.SaveSession(c); err != nil {
		internalError(c, err)
		return
	}
	h.viewCart(c)
}

func (h *handlers) addToCart(c *gin.Context) {
	var req struct {
		ProductID string `json:"product_id" binding:"required"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	middleware.GetSession(c).Cart.Add(strings.TrimSpace(req.ProductID), req.Quantity)
	h.saveCartAndRespond(c)
}

// updateCart 用提交的数量整体覆盖购物车，数量 <= 0 的行被移除。
func (h *handlers) updateCart(c *gin.Context) {
	var req struct {
		Items []cart.Entry `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	middleware.GetSession(c).Cart.Replace(req.Items)
	h.saveCartAndRespond(c)
}

func (h *handlers) removeFromCart(c *gin.Context) {
	middleware.GetSession(c).Cart.Remove(c.Param("pid"))
	h.saveCartAndRespond(c)
}

type checkoutRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	City    string `json:"city" binding:"required"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Country string `json:"country"`
	Notes   string `json:"notes"`
}

func (r checkoutRequest) contact() (ledger.Contact, bool) {
	ct := ledger.Contact{
		Name:    strings.TrimSpace(r.Name),
		Phone:   strings.TrimSpace(r.Phone),
		City:    strings.TrimSpace(r.City),
		Email:   strings.TrimSpace(r.Email),
		Address: strings.TrimSpace(r.Address),
		Country: strings.TrimSpace(r.Country),
		Notes:   strings.TrimSpace(r.Notes),
	}
	return ct, ct.Name != "" && ct.Phone != "" && ct.City != ""
}

// claimCheckout 认领幂等键。没有幂等键时直接放行；返回的 release 在下单失败时调用。
func (h *handlers) claimCheckout(c *gin.Context) (release func(), claimed bool) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" || len(key) > 128 {
		return func() {}, true
	}
	claimKey := rediskey.CheckoutClaimKey(middleware.SessionID(c), key)
	owner := uuid.NewString()
	got, err := h.Claims.Claim(c.Request.Context(), claimKey, owner, checkoutClaimTTL)
	if err != nil {
		// 认领存储不可用时降级为不去重。
		middleware.Logger(c).Warn("checkout claim failed", "error", err)
		return func() {}, true
	}
	if !got {
		return nil, false
	}
	return func() {
		if err := h.Claims.Release(context.WithoutCancel(c.Request.Context()), claimKey, owner); err != nil {
			middleware.Logger(c).Warn("checkout claim release failed", "error", err)
		}
	}, true
}

func (h *handlers) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Veuillez renseigner le nom, le téléphone et la ville.")
		return
	}
	contact, valid := req.contact()
	if !valid {
		fail(c, http.StatusBadRequest, "Veuillez renseigner le nom, le téléphone et la ville.")
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	sess := middleware.GetSession(c)
	items, _, err := cart.BuildItems(db, sess.Cart)
	if err != nil {
		internalError(c, err)
		return
	}
	if len(items) == 0 {
		fail(c, http.StatusBadRequest, "Your cart is empty")
		return
	}

	release, claimed := h.claimCheckout(c)
	if !claimed {
		fail(c, http.StatusConflict, "订单正在处理，请勿重复提交")
		return
	}
	order, err := h.Ledger.Create(db, contact, items)
	if err != nil {
		release()
		internalError(c, err)
		return
	}

	sess.Cart = cart.Cart{}
	if err := middleware.SaveSession(c); err != nil {
		middleware.Logger(c).Warn("clear cart failed", "order_id", order.ID, "error", err)
	}
	h.Events.Emit(c.Request.Context(), queue.NewOrderCreated(order))
	reply(c, orderCreated(order))
}

func orderCreated(o *model.Order) gin.H {
	return gin.H{
		"order_id":    o.ID,
		"public_code": o.Code(),
		"total_cents": o.TotalCents,
		"total_label": cart.FormatCents(o.TotalCents),
		"status":      o.Status,
	}
}

// quickCheckout 商品页直接下单，不经过购物车。
func (h *handlers) quickCheckout(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		City      string `json:"city"`
		Notes     string `json:"notes"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	first, last, city := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), strings.TrimSpace(req.City)
	if first == "" || last == "" || city == "" {
		fail(c, http.StatusBadRequest, "Please fill first name, last name and city.")
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	p, err := catalog.GetPublished(db, id)
	if err != nil {
		notFoundOr(c, err, "商品不存在", catalog.ErrNotFound)
		return
	}
	release, claimed := h.claimCheckout(c)
	if !claimed {
		fail(c, http.StatusConflict, "订单正在处理，请勿重复提交")
		return
	}
	order, err := h.Ledger.Create(db, ledger.Contact{
		Name:  first + " " + last,
		Phone: strings.TrimSpace(req.Phone),
		City:  city,
		Notes: strings.TrimSpace(req.Notes),
	}, []model.LineItem{cart.LineItemFor(*p, max(1, req.Quantity))})
	if err != nil {
		release()
		internalError(c, err)
		return
	}
	h.Events.Emit(c.Request.Context(), queue.NewOrderCreated(order))
	reply(c, orderCreated(order))
}

func (h *handlers) orderSuccess(c *gin.Context) {
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
	reply(c, gin.H{"order_id": o.ID, "public_code": h.Ledger.EnsurePublicCode(db, o), "status": o.Status})
}

// trackOrder 顾客凭编号查询订单状态，只返回不含联系方式的字段。
func (h *handlers) trackOrder(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	o, err := ledger.Lookup(db, c.Param("code"))
	if err != nil {
		notFoundOr(c, err, "订单不存在", ledger.ErrNotFound)
		return
	}
	items, err := o.LineItems()
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{
		"public_code": h.Ledger.EnsurePublicCode(db, o),
		"status":      o.Status,
		"created_at":  o.CreatedAt,
		"items":       items,
		"total_cents": o.TotalCents,
		"total_label": cart.FormatCents(o.TotalCents),
	})
}

func (h *handlers) contact(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		WhatsApp string `json:"whatsapp"`
		Subject  string `json:"subject"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	m, err := inbox.Submit(db, inbox.Input{
		Name: req.Name, Email: req.Email, WhatsApp: req.WhatsApp, Subject: req.Subject, Message: req.Message,
	}, h.Now())
	if err != nil {
		if errors.Is(err, inbox.ErrMissingFields) {
			fail(c, http.StatusBadRequest, "Please fill required fields.")
			return
		}
		internalError(c, err)
		return
	}
	reply(c, gin.H{"id": m.ID})
}

// newsletterFeatured 订阅页展示最新的 3 个商品。
func (h *handlers) newsletterFeatured(c *gin.Context) {
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	products, err := catalog.Newest(db, 3)
	if err != nil {
		internalError(c, err)
		return
	}
	reply(c, gin.H{"featured": viewsOf(products, nil)})
}

func (h *handlers) subscribe(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		fail(c, http.StatusBadRequest, "Merci d'indiquer votre adresse e-mail.")
		return
	}
	db, ok := middleware.DB(c)
	if !ok {
		return
	}
	added, err := newsletter.Subscribe(db, req.Email, h.Now())
	if err != nil {
		if errors.Is(err, newsletter.ErrInvalidEmail) {
			fail(c, http.StatusBadRequest, "Adresse e-mail invalide.")
			return
		}
		internalError(c, err)
		return
	}
	msg := "Vous êtes inscrit(e) à notre newsletter !"
	if !added {
		msg = "Cette adresse est déjà inscrite."
	}
	reply(c, gin.H{"added": added, "msg": msg})
}

func (h *handlers) faqList(c *gin.Context) {
	reply(c, gin.H{"faqs": staticFAQ})
}

// askFAQ 总是返回 200，外部接口的任何失败都转成固定提示语。
func (h *handlers) askFAQ(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	_ = c.ShouldBindJSON(&req)
	question := strings.TrimSpace(req.Question)

	contextText := ""
	if question != "" && h.FAQ != nil {
		if db, err := middleware.GetScope(c).DB(); err == nil {
			if contextText, err = faq.LoadContext(db); err != nil {
				middleware.Logger(c).Warn("load faq context failed", "error", err)
			}
		}
	}
	answer := h.FAQ.Ask(c.Request.Context(), question, contextText)
	reply(c, gin.H{"question": question, "answer": answer})
}
