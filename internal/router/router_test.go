package router

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/code"
	"storefront/internal/middleware"
	"storefront/internal/queue"
	"storefront/internal/session"
	"storefront/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// client 保存 sid cookie，模拟一个浏览器。
type client struct {
	t      *testing.T
	engine *gin.Engine
	sid    *http.Cookie
}

func (cl *client) do(method, path string, body any, headers ...string) (int, envelope) {
	cl.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(cl.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if cl.sid != nil {
		req.AddCookie(cl.sid)
	}
	w := httptest.NewRecorder()
	cl.engine.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.SessionCookie {
			cl.sid = ck
		}
	}
	var env envelope
	require.NoError(cl.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (cl *client) data(method, path string, body any, out any, headers ...string) {
	cl.t.Helper()
	status, env := cl.do(method, path, body, headers...)
	require.Equal(cl.t, http.StatusOK, status, env.Msg)
	if out != nil {
		require.NoError(cl.t, json.Unmarshal(env.Data, out))
	}
}

func setup(t *testing.T) (*gin.Engine, *queue.Recorder) {
	db := testutil.OpenDB(t)
	require.NoError(t, auth.EnsureDefaultAdmin(db, "admin", "s3cret"))
	events := &queue.Recorder{}
	r := gin.New()
	Setup(r, Deps{
		DB:         db,
		Sessions:   session.NewMemoryStore(time.Hour),
		Events:     events,
		Logger:     slog.New(slog.DiscardHandler),
		SiteURL:    "http://shop.test",
		SessionTTL: time.Hour,
	})
	return r, events
}

func TestLampScenario(t *testing.T) {
	r, events := setup(t)
	admin := &client{t: t, engine: r}
	shopper := &client{t: t, engine: r}

	status, _ := admin.do(http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = admin.do(http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	anonymous := *admin.sid
	admin.data(http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "s3cret"}, nil)
	assert.NotEqual(t, anonymous.Value, admin.sid.Value, "login issues a fresh sid")
	stale := &client{t: t, engine: r, sid: &anonymous}
	status, _ = stale.do(http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "pre-login sid is not elevated")

	var lamp struct {
		ID             int64  `json:"id"`
		Slug           string `json:"slug"`
		EffectiveCents int64  `json:"effective_cents"`
	}
	admin.data(http.MethodPost, "/api/admin/products", gin.H{
		"title": "Lamp", "price": "19.99", "stock": 1, "published": true,
	}, &lamp)
	assert.Equal(t, "lamp", lamp.Slug)
	assert.Equal(t, int64(1999), lamp.EffectiveCents)
	pid := strconv.FormatInt(lamp.ID, 10)

	var cart struct {
		TotalCents int64  `json:"total_cents"`
		TotalLabel string `json:"total_label"`
		Count      int    `json:"count"`
	}
	shopper.data(http.MethodPost, "/api/cart/items", gin.H{"product_id": pid, "quantity": 2}, &cart)
	assert.Equal(t, int64(3998), cart.TotalCents)
	assert.Equal(t, "MAD 39.98", cart.TotalLabel)

	status, _ = shopper.do(http.MethodPost, "/api/checkout", gin.H{"name": "Sam", "phone": " ", "city": "Rabat"})
	assert.Equal(t, http.StatusBadRequest, status)

	var order struct {
		OrderID    int64  `json:"order_id"`
		PublicCode string `json:"public_code"`
		TotalCents int64  `json:"total_cents"`
	}
	shopper.data(http.MethodPost, "/api/checkout",
		gin.H{"name": "Sam", "phone": "0600", "city": "Rabat"}, &order,
		HeaderIdempotencyKey, "k-1")
	assert.Equal(t, int64(3998), order.TotalCents)
	assert.True(t, code.Valid(order.PublicCode))

	shopper.data(http.MethodGet, "/api/cart", nil, &cart)
	assert.Zero(t, cart.Count, "cart cleared after checkout")

	shopper.data(http.MethodPost, "/api/cart/items", gin.H{"product_id": pid}, nil)
	status, _ = shopper.do(http.MethodPost, "/api/checkout",
		gin.H{"name": "Sam", "phone": "0600", "city": "Rabat"}, HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusConflict, status, "same idempotency key")

	var stored struct {
		Stock int64 `json:"stock"`
	}
	admin.data(http.MethodGet, "/api/admin/products/"+pid, nil, &stored)
	assert.Equal(t, int64(0), stored.Stock, "stock floored at zero")

	var found struct {
		ID         int64 `json:"id"`
		PublicCode string `json:"public_code"`
		Items      []struct {
			Quantity  int   `json:"quantity"`
			LineTotal int64 `json:"line_total"`
		} `json:"items"`
	}
	admin.data(http.MethodPost, "/api/admin/orders/lookup", gin.H{"order_code": order.PublicCode}, &found)
	assert.Equal(t, order.OrderID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, 2, found.Items[0].Quantity)

	// 改价不影响历史订单快照。
	admin.data(http.MethodPut, "/api/admin/products/"+pid, gin.H{"title": "Lamp", "price": "25.00", "stock": 5}, nil)
	var tracked struct {
		TotalCents int64  `json:"total_cents"`
		Status     string `json:"status"`
	}
	shopper.data(http.MethodGet, "/api/orders/track/"+order.PublicCode, nil, &tracked)
	assert.Equal(t, int64(3998), tracked.TotalCents)
	assert.Equal(t, "new", tracked.Status)

	oid := strconv.FormatInt(order.OrderID, 10)
	status, _ = admin.do(http.MethodPut, "/api/admin/orders/"+oid+"/status", gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, status)
	admin.data(http.MethodPut, "/api/admin/orders/"+oid+"/status", gin.H{"status": "shipped"}, nil)

	var dash struct {
		Revenue struct {
			Total int64 `json:"total"`
			Day   int64 `json:"day"`
		} `json:"revenue"`
		TotalOrders int64 `json:"total_orders"`
	}
	admin.data(http.MethodGet, "/api/admin/dashboard", nil, &dash)
	assert.Equal(t, int64(3998), dash.Revenue.Total)
	assert.Equal(t, int64(3998), dash.Revenue.Day)
	assert.Equal(t, int64(1), dash.TotalOrders)

	var tk struct {
		Ticket struct {
			Code    string `json:"code"`
			URL     string `json:"url"`
			QRImage string `json:"qr_img"`
		} `json:"ticket"`
	}
	admin.data(http.MethodGet, "/api/admin/orders/"+oid+"/ticket", nil, &tk)
	assert.Equal(t, order.PublicCode, tk.Ticket.Code)
	assert.Equal(t, "http://shop.test/api/orders/track/"+order.PublicCode, tk.Ticket.URL)
	assert.True(t, strings.HasPrefix(tk.Ticket.QRImage, "data:image/"))

	types := make([]queue.EventType, 0, len(events.Events))
	for _, e := range events.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []queue.EventType{queue.ProductCreated, queue.OrderCreated, queue.OrderStatusChanged}, types)

	admin.data(http.MethodPost, "/api/admin/logout", nil, nil)
	status, _ = admin.do(http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestStorefrontBrowsing(t *testing.T) {
	r, _ := setup(t)
	admin := &client{t: t, engine: r}
	visitor := &client{t: t, engine: r}
	admin.data(http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "s3cret"}, nil)

	var rug struct {
		ID int64 `json:"id"`
	}
	admin.data(http.MethodPost, "/api/admin/products", gin.H{"title": "Wool Rug", "price": "50", "tags": "wool", "published": true}, &rug)
	var draft struct {
		ID int64 `json:"id"`
	}
	admin.data(http.MethodPost, "/api/admin/products", gin.H{"title": "Secret", "price": "5"}, &draft)
	rid := strconv.FormatInt(rug.ID, 10)

	admin.data(http.MethodPost, "/api/admin/reviews", gin.H{"product_id": rug.ID, "rating": 4}, nil)

	var shop struct {
		Products []struct {
			ID     int64 `json:"id"`
			Rating struct {
				Average float64 `json:"average"`
				Count   int     `json:"count"`
			} `json:"rating"`
		} `json:"products"`
	}
	visitor.data(http.MethodGet, "/api/products?q=wool", nil, &shop)
	require.Len(t, shop.Products, 1)
	assert.Equal(t, rug.ID, shop.Products[0].ID)
	assert.Equal(t, 1, shop.Products[0].Rating.Count)

	status, _ := visitor.do(http.MethodGet, "/api/products/"+strconv.FormatInt(draft.ID, 10), nil)
	assert.Equal(t, http.StatusNotFound, status, "drafts are hidden")

	var detail struct {
		Reviews []struct {
			Name string `json:"name"`
		} `json:"reviews"`
	}
	visitor.data(http.MethodGet, "/api/products/"+rid, nil, &detail)
	require.Len(t, detail.Reviews, 1)
	assert.Equal(t, "Anonymous", detail.Reviews[0].Name)

	var quick struct {
		PublicCode string `json:"public_code"`
		TotalCents int64  `json:"total_cents"`
	}
	status, _ = visitor.do(http.MethodPost, "/api/products/"+rid+"/quick-checkout", gin.H{"first_name": "Ana"})
	assert.Equal(t, http.StatusBadRequest, status)
	visitor.data(http.MethodPost, "/api/products/"+rid+"/quick-checkout",
		gin.H{"first_name": "Ana", "last_name": "B", "city": "Fes", "quantity": 3}, &quick)
	assert.Equal(t, int64(15000), quick.TotalCents)

	var home struct {
		TopSellerID int64 `json:"top_seller_id"`
	}
	visitor.data(http.MethodGet, "/api/home", nil, &home)
	assert.Equal(t, rug.ID, home.TopSellerID)

	status, _ = visitor.do(http.MethodPost, "/api/checkout", gin.H{"name": "A", "phone": "1", "city": "C"})
	assert.Equal(t, http.StatusBadRequest, status, "empty cart")
}

func TestContactNewsletterFAQ(t *testing.T) {
	r, _ := setup(t)
	admin := &client{t: t, engine: r}
	visitor := &client{t: t, engine: r}

	status, _ := visitor.do(http.MethodPost, "/api/contact", gin.H{"name": "Ana"})
	assert.Equal(t, http.StatusBadRequest, status)
	visitor.data(http.MethodPost, "/api/contact", gin.H{"name": "Ana", "whatsapp": "+212", "message": "Hi"}, nil)

	var sub struct {
		Added bool `json:"added"`
	}
	visitor.data(http.MethodPost, "/api/newsletter", gin.H{"email": "Ana@X.co"}, &sub)
	assert.True(t, sub.Added)
	visitor.data(http.MethodPost, "/api/newsletter", gin.H{"email": "ana@x.co"}, &sub)
	assert.False(t, sub.Added)
	status, _ = visitor.do(http.MethodPost, "/api/newsletter", gin.H{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)

	var answer struct {
		Answer string `json:"answer"`
	}
	visitor.data(http.MethodPost, "/api/faq", gin.H{"question": ""}, &answer)
	assert.NotEmpty(t, answer.Answer)

	admin.data(http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "s3cret"}, nil)
	var msgs []struct {
		ID     int64 `json:"id"`
		IsRead bool  `json:"is_read"`
	}
	admin.data(http.MethodGet, "/api/admin/messages", nil, &msgs)
	require.Len(t, msgs, 1)
	mid := strconv.FormatInt(msgs[0].ID, 10)
	admin.data(http.MethodPost, "/api/admin/messages/"+mid+"/toggle", nil, nil)
	admin.data(http.MethodGet, "/api/admin/messages", nil, &msgs)
	assert.True(t, msgs[0].IsRead)
	admin.data(http.MethodDelete, "/api/admin/messages/"+mid, nil, nil)
	status, _ = admin.do(http.MethodDelete, "/api/admin/messages/"+mid, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = admin.do(http.MethodPost, "/api/admin/newsletter", gin.H{"email": "ana@x.co"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = admin.do(http.MethodPost, "/api/admin/newsletter", gin.H{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)

	var ai struct {
		Context string `json:"context"`
	}
	admin.data(http.MethodPut, "/api/admin/ai", gin.H{"context": "  Livraison 48h  "}, nil)
	admin.data(http.MethodGet, "/api/admin/ai", nil, &ai)
	assert.Equal(t, "Livraison 48h", ai.Context)
}
