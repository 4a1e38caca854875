package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/reqscope"
	"storefront/internal/session"
	"storefront/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLimiter struct {
	keys  []string
	allow bool
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func newEngine(store session.Store, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(slog.New(slog.DiscardHandler)), Sessions(store, 3600))
	r.Use(mw...)
	return r
}

func TestRateLimitKeysBySession(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	r := newEngine(session.NewMemoryStore(time.Hour), RateLimit(lim, "checkout"))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "abc"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"storefront:rate_limit:checkout:sid:abc"}, lim.keys)

	lim.allow = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	lim.err = errors.New("redis down")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code, "fail open")
}

func TestRateLimitNilLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil, "checkout"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionsAssignCookieAndPersist(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	r := newEngine(store)
	r.POST("/add", func(c *gin.Context) {
		GetSession(c).Cart.Add("7", 2)
		require.NoError(t, SaveSession(c))
		c.Status(http.StatusOK)
	})
	r.GET("/count", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": GetSession(c).Cart.Count()})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/add", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/count", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"count":2}`, w.Body.String())
	assert.Empty(t, w.Result().Cookies(), "existing sid is reused")
}

func TestRequireAdmin(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	require.NoError(t, store.Save(context.Background(), "admin-sid", session.Session{AdminID: 1, AdminUsername: "admin"}))

	r := newEngine(store)
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "admin-sid"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScopeClosesOnPanic(t *testing.T) {
	db := testutil.OpenDB(t)
	r := gin.New()
	r.Use(Recovery(), Scope(db))

	var scope *reqscope.Scope
	r.GET("/boom", func(c *gin.Context) {
		_, ok := DB(c)
		require.True(t, ok)
		scope = GetScope(c)
		panic("boom")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	require.NotNil(t, scope)
	_, err := scope.DB()
	assert.Error(t, err, "scope closed after panic")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Zero(t, sqlDB.Stats().InUse)
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	r := newEngine(session.NewMemoryStore(time.Hour))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
}

func TestRotateSessionIssuesFreshID(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(time.Hour)
	require.NoError(t, store.Save(ctx, "planted-sid", session.Session{}))

	r := newEngine(store)
	r.POST("/login", func(c *gin.Context) {
		GetSession(c).Cart.Add("7", 1)
		require.NoError(t, RotateSession(c))
		GetSession(c).AdminID = 1
		require.NoError(t, SaveSession(c))
		c.String(http.StatusOK, SessionID(c))
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "planted-sid"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	newSID := w.Body.String()
	assert.NotEqual(t, "planted-sid", newSID)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, newSID, cookies[len(cookies)-1].Value)

	old, err := store.Load(ctx, "planted-sid")
	require.NoError(t, err)
	assert.False(t, old.LoggedIn(), "old sid stays anonymous")

	fresh, err := store.Load(ctx, newSID)
	require.NoError(t, err)
	assert.True(t, fresh.LoggedIn())
	assert.Equal(t, 1, fresh.Cart.Count(), "cart carried over")
}
