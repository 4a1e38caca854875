package session

import (
	"context"
	"testing"
	"time"

	"storefront/internal/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	sid := NewID()

	empty, err := s.Load(ctx, sid)
	require.NoError(t, err)
	assert.True(t, empty.Cart.Empty())
	assert.False(t, empty.LoggedIn())

	sess := Session{AdminID: 1, AdminUsername: "admin"}
	sess.Cart.Add("7", 2)
	require.NoError(t, s.Save(ctx, sid, sess))

	// 修改调用方的副本不影响已保存的会话。
	sess.Cart.Add("8", 1)

	got, err := s.Load(ctx, sid)
	require.NoError(t, err)
	assert.True(t, got.LoggedIn())
	assert.Equal(t, []cart.Entry{{ProductID: "7", Quantity: 2}}, got.Cart.Entries)

	require.NoError(t, s.Delete(ctx, sid))
	got, err = s.Load(ctx, sid)
	require.NoError(t, err)
	assert.False(t, got.LoggedIn())
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "sid", Session{AdminID: 3}))
	now = now.Add(2 * time.Minute)

	got, err := s.Load(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, got.LoggedIn())
}
