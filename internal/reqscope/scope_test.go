package reqscope

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/model"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestScopePinsConnectionLazily(t *testing.T) {
	pool := testutil.OpenDB(t)
	sqlDB, err := pool.DB()
	require.NoError(t, err)

	s := New(context.Background(), pool)
	assert.Equal(t, 0, sqlDB.Stats().InUse, "no connection before first use")

	db, err := s.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().InUse)

	again, err := s.DB()
	require.NoError(t, err)
	assert.Same(t, db, again)

	testutil.Product(t, pool, "Lamp", 1999, 1)
	var count int64
	require.NoError(t, db.Model(&model.Product{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, sqlDB.Stats().InUse)

	_, err = s.DB()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScopeTransactionsRunOnPinnedConn(t *testing.T) {
	pool := testutil.OpenDB(t)
	s := New(context.Background(), pool)
	defer s.Close()

	db, err := s.DB()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&model.Subscriber{Email: "a@b.co"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&model.Subscriber{}).Count(&count).Error)
	assert.Zero(t, count, "rolled back")
}

func TestMemo(t *testing.T) {
	s := New(context.Background(), nil)
	calls := 0
	fn := func() ([]int64, error) {
		calls++
		return []int64{3, 1}, nil
	}

	a, err := Memo(s, "top", fn)
	require.NoError(t, err)
	b, err := Memo(s, "top", fn)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, calls)

	s.Forget("top")
	_, err = Memo(s, "top", fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, err = Memo(s, "fail", func() (int, error) { return 0, errors.New("x") })
	assert.Error(t, err)
	v, err := Memo(s, "fail", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v, "errors are not cached")

	require.NoError(t, s.Close())
	_, err = Memo(s, "top", fn)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "memo cleared on close")
}
