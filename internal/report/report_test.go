package report

import (
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func TestRevenueWindowsAreIndependent(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.Order(t, db, model.StatusCompleted, now.Add(-2*time.Hour), testutil.Item(1, "A", 100, 1))
	testutil.Order(t, db, model.StatusShipped, now.AddDate(0, 0, -3), testutil.Item(1, "A", 1000, 1))
	testutil.Order(t, db, model.StatusCompleted, now.AddDate(0, 0, -20), testutil.Item(1, "A", 10000, 1))
	testutil.Order(t, db, model.StatusCompleted, now.AddDate(0, 0, -90), testutil.Item(1, "A", 100000, 1))
	testutil.Order(t, db, model.StatusNew, now, testutil.Item(1, "A", 7, 1))
	testutil.Order(t, db, model.StatusCancelled, now, testutil.Item(1, "A", 7, 1))

	r, err := RevenueWindows(db, now)
	require.NoError(t, err)
	assert.Equal(t, Revenues{Day: 100, Week: 1100, Month: 11100, Total: 111100}, r)
}

func TestStatusCountsFixedOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.Order(t, db, model.StatusShipped, now, testutil.Item(1, "A", 1, 1))
	testutil.Order(t, db, model.StatusShipped, now, testutil.Item(1, "A", 1, 1))
	testutil.Order(t, db, model.StatusNew, now, testutil.Item(1, "A", 1, 1))
	// 历史库里可能残留的非规范状态。
	require.NoError(t, db.Exec("INSERT INTO orders (items, total_cents, status, created_at) VALUES ('[]', 0, 'weird', ?)",
		model.NewTimestamp(now).String()).Error)

	counts, total, err := StatusCounts(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []StatusCount{
		{model.StatusNew, 1},
		{model.StatusProcessing, 0},
		{model.StatusShipped, 2},
		{model.StatusCompleted, 0},
		{model.StatusCancelled, 0},
	}, counts)
}

func TestTopProducts(t *testing.T) {
	db := testutil.OpenDB(t)
	recent := now.AddDate(0, 0, -1)
	testutil.Order(t, db, model.StatusNew, recent, testutil.Item(1, "A", 100, 3), testutil.Item(2, "B", 500, 3))
	testutil.Order(t, db, model.StatusCancelled, recent, testutil.Item(3, "C", 100, 10))
	testutil.Order(t, db, model.StatusCompleted, recent, testutil.Item(0, "Gift wrap", 50, 4))
	testutil.Order(t, db, model.StatusCompleted, now.AddDate(0, 0, -40), testutil.Item(4, "Old", 100, 99))
	for i := int64(5); i < 9; i++ {
		testutil.Order(t, db, model.StatusNew, recent, testutil.Item(i, "Single", 1, 1))
	}

	top, err := TopProducts(db, now)
	require.NoError(t, err)
	require.Len(t, top, 5)
	assert.Equal(t, "3", top[0].Key)
	assert.Equal(t, "Gift wrap", top[1].Key, "title fallback when id is missing")
	assert.Equal(t, "2", top[2].Key, "same qty, higher revenue first")
	assert.Equal(t, int64(1500), top[2].Revenue)
	assert.Equal(t, "1", top[3].Key)
	assert.Equal(t, "5", top[4].Key)
}

func TestBuildDashboard(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.Product(t, db, "Lamp", 1999, 1)
	testutil.Product(t, db, "Chair", 5000, 50)
	draft := testutil.Product(t, db, "Desk", 9000, 3)
	require.NoError(t, db.Model(&draft).Update("published", false).Error)
	require.NoError(t, db.Create(&model.Message{Name: "n", WhatsApp: "1", Message: "hi"}).Error)
	testutil.Order(t, db, model.StatusNew, now, testutil.Item(1, "Lamp", 1999, 1))

	d, err := BuildDashboard(db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.ProductCount)
	assert.Equal(t, int64(2), d.PublishedCount)
	assert.Equal(t, int64(1), d.DraftCount)
	assert.Equal(t, int64(1), d.NewOrderCount)
	assert.Equal(t, int64(1), d.UnreadMessages)
	assert.Equal(t, int64(1), d.TotalOrders)
	require.Len(t, d.LowStock, 2)
	assert.Equal(t, "Lamp", d.LowStock[0].Title)
	assert.Equal(t, "Desk", d.LowStock[1].Title)
	require.Len(t, d.TopProducts, 1)
}
