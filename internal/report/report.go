// Package report computes the back-office rollups: revenue windows, status
// tallies, top products and the dashboard summary.
package report

import (
	"sort"
	"strconv"
	"time"

	"storefront/internal/model"

	"gorm.io/gorm"
)

// 时间窗（天）。
const (
	DayWindow   = 1
	WeekWindow  = 7
	MonthWindow = 30
)

const (
	topProductsLimit = 5
	lowStockLimit    = 8
	lowStockMax      = 5
)

// cutoff 返回 now 往前 days 天的时间文本，与 created_at 的存储格式一致，可直接做字符串比较。
func cutoff(now time.Time, days int) string {
	return model.NewTimestamp(now.AddDate(0, 0, -days)).String()
}

// Revenue 已发货/已完成订单在最近 days 天内的总额；days <= 0 时统计全部。
func Revenue(db *gorm.DB, now time.Time, days int) (int64, error) {
	q := db.Model(&model.Order{}).
		Select("COALESCE(SUM(total_cents), 0)").
		Where("status IN ?", model.SoldStatuses)
	if days > 0 {
		q = q.Where("created_at >= ?", cutoff(now, days))
	}
	var sum int64
	if err := q.Scan(&sum).Error; err != nil {
		return 0, err
	}
	return sum, nil
}

// Revenues 各时间窗营收，每个窗口独立查询。
type Revenues struct {
	Day   int64 `json:"day"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
	Total int64 `json:"total"`
}

func RevenueWindows(db *gorm.DB, now time.Time) (Revenues, error) {
	var r Revenues
	for _, w := range []struct {
		days int
		dst  *int64
	}{
		{DayWindow, &r.Day},
		{WeekWindow, &r.Week},
		{MonthWindow, &r.Month},
		{0, &r.Total},
	} {
		v, err := Revenue(db, now, w.days)
		if err != nil {
			return Revenues{}, err
		}
		*w.dst = v
	}
	return r, nil
}

// StatusCount 单个状态的订单数。
type StatusCount struct {
	Status model.OrderStatus `json:"status"`
	Count  int64             `json:"count"`
}

// StatusCounts 按固定顺序统计五种状态，缺失补 0，非规范状态不计入。
func StatusCounts(db *gorm.DB) ([]StatusCount, int64, error) {
	var rows []struct {
		Status string
		C      int64
	}
	if err := db.Model(&model.Order{}).
		Select("status, COUNT(*) AS c").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	byStatus := make(map[string]int64, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r.C
	}
	out := make([]StatusCount, 0, len(model.OrderStatuses))
	var total int64
	for _, st := range model.OrderStatuses {
		c := byStatus[string(st)]
		out = append(out, StatusCount{Status: st, Count: c})
		total += c
	}
	return out, total, nil
}

// TopProduct 近 30 天按快照回放得到的商品销量与营收。
type TopProduct struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Revenue  int64  `json:"revenue"`
}

// TopProducts 回放最近 30 天所有订单的行项目快照，按商品 ID 聚合（缺 ID 时按标题），
// 销量降序、营收降序，取前 5。
func TopProducts(db *gorm.DB, now time.Time) ([]TopProduct, error) {
	var orders []model.Order
	if err := db.Model(&model.Order{}).
		Select("id, items, items_version").
		Where("created_at >= ?", cutoff(now, MonthWindow)).
		Order("id").
		Find(&orders).Error; err != nil {
		return nil, err
	}

	byKey := map[string]*TopProduct{}
	for _, o := range orders {
		items, err := o.LineItems()
		if err != nil {
			continue
		}
		for _, it := range items {
			key := it.Title
			if it.ProductID != 0 {
				key = strconv.FormatInt(it.ProductID, 10)
			}
			tp, ok := byKey[key]
			if !ok {
				title := it.Title
				if title == "" {
					title = "#" + key
				}
				tp = &TopProduct{Key: key, Title: title}
				byKey[key] = tp
			}
			tp.Quantity += it.Quantity
			tp.Revenue += it.LineTotal
		}
	}

	out := make([]TopProduct, 0, len(byKey))
	for _, tp := range byKey {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > topProductsLimit {
		out = out[:topProductsLimit]
	}
	return out, nil
}

// LowStock 库存告警行。
type LowStock struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Stock int64  `json:"stock"`
}

// Dashboard 后台首页汇总。
type Dashboard struct {
	ProductCount   int64         `json:"product_count"`
	PublishedCount int64         `json:"published_count"`
	DraftCount     int64         `json:"draft_count"`
	NewOrderCount  int64         `json:"new_order_count"`
	UnreadMessages int64         `json:"unread_messages"`
	StatusCounts   []StatusCount `json:"status_counts"`
	TotalOrders    int64         `json:"total_orders"`
	Revenue        Revenues      `json:"revenue"`
	LowStock       []LowStock    `json:"low_stock"`
	TopProducts    []TopProduct  `json:"top_products"`
}

func BuildDashboard(db *gorm.DB, now time.Time) (*Dashboard, error) {
	d := &Dashboard{}
	counts := []struct {
		model any
		where string
		args  []any
		dst   *int64
	}{
		{&model.Product{}, "", nil, &d.ProductCount},
		{&model.Product{}, "published = ?", []any{true}, &d.PublishedCount},
		{&model.Product{}, "published = ?", []any{false}, &d.DraftCount},
		{&model.Order{}, "status = ?", []any{model.StatusNew}, &d.NewOrderCount},
		{&model.Message{}, "is_read = ?", []any{false}, &d.UnreadMessages},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var err error
	if d.StatusCounts, d.TotalOrders, err = StatusCounts(db); err != nil {
		return nil, err
	}
	if d.Revenue, err = RevenueWindows(db, now); err != nil {
		return nil, err
	}
	d.LowStock = []LowStock{}
	if err := db.Model(&model.Product{}).
		Select("id, title, stock").
		Where("stock <= ?", lowStockMax).
		Order("stock ASC").Order("title ASC").
		Limit(lowStockLimit).
		Scan(&d.LowStock).Error; err != nil {
		return nil, err
	}
	if d.TopProducts, err = TopProducts(db, now); err != nil {
		return nil, err
	}
	return d, nil
}
