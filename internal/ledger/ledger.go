// Package ledger records orders: frozen line-item snapshots, public codes,
// status transitions and best-seller tallies.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront/internal/code"
	"storefront/internal/model"
	"storefront/internal/store"

	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid order status")
	ErrEmptyOrder    = errors.New("order has no items")
	ErrCodeExhausted = errors.New("could not allocate a unique order code")
)

// maxCodeAttempts 公开编号冲突时的重试上限。
const maxCodeAttempts = 5

// Contact 下单人的联系信息。
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	Country string
	Notes   string
}

// Ledger 订单账本。Codes 和 Now 可在测试中替换。
type Ledger struct {
	Codes code.Generator
	Now   func() time.Time
}

func New() *Ledger {
	return &Ledger{Codes: code.Default, Now: time.Now}
}

// Create 在一个事务里写入订单并扣减库存（下限为 0），任何一步失败整体回滚。
func (l *Ledger) Create(db *gorm.DB, c Contact, items []model.LineItem) (*model.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	raw, version, err := model.EncodeLineItems(items)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, it := range items {
		total += it.LineTotal
	}

	order := &model.Order{
		CreatedAt:    model.NewTimestamp(l.Now()),
		CustomerName: c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Address:      c.Address,
		City:         c.City,
		Country:      c.Country,
		Notes:        c.Notes,
		ItemsJSON:    raw,
		ItemsVersion: version,
		TotalCents:   total,
		Status:       model.StatusNew,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := l.insertWithCode(tx, order); err != nil {
			return err
		}
		for _, it := range items {
			res := tx.Model(&model.Product{}).
				Where("id = ?", it.ProductID).
				Update("stock", gorm.Expr("MAX(stock - ?, 0)", it.Quantity))
			if res.Error != nil {
				return fmt.Errorf("decrement stock for product %d: %w", it.ProductID, res.Error)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (l *Ledger) insertWithCode(tx *gorm.DB, order *model.Order) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		c, err := l.Codes.New()
		if err != nil {
			return err
		}
		taken, err := codeTaken(tx, c)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		order.ID = 0
		order.PublicID = &c
		err = tx.Create(order).Error
		if err == nil {
			return nil
		}
		if !store.IsUniqueViolation(err) {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	order.PublicID = nil
	return ErrCodeExhausted
}

func codeTaken(db *gorm.DB, c string) (bool, error) {
	var n int64
	if err := db.Model(&model.Order{}).Where("public_id = ?", c).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get 按内部 ID 查询。
func Get(db *gorm.DB, id int64) (*model.Order, error) {
	var o model.Order
	if err := db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// legacyRow 计算旧订单哈希码需要的原始字段，created_at 按落库文本读取。
type legacyRow struct {
	ID         int64
	CreatedAt  string
	TotalCents int64
}

const legacyColumns = "id, COALESCE(created_at, '') AS created_at, COALESCE(total_cents, 0) AS total_cents"

// legacyCode 按落库原文计算旧订单哈希码，与 Lookup 的匹配方式一致。
func legacyCode(db *gorm.DB, o *model.Order) string {
	var rows []legacyRow
	err := db.Model(&model.Order{}).Select(legacyColumns).Where("id = ?", o.ID).Limit(1).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return code.Legacy(o.ID, o.CreatedAt.String(), o.TotalCents)
	}
	return code.Legacy(rows[0].ID, rows[0].CreatedAt, rows[0].TotalCents)
}

// Lookup 按顺序解析用户输入的编号：公开编号、旧订单哈希码、内部数字 ID。
// 公开编号与其他订单的哈希码理论上可能相同，此时按查找顺序取公开编号的那一张。
func Lookup(db *gorm.DB, input string) (*model.Order, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNotFound
	}

	var o model.Order
	err := db.Where("public_id = ?", input).First(&o).Error
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var rows []legacyRow
	if err := db.Model(&model.Order{}).
		Select(legacyColumns).
		Order("id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		if code.Legacy(r.ID, r.CreatedAt, r.TotalCents) == input {
			return Get(db, r.ID)
		}
	}

	trimmed := strings.TrimLeft(input, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrNotFound
	}
	return Get(db, id)
}

// EnsurePublicCode 旧订单首次被查看时补发公开编号；写入失败则退回哈希码。
func (l *Ledger) EnsurePublicCode(db *gorm.DB, o *model.Order) string {
	if c := o.Code(); c != "" {
		return c
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		c, err := l.Codes.New()
		if err != nil {
			break
		}
		if taken, err := codeTaken(db, c); err != nil || taken {
			continue
		}
		res := db.Model(&model.Order{}).
			Where("id = ? AND (public_id IS NULL OR public_id = '')", o.ID).
			Update("public_id", c)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		o.PublicID = &c
		return c
	}
	return legacyCode(db, o)
}

// SetStatus 只接受五种规范状态，其他值在边界处拒绝。
func SetStatus(db *gorm.DB, id int64, status string) (model.OrderStatus, error) {
	st, err := model.ParseOrderStatus(status)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	res := db.Model(&model.Order{}).Where("id = ?", id).Update("status", st)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return st, nil
}

// List 后台订单列表，status 为空时返回全部，按创建时间倒序。
func List(db *gorm.DB, status string) ([]model.Order, error) {
	q := db.Order("created_at DESC").Order("id DESC")
	if status != "" {
		st, err := model.ParseOrderStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		q = q.Where("status = ?", st)
	}
	var out []model.Order
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Clear 清空全部订单并重置自增计数。
func Clear(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM orders")
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		// sqlite_sequence 只在有 AUTOINCREMENT 表写入过后存在，失败忽略。
		tx.Exec("DELETE FROM sqlite_sequence WHERE name = 'orders'")
		return nil
	})
	return n, err
}

// Seller 畅销统计的一行。
type Seller struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// TopSellers 统计已发货/已完成订单中各商品的销量；没有任何已售订单时退回统计全部订单，
// 保证新店也能展示“畅销”。按销量降序、商品 ID 升序，limit 至少为 1。
// since 为零值时不限时间窗。
func TopSellers(db *gorm.DB, limit int, since time.Time) ([]Seller, error) {
	counts, err := tally(db, since, true)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		if counts, err = tally(db, since, false); err != nil {
			return nil, err
		}
	}

	out := make([]Seller, 0, len(counts))
	for id, qty := range counts {
		out = append(out, Seller{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	limit = max(1, limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func tally(db *gorm.DB, since time.Time, soldOnly bool) (map[int64]int, error) {
	q := db.Model(&model.Order{}).Select("id, items, items_version")
	if soldOnly {
		q = q.Where("status IN ?", model.SoldStatuses)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", model.NewTimestamp(since).String())
	}
	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	counts := map[int64]int{}
	for _, o := range orders {
		items, err := o.LineItems()
		if err != nil {
			// 损坏的快照跳过，不影响其他订单。
			continue
		}
		for _, it := range items {
			if it.ProductID == 0 {
				continue
			}
			counts[it.ProductID] += it.Quantity
		}
	}
	return counts, nil
}

// IDs 提取商品 ID 列表。
func IDs(sellers []Seller) []int64 {
	out := make([]int64, len(sellers))
	for i, s := range sellers {
		out[i] = s.ProductID
	}
	return out
}
