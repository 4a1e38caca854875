package model

import (
	"encoding/json"
	"fmt"
)

// OrderStatus 订单状态，闭合枚举。
type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses 固定顺序，报表按此顺序输出。
var OrderStatuses = []OrderStatus{
	StatusNew,
	StatusProcessing,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

// SoldStatuses 视为“已售出”的状态，营收和畅销统计只看这两种。
var SoldStatuses = []OrderStatus{StatusShipped, StatusCompleted}

// ParseOrderStatus 只接受五种规范状态。
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// LineItemsVersion 是当前写入的行项目快照版本。
// 0 表示迁移前的历史行，结构与版本 1 相同。
const LineItemsVersion = 1

// LineItem 下单时冻结的商品快照，之后商品改价不影响历史订单。
type LineItem struct {
	ProductID      int64    `json:"id"`
	Title          string   `json:"title"`
	UnitCents      int64    `json:"price_cents"`
	Quantity       int      `json:"quantity"`
	LineTotal      int64    `json:"line_total"`
	Images         []string `json:"images"`
	OrigPriceCents int64    `json:"orig_price_cents,omitempty"`
	DiscountCents  *int64   `json:"discount_cents,omitempty"`
}

// Order 订单。除 status 外创建后不可变。
type Order struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt Timestamp `json:"created_at"`

	PublicID     *string     `gorm:"uniqueIndex" json:"public_id"`
	CustomerName string      `json:"customer_name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	City         string      `json:"city"`
	Country      string      `json:"country"`
	Notes        string      `json:"notes"`
	ItemsJSON    string      `gorm:"column:items" json:"-"`
	ItemsVersion int         `json:"items_version"`
	TotalCents   int64       `json:"total_cents"`
	Status       OrderStatus `json:"status"`
}

func (Order) TableName() string { return "orders" }

// Code 返回已落库的公开编号，没有时为空串。
func (o Order) Code() string {
	if o.PublicID == nil {
		return ""
	}
	return *o.PublicID
}

// LineItems 按 items_version 解码快照。
func (o Order) LineItems() ([]LineItem, error) {
	return DecodeLineItems(o.ItemsVersion, o.ItemsJSON)
}

// EncodeLineItems 以当前版本序列化快照。
func EncodeLineItems(items []LineItem) (string, int, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", 0, err
	}
	return string(b), LineItemsVersion, nil
}

// DecodeLineItems 解码任意已知版本的快照，空值视为空列表。
func DecodeLineItems(version int, raw string) ([]LineItem, error) {
	switch version {
	case 0, 1:
		if raw == "" {
			return []LineItem{}, nil
		}
		var items []LineItem
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("decode line items v%d: %w", version, err)
		}
		if items == nil {
			items = []LineItem{}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported line items version %d", version)
	}
}
