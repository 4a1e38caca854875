// Package cart holds the session cart and turns it into priced line items.
package cart

import (
	"fmt"
	"strconv"

	"storefront/internal/model"

	"gorm.io/gorm"
)

// Entry 购物车中的一行：商品 ID（字符串，与会话中一致）和数量。
type Entry struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart 按加入顺序保存的购物车。
type Cart struct {
	Entries []Entry `json:"entries"`
}

// Add 累加数量，数量至少为 1。
func (c *Cart) Add(productID string, qty int) {
	if qty < 1 {
		qty = 1
	}
	for i := range c.Entries {
		if c.Entries[i].ProductID == productID {
			c.Entries[i].Quantity += qty
			return
		}
	}
	c.Entries = append(c.Entries, Entry{ProductID: productID, Quantity: qty})
}

// Replace 用表单提交的数量覆盖购物车，数量 <= 0 的行被移除。
func (c *Cart) Replace(entries []Entry) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Quantity > 0 {
			out = append(out, e)
		}
	}
	c.Entries = out
}

// Remove 删除一行，不存在时无操作。
func (c *Cart) Remove(productID string) {
	for i := range c.Entries {
		if c.Entries[i].ProductID == productID {
			c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
			return
		}
	}
}

// Count 商品总件数（角标显示用）。
func (c Cart) Count() int {
	n := 0
	for _, e := range c.Entries {
		if e.Quantity > 0 {
			n += e.Quantity
		}
	}
	return n
}

func (c Cart) Empty() bool { return len(c.Entries) == 0 }

// BuildItems 一次批量查询所有商品，生成带价格的行项目和总价。
// 找不到的商品静默丢弃，数量下限为 1，顺序与购物车一致。
func BuildItems(db *gorm.DB, c Cart) ([]model.LineItem, int64, error) {
	items := []model.LineItem{}
	if c.Empty() {
		return items, 0, nil
	}
	ids := make([]int64, 0, len(c.Entries))
	for _, e := range c.Entries {
		id, err := strconv.ParseInt(e.ProductID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return items, 0, nil
	}

	var products []model.Product
	if err := db.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("load cart products: %w", err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var total int64
	for _, e := range c.Entries {
		id, err := strconv.ParseInt(e.ProductID, 10, 64)
		if err != nil {
			continue
		}
		p, ok := byID[id]
		if !ok {
			continue
		}
		qty := max(1, e.Quantity)
		items = append(items, LineItemFor(p, qty))
		total += items[len(items)-1].LineTotal
	}
	return items, total, nil
}

// LineItemFor 冻结单个商品的价格快照。
func LineItemFor(p model.Product, qty int) model.LineItem {
	unit := EffectivePrice(p)
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return model.LineItem{
		ProductID:      p.ID,
		Title:          p.Title,
		UnitCents:      unit,
		Quantity:       qty,
		LineTotal:      unit * int64(qty),
		Images:         images,
		OrigPriceCents: p.PriceCents,
		DiscountCents:  p.DiscountCents,
	}
}
