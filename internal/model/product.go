package model

// Product 店铺商品。价格单位统一为分（minor units）。
type Product struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`

	Title           string   `gorm:"not null" json:"title"`
	Slug            string   `gorm:"uniqueIndex" json:"slug"`
	DescriptionHTML string   `json:"description_html"`
	PriceCents      int64    `gorm:"not null;default:0" json:"price_cents"`
	DiscountCents   *int64   `json:"discount_cents"` // nil 表示无折扣
	Images          []string `gorm:"serializer:json" json:"images"`
	Category        string   `json:"category"`
	Tags            string   `json:"tags"`
	Stock           int64    `json:"stock"`
	SKU             string   `gorm:"column:sku" json:"sku"`
	Published       bool     `json:"published"`
	// TicketID 对外展示的 8 位编号，旧库迁移时补齐。
	TicketID *string `gorm:"uniqueIndex" json:"ticket_id"`
}

func (Product) TableName() string { return "products" }

// FirstImage 返回首图路径，没有图片时返回空串。
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
