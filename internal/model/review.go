package model

// Review 商品评价，rating 取值 1..5，随商品级联删除。
type Review struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  int64     `gorm:"not null;index" json:"product_id"`
	Name       string    `json:"name"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`

	ProductTitle string `gorm:"->;-:migration" json:"product_title,omitempty"`
}

func (Review) TableName() string { return "reviews" }

// Rating 评分聚合，不落库。
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
