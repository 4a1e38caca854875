package model

// Subscriber 订阅邮件列表的地址，email 全局唯一。
type Subscriber struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt Timestamp `json:"created_at"`
}

func (Subscriber) TableName() string { return "newsletter_subscribers" }
