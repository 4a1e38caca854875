// Package inbox stores contact-form messages for the back office.
package inbox

import (
	"errors"
	"strings"
	"time"

	"storefront/internal/model"

	"gorm.io/gorm"
)

var (
	ErrMissingFields = errors.New("name, whatsapp and message are required")
	ErrNotFound      = errors.New("message not found")
)

// Input 联系表单。
type Input struct {
	Name     string
	Email    string
	WhatsApp string
	Subject  string
	Message  string
}

// Submit 保存一条留言，姓名、WhatsApp 和内容必填。
func Submit(db *gorm.DB, in Input, now time.Time) (*model.Message, error) {
	m := &model.Message{
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		WhatsApp:  strings.TrimSpace(in.WhatsApp),
		Subject:   strings.TrimSpace(in.Subject),
		Message:   strings.TrimSpace(in.Message),
		CreatedAt: model.NewTimestamp(now),
	}
	if m.Name == "" || m.WhatsApp == "" || m.Message == "" {
		return nil, ErrMissingFields
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// List 新的在前。
func List(db *gorm.DB) ([]model.Message, error) {
	var out []model.Message
	if err := db.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleRead 切换已读状态。
func ToggleRead(db *gorm.DB, id int64) error {
	res := db.Model(&model.Message{}).Where("id = ?", id).
		Update("is_read", gorm.Expr("1 - COALESCE(is_read, 0)"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func Delete(db *gorm.DB, id int64) error {
	res := db.Delete(&model.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
