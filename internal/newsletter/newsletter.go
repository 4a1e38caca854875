// Package newsletter keeps the mailing list and announces new products to it.
package newsletter

import (
	"errors"
	"strings"
	"time"

	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrDuplicate    = errors.New("email already subscribed")
	ErrNotFound     = errors.New("subscriber not found")
)

// validate 与 gin 绑定用的是同一套校验规则。
var validate = validator.New()

// Normalize 去空白并转小写。
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail 校验规范化后的邮箱。
func ValidEmail(email string) bool {
	return validate.Var(Normalize(email), "required,email") == nil
}

// Subscribe 订阅，已存在时忽略。返回是否新增了一行。
func Subscribe(db *gorm.DB, email string, now time.Time) (bool, error) {
	email = Normalize(email)
	if !ValidEmail(email) {
		return false, ErrInvalidEmail
	}
	s := model.Subscriber{Email: email, CreatedAt: model.NewTimestamp(now)}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List 后台订阅列表，新的在前。
func List(db *gorm.DB) ([]model.Subscriber, error) {
	var out []model.Subscriber
	if err := db.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Update 修改订阅邮箱。
func Update(db *gorm.DB, id int64, email string) error {
	email = Normalize(email)
	if !ValidEmail(email) {
		return ErrInvalidEmail
	}
	res := db.Model(&model.Subscriber{}).Where("id = ?", id).Update("email", email)
	if res.Error != nil {
		if store.IsUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func Delete(db *gorm.DB, id int64) error {
	res := db.Delete(&model.Subscriber{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Recipients 按订阅先后返回全部邮箱。
func Recipients(db *gorm.DB) ([]string, error) {
	var out []string
	err := db.Model(&model.Subscriber{}).Order("created_at ASC").Order("id ASC").Pluck("email", &out).Error
	return out, err
}
