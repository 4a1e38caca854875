package faq

import (
	"errors"
	"strings"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadContext 读取后台维护的店铺资料，未设置时为空串。
func LoadContext(db *gorm.DB) (string, error) {
	var s model.Setting
	err := db.Where("key = ?", model.SettingFAQContext).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// SaveContext 覆盖店铺资料。
func SaveContext(db *gorm.DB, text string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.Setting{Key: model.SettingFAQContext, Value: strings.TrimSpace(text)}).Error
}
