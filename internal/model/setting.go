package model

// SettingFAQContext 是 FAQ 助手的背景资料键。
const SettingFAQContext = "faq_context"

// Setting 简单 key/value 配置。
type Setting struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

func (Setting) TableName() string { return "ai_settings" }
