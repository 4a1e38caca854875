// Package auth checks back-office credentials.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"storefront/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials 用户名或密码错误，不区分哪一个。
var ErrInvalidCredentials = errors.New("invalid username or password")

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// EnsureDefaultAdmin 没有管理员时创建一个；已有时用配置覆盖第一个管理员的账号密码。
func EnsureDefaultAdmin(db *gorm.DB, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("admin username and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	var first model.Admin
	err = db.Order("id ASC").Take(&first).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&model.Admin{Username: username, PasswordHash: hash}).Error
	case err != nil:
		return err
	}
	return db.Model(&model.Admin{}).Where("id = ?", first.ID).Updates(map[string]any{
		"username":      username,
		"password_hash": hash,
	}).Error
}

// Authenticate 校验账号密码，成功返回管理员。
func Authenticate(db *gorm.DB, username, password string) (*model.Admin, error) {
	var a model.Admin
	err := db.Where("username = ?", strings.TrimSpace(username)).Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 仍做一次比较，避免通过耗时区分用户名是否存在。
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &a, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("storefront"), bcrypt.MinCost)
