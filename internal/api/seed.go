package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Kai-Ger/CardGallery/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAdmin 确保配置里的管理员账号存在。
//
// 没配管理员密码时跳过。已存在的账号只补齐管理员标志和激活状态，
// 不覆盖密码。
func (s *Server) SeedAdmin(ctx context.Context) error {
	sec := s.cfg.Security
	if sec.AdminPassword == "" {
		s.logger.Info("admin password not configured, skip admin seeding")
		return nil
	}

	username := strings.TrimSpace(strings.ToLower(sec.AdminUsername))
	email := strings.TrimSpace(strings.ToLower(sec.AdminEmail))
	if username == "" {
		return fmt.Errorf("admin username is empty")
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err == nil {
		if user.IsAdmin && user.Active {
			return nil
		}
		updates := map[string]interface{}{
			"is_admin": true,
			"active":   true,
		}
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("promote admin user: %w", err)
		}
		s.logger.Info("existing user promoted to admin", slog.String("username", username))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("query admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(sec.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := model.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		IsAdmin:  true,
		Active:   true,
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	s.logger.Info("admin user created", slog.String("username", username))
	return nil
}
