package api

import (
	"context"
	"errors"
	"log/slog"

	"agrimandi/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// seedCrop 启动时写入的作物与当季 MSP 参考价。
type seedCrop struct {
	Name string
	Unit string
	MSP  float64
}

var seedCrops = []seedCrop{
	{Name: "Wheat", Unit: "quintal", MSP: 2125},
	{Name: "Rice", Unit: "quintal", MSP: 2100},
	{Name: "Cotton", Unit: "quintal", MSP: 5515},
}

// Seed 初始化基础数据：作物目录、当季 MSP、管理员账号。
//
// 幂等：已存在的记录不会重复写入，也不会覆盖管理员手工修正过的 MSP。
func (s *Server) Seed(ctx context.Context) error {
	for _, sc := range seedCrops {
		var crop model.Crop
		err := s.db.WithContext(ctx).Where("name = ?", sc.Name).First(&crop).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			crop = model.Crop{Name: sc.Name, Unit: sc.Unit}
			if err := s.db.WithContext(ctx).Create(&crop).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var msp model.MSPPrice
		err = s.db.WithContext(ctx).
			Where("crop_id = ? AND season = ?", crop.ID, s.cfg.App.MSPSeason).
			First(&msp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			msp = model.MSPPrice{CropID: crop.ID, Season: s.cfg.App.MSPSeason, Price: sc.MSP}
			if err := s.db.WithContext(ctx).Create(&msp).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	if s.cfg.Security.AdminEmail == "" || s.cfg.Security.AdminPassword == "" {
		s.logger.Info("admin account not configured, skip admin seed")
		return nil
	}

	var admin model.User
	err := s.db.WithContext(ctx).Where("email = ?", s.cfg.Security.AdminEmail).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(s.cfg.Security.AdminPassword), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		admin = model.User{
			Email:      s.cfg.Security.AdminEmail,
			Password:   string(hash),
			FullName:   "Administrator",
			Role:       model.RoleAdmin,
			IsVerified: true,
		}
		if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
			return err
		}
		s.logger.Info("admin account created", slog.String("email", admin.Email))
		return nil
	}
	if err != nil {
		return err
	}

	// 已存在的账号确保是可用的管理员
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", admin.ID).
		Updates(map[string]interface{}{
			"role":        model.RoleAdmin,
			"is_verified": true,
		}).Error
}
