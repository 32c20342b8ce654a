package market

import (
	"context"
	"errors"
	"time"

	"agrimandi/internal/model"

	"database/sql/driver"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// GormStore 基于 gorm/MySQL 实现 Store 与 AlertStore。
//
// 条件写全部落为单条 UPDATE/DELETE/INSERT 语句，靠行级原子性
// 与唯一索引保证多实例并发下的正确性。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储实现。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// mysqlDuplicateEntry MySQL 唯一键冲突错误码。
const mysqlDuplicateEntry = 1062

// wrapErr 把底层存储错误翻译为领域错误。
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn):
		return ErrStoreUnavailable
	default:
		return err
	}
}

func (s *GormStore) GetListing(ctx context.Context, id uint) (*model.CropListing, error) {
	var listing model.CropListing
	if err := s.db.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &listing, nil
}

func (s *GormStore) GetBid(ctx context.Context, id uint) (*model.Bid, error) {
	var bid model.Bid
	if err := s.db.WithContext(ctx).First(&bid, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &bid, nil
}

func (s *GormStore) CreateBid(ctx context.Context, bid *model.Bid) error {
	return wrapErr(s.db.WithContext(ctx).Create(bid).Error)
}

func (s *GormStore) TransitionBid(ctx context.Context, bidID uint, from, to model.BidStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Bid{}).
		Where("id = ? AND status = ?", bidID, from).
		Update("status", to)
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CompleteBid(ctx context.Context, bidID uint, paidAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Bid{}).
		Where("id = ? AND status = ?", bidID, model.BidStatusAccepted).
		Updates(map[string]interface{}{
			"status":  model.BidStatusCompleted,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteBidIf(ctx context.Context, bidID uint, status model.BidStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", bidID, status).
		Delete(&model.Bid{})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) HasTransaction(ctx context.Context, bidID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("bid_id = ?", bidID).
		Count(&count).Error; err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

func (s *GormStore) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	err := s.db.WithContext(ctx).Create(txn).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateTransaction
		}
		return wrapErr(err)
	}
	return nil
}

func (s *GormStore) ListAvailableWithMSP(ctx context.Context, season string) ([]BelowMSPListing, error) {
	rows := []BelowMSPListing{}
	err := s.db.WithContext(ctx).Table("crop_listings").
		Select("crop_listings.id AS listing_id, crop_listings.farmer_id, users.email AS farmer_email, "+
			"crops.name AS crop_name, crops.unit, crop_listings.quantity, crop_listings.price_per_unit, "+
			"msp_prices.price AS msp_price").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Joins("JOIN msp_prices ON msp_prices.crop_id = crop_listings.crop_id AND msp_prices.season = ?", season).
		Joins("JOIN users ON users.id = crop_listings.farmer_id").
		Where("crop_listings.status = ?", model.ListingStatusAvailable).
		Order("crop_listings.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return rows, nil
}

func (s *GormStore) CreateAlertIfAbsent(ctx context.Context, alert *model.UserAlert) (bool, error) {
	// 单条 INSERT ... SELECT ... WHERE NOT EXISTS，靠语句原子性
	// 保证同一 (user, listing, type) 最多一条未读提醒。
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO user_alerts (created_at, user_id, listing_id, alert_type, message, is_read)
		 SELECT ?, ?, ?, ?, ?, 0 FROM DUAL
		 WHERE NOT EXISTS (
		   SELECT 1 FROM user_alerts
		   WHERE user_id = ? AND listing_id = ? AND alert_type = ? AND is_read = 0
		 )`,
		time.Now(), alert.UserID, alert.ListingID, alert.AlertType, alert.Message,
		alert.UserID, alert.ListingID, alert.AlertType,
	)
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetAlert(ctx context.Context, id uint) (*model.UserAlert, error) {
	var alert model.UserAlert
	if err := s.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &alert, nil
}

func (s *GormStore) MarkAlertRead(ctx context.Context, alertID, userID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.UserAlert{}).
		Where("id = ? AND user_id = ?", alertID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}
