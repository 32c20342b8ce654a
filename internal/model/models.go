package model

import (
	"time"
)

// ListingStatus 表示作物挂单的状态。
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available" // 在售
	ListingStatusSold      ListingStatus = "sold"      // 已售出
	ListingStatusWithdrawn ListingStatus = "withdrawn" // 已下架
)

// BidStatus 表示买家出价的生命周期状态。
//
// 状态机: pending -> {accepted, rejected}; accepted -> completed。
// rejected 与 completed 是终态；pending 状态的出价可以被买家撤回（删除）。
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"   // 等待农户处理
	BidStatusAccepted  BidStatus = "accepted"  // 农户已接受，等待付款
	BidStatusRejected  BidStatus = "rejected"  // 农户已拒绝
	BidStatusCompleted BidStatus = "completed" // 付款完成
)

// AlertTypeBelowMSP 低于政府最低收购价的提醒类型。
const AlertTypeBelowMSP = "below_msp"

// Crop 表示作物品类目录（如 Wheat / Rice / Cotton）。
type Crop struct {
	ID   uint   `gorm:"primaryKey"`                            // 作物 ID
	Name string `gorm:"type:varchar(64);uniqueIndex;not null"` // 作物名称
	Unit string `gorm:"type:varchar(16);not null"`             // 计量单位（如 quintal / kg）
}

// MSPPrice 表示政府公布的最低收购价（Minimum Support Price）。
//
// 按 (作物, 季节) 唯一；对本服务只读，仅管理员可以修正价格。
type MSPPrice struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	CropID uint    `gorm:"not null;uniqueIndex:idx_msp_crop_season"` // 作物 ID
	Crop   Crop    `gorm:"foreignKey:CropID"`
	Season string  `gorm:"type:varchar(16);not null;uniqueIndex:idx_msp_crop_season"` // 季节（如 "2024-25"）
	Price  float64 `gorm:"not null"`                                                  // 每单位最低收购价（₹）
}

// CropListing 表示农户发布的作物挂单。
type CropListing struct {
	ID        uint      `gorm:"primaryKey"` // 挂单 ID
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	FarmerID     uint          `gorm:"not null;index"` // 所属农户 ID
	Farmer       User          `gorm:"foreignKey:FarmerID"`
	CropID       uint          `gorm:"not null;index"` // 作物 ID
	Crop         Crop          `gorm:"foreignKey:CropID"`
	Quantity     float64       `gorm:"not null"` // 数量（> 0）
	PricePerUnit float64       `gorm:"not null"` // 单价（> 0）
	Description  string        `gorm:"type:text"`
	Status       ListingStatus `gorm:"type:varchar(16);default:available;index"` // available / sold / withdrawn
}

// TotalValue 返回挂单总价值（数量 × 单价），派生值，不落库。
func (l *CropListing) TotalValue() float64 {
	return l.Quantity * l.PricePerUnit
}

// Bid 表示买家针对某个挂单的出价。
//
// FarmerID 从挂单冗余过来，用于权限校验与成交记录，状态迁移时不再联表。
type Bid struct {
	ID        uint      `gorm:"primaryKey"` // 出价 ID
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	ListingID uint        `gorm:"not null;index"` // 关联挂单 ID
	Listing   CropListing `gorm:"foreignKey:ListingID"`
	FarmerID  uint        `gorm:"not null;index"` // 挂单所属农户 ID（冗余）
	BuyerID   uint        `gorm:"not null;index"` // 出价买家 ID
	BidAmount float64     `gorm:"not null"`       // 出价总金额（> 0）
	Status    BidStatus   `gorm:"type:varchar(16);default:pending;index"`
	PaidAt    *time.Time  // 付款完成时间
}

// UserAlert 表示发给用户的站内提醒。
//
// 对 below_msp 类型，同一 (用户, 挂单) 最多存在一条未读提醒；
// 生成侧通过条件插入保证幂等，只有用户显式标记已读才会清除。
type UserAlert struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 创建时间

	UserID    uint   `gorm:"not null;index:idx_alert_target"` // 接收用户 ID
	ListingID uint   `gorm:"not null;index:idx_alert_target"` // 关联挂单 ID
	AlertType string `gorm:"type:varchar(32);not null"`       // 提醒类型（目前仅 below_msp）
	Message   string `gorm:"type:text"`                       // 展示文案
	IsRead    bool   `gorm:"default:false;index"`             // 是否已读
}

// Transaction 表示一笔完成的支付记录。
//
// bid_id 唯一索引保证同一出价最多记录一次成交（网关通知按至少一次投递）。
// Amount 取网关确认的实付金额，而不是客户端提交的出价金额。
type Transaction struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 创建时间

	BidID           uint      `gorm:"not null;uniqueIndex"` // 关联出价 ID
	FarmerID        uint      `gorm:"not null;index"`       // 卖方农户 ID
	BuyerID         uint      `gorm:"not null;index"`       // 买方 ID
	Amount          float64   `gorm:"not null"`             // 网关确认的实付金额（₹）
	Status          string    `gorm:"type:varchar(16)"`     // 成交状态（completed）
	PaymentMethod   string    `gorm:"type:varchar(32)"`     // 支付方式（stripe）
	TransactionDate time.Time // 成交时间
}
