package market

import (
	"context"
	"time"

	"agrimandi/internal/model"
)

// Store 定义出价生命周期所需的存储原语。
//
// 所有带前置条件的写操作（TransitionBid / CompleteBid / DeleteBidIf）
// 必须在存储层以单条条件语句实现，返回是否真的发生了写入——
// 多实例并发时靠它（而不是应用层加锁）保证状态机不被写穿。
type Store interface {
	// GetListing 按 ID 查询挂单，不存在返回 ErrNotFound。
	GetListing(ctx context.Context, id uint) (*model.CropListing, error)

	// GetBid 按 ID 查询出价，不存在返回 ErrNotFound。
	GetBid(ctx context.Context, id uint) (*model.Bid, error)

	// CreateBid 插入一条新的出价。
	CreateBid(ctx context.Context, bid *model.Bid) error

	// TransitionBid 条件更新出价状态（WHERE status = from），
	// 返回是否命中。
	TransitionBid(ctx context.Context, bidID uint, from, to model.BidStatus) (bool, error)

	// CompleteBid 将 accepted 出价置为 completed 并写入付款时间，
	// 返回是否命中。
	CompleteBid(ctx context.Context, bidID uint, paidAt time.Time) (bool, error)

	// DeleteBidIf 条件删除出价（WHERE status = status），返回是否命中。
	DeleteBidIf(ctx context.Context, bidID uint, status model.BidStatus) (bool, error)

	// HasTransaction 返回某出价是否已有成交记录。
	HasTransaction(ctx context.Context, bidID uint) (bool, error)

	// CreateTransaction 追加一条成交记录；
	// bid_id 冲突时返回 ErrDuplicateTransaction。
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
}

// BelowMSPListing 是提醒对账查询返回的一行：
// 在售挂单与其作物当季 MSP 的内联结果（没有 MSP 记录的作物不会出现）。
type BelowMSPListing struct {
	ListingID    uint
	FarmerID     uint
	FarmerEmail  string
	CropName     string
	Unit         string
	Quantity     float64
	PricePerUnit float64
	MSPPrice     float64
}

// AlertStore 定义提醒生成与已读所需的存储原语。
type AlertStore interface {
	// ListAvailableWithMSP 返回所有在售挂单与指定季节 MSP 的联结行。
	ListAvailableWithMSP(ctx context.Context, season string) ([]BelowMSPListing, error)

	// CreateAlertIfAbsent 原子地插入一条未读提醒：仅当同一
	// (user_id, listing_id, alert_type) 不存在未读记录时插入，
	// 返回是否真的插入。并发调用最多一条落库。
	CreateAlertIfAbsent(ctx context.Context, alert *model.UserAlert) (bool, error)

	// GetAlert 按 ID 查询提醒，不存在返回 ErrNotFound。
	GetAlert(ctx context.Context, id uint) (*model.UserAlert, error)

	// MarkAlertRead 条件更新（WHERE id = ? AND user_id = ?），返回是否命中。
	MarkAlertRead(ctx context.Context, alertID, userID uint) (bool, error)
}
