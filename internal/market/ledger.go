package market

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agrimandi/internal/model"
	"agrimandi/internal/pkg/metrics"
)

// Decision 表示农户对出价的处理决定。
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Ledger 维护出价的生命周期状态机。
//
// 所有前置条件检查都落在存储层的条件写上（见 Store），
// Ledger 只负责把"没写成"翻译成精确的领域错误。
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// NewLedger 创建出价台账。
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// PlaceBid 由买家对某个挂单创建 pending 出价。
//
// 失败情况:
//
//	ErrInvalidAmount: 金额 <= 0
//	ErrNotFound: 挂单不存在
//	ErrListingUnavailable: 挂单不在 available 状态
func (l *Ledger) PlaceBid(ctx context.Context, listingID, buyerID uint, amount float64) (*model.Bid, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	listing, err := l.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != model.ListingStatusAvailable {
		return nil, ErrListingUnavailable
	}

	bid := &model.Bid{
		ListingID: listingID,
		FarmerID:  listing.FarmerID,
		BuyerID:   buyerID,
		BidAmount: amount,
		Status:    model.BidStatusPending,
	}
	if err := l.store.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	metrics.BidsPlacedTotal.Inc()
	if l.logger != nil {
		l.logger.Info("bid placed",
			slog.Uint64("bid_id", uint64(bid.ID)),
			slog.Uint64("listing_id", uint64(listingID)),
			slog.Uint64("buyer_id", uint64(buyerID)),
			slog.Float64("amount", amount))
	}
	return bid, nil
}

// WithdrawBid 由买家撤回自己仍处于 pending 的出价（物理删除）。
func (l *Ledger) WithdrawBid(ctx context.Context, bidID, requesterID uint) error {
	bid, err := l.store.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.BuyerID != requesterID {
		return ErrNotOwner
	}

	ok, err := l.store.DeleteBidIf(ctx, bidID, model.BidStatusPending)
	if err != nil {
		return err
	}
	if !ok {
		// 条件删除没命中：要么已被处理（状态不再是 pending），要么刚刚被并发删除。
		if _, err := l.store.GetBid(ctx, bidID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}

	metrics.BidsWithdrawnTotal.Inc()
	if l.logger != nil {
		l.logger.Info("bid withdrawn", slog.Uint64("bid_id", uint64(bidID)))
	}
	return nil
}

// Decide 由挂单所属农户接受或拒绝一条 pending 出价。
//
// 接受出价不会关闭挂单，也不会自动拒绝同挂单的其它 pending 出价——
// 挂单的关闭由农户显式操作。
func (l *Ledger) Decide(ctx context.Context, bidID, requesterID uint, decision Decision) error {
	var target model.BidStatus
	switch decision {
	case DecisionAccept:
		target = model.BidStatusAccepted
	case DecisionReject:
		target = model.BidStatusRejected
	default:
		return ErrInvalidTransition
	}

	bid, err := l.store.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.FarmerID != requesterID {
		return ErrNotOwner
	}

	ok, err := l.store.TransitionBid(ctx, bidID, model.BidStatusPending, target)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := l.store.GetBid(ctx, bidID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}

	metrics.BidDecisionsTotal.WithLabelValues(string(decision)).Inc()
	if l.logger != nil {
		l.logger.Info("bid decided",
			slog.Uint64("bid_id", uint64(bidID)),
			slog.String("decision", string(decision)))
	}
	return nil
}

// MarkCompleted 在网关确认付款后把 accepted 出价置为 completed，
// 并记录一条以实付金额为准的成交记录。
//
// 幂等性（网关通知至少一次投递）:
//   - 出价已 completed 且成交记录已存在 -> 静默返回 nil；
//   - 出价已 completed 但成交记录缺失（上次写入中断）-> 补写成交记录；
//   - 成交记录唯一索引冲突（并发重放）-> 视为已记录，返回 nil。
//
// 其它状态（pending / rejected）返回 ErrInvalidTransition。
func (l *Ledger) MarkCompleted(ctx context.Context, bidID uint, amountPaid float64, method string) error {
	if amountPaid <= 0 {
		return ErrInvalidAmount
	}

	now := time.Now()
	ok, err := l.store.CompleteBid(ctx, bidID, now)
	if err != nil {
		return err
	}

	bid, err := l.store.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if !ok {
		if bid.Status != model.BidStatusCompleted {
			return ErrInvalidTransition
		}
		has, err := l.store.HasTransaction(ctx, bidID)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		// completed 但成交记录缺失：继续补写。
	}

	txn := &model.Transaction{
		BidID:           bidID,
		FarmerID:        bid.FarmerID,
		BuyerID:         bid.BuyerID,
		Amount:          amountPaid,
		Status:          "completed",
		PaymentMethod:   method,
		TransactionDate: now,
	}
	if err := l.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return nil
		}
		return err
	}

	metrics.TransactionsRecordedTotal.Inc()
	if l.logger != nil {
		l.logger.Info("bid completed",
			slog.Uint64("bid_id", uint64(bidID)),
			slog.Float64("amount_paid", amountPaid),
			slog.String("method", method))
	}
	return nil
}
