package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agrimandi/internal/model"
	"agrimandi/internal/pkg/currency"
	"agrimandi/internal/pkg/metrics"
	"agrimandi/internal/pkg/notify"
)

// Generator 负责低于 MSP 的提醒对账。
//
// 每一轮对账扫描所有在售挂单与其作物当季 MSP 的联结（没有 MSP
// 记录的作物在联结时即被跳过），对 price_per_unit < msp 的挂单
// 原子地补一条未读提醒。重复执行、并发执行都不会产生重复提醒。
type Generator struct {
	store    AlertStore
	notifier notify.Notifier
	season   string
	logger   *slog.Logger
}

// NewGenerator 创建提醒生成器。
//
// 参数:
//
//	store: 提醒存储
//	notifier: 邮件通知器（可为 nil，表示只生成站内提醒）
//	season: MSP 价格季节（如 "2024-25"）
//	logger: 日志记录器
func NewGenerator(store AlertStore, notifier notify.Notifier, season string, logger *slog.Logger) *Generator {
	return &Generator{
		store:    store,
		notifier: notifier,
		season:   season,
		logger:   logger,
	}
}

// CheckBelowMSP 执行一轮对账，返回本轮新生成的提醒数。
//
// 邮件发送失败只记日志，不影响本轮对账；存储错误向上传播。
func (g *Generator) CheckBelowMSP(ctx context.Context) (int, error) {
	start := time.Now()
	rows, err := g.store.ListAvailableWithMSP(ctx, g.season)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		if row.PricePerUnit >= row.MSPPrice {
			continue
		}

		alert := &model.UserAlert{
			UserID:    row.FarmerID,
			ListingID: row.ListingID,
			AlertType: model.AlertTypeBelowMSP,
			Message: fmt.Sprintf("Your %s listing is priced below MSP. Current MSP: ₹%s",
				row.CropName, currency.FormatINR(row.MSPPrice)),
		}
		inserted, err := g.store.CreateAlertIfAbsent(ctx, alert)
		if err != nil {
			return created, err
		}
		if !inserted {
			continue
		}

		created++
		metrics.AlertsGeneratedTotal.Inc()
		if g.logger != nil {
			g.logger.Info("below-msp alert created",
				slog.Uint64("listing_id", uint64(row.ListingID)),
				slog.Uint64("farmer_id", uint64(row.FarmerID)),
				slog.Float64("price_per_unit", row.PricePerUnit),
				slog.Float64("msp_price", row.MSPPrice))
		}

		if g.notifier != nil && row.FarmerEmail != "" {
			if err := g.notifier.SendBelowMSPAlert(ctx, row.FarmerEmail, row.CropName, row.PricePerUnit, row.MSPPrice); err != nil {
				if g.logger != nil {
					g.logger.Warn("send below-msp email failed",
						slog.String("email", row.FarmerEmail),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	metrics.AlertCheckDuration.Observe(time.Since(start).Seconds())
	return created, nil
}

// Dismiss 由提醒所属用户将提醒标记为已读。
//
// 重复已读是无害的 no-op；其他用户操作返回 ErrNotOwner。
func (g *Generator) Dismiss(ctx context.Context, alertID, requesterID uint) error {
	ok, err := g.store.MarkAlertRead(ctx, alertID, requesterID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	alert, err := g.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.UserID != requesterID {
		return ErrNotOwner
	}
	return nil
}
