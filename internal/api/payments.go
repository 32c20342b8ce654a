package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"agrimandi/internal/market"
	"agrimandi/internal/model"
	"agrimandi/internal/pkg/metrics"
	"agrimandi/internal/pkg/paygate"

	"github.com/gin-gonic/gin"
)

// createSessionRequest 创建支付会话的请求参数。
type createSessionRequest struct {
	BidID uint `json:"bid_id" binding:"required"`
}

// handleCreateCheckoutSession 买家为已接受的出价创建支付会话。
//
// POST /checkout/session
func (s *Server) handleCreateCheckoutSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)

	// 每个买家独立的令牌桶，防止刷支付会话
	if err := s.limiter.Acquire(c.Request.Context(), strconv.FormatUint(uint64(userID), 10)); err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	bid, err := s.checkout.GetBidDetail(c.Request.Context(), req.BidID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if bid.BuyerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": market.ErrNotOwner.Error()})
		return
	}
	if bid.Status != model.BidStatusAccepted {
		c.JSON(http.StatusConflict, gin.H{"error": market.ErrInvalidTransition.Error()})
		return
	}
	if bid.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": market.ErrInvalidAmount.Error()})
		return
	}

	sess, err := s.payments.CreateSession(bid.ID, userID, bid.Amount, "Crop Purchase: "+bid.CropName)
	if err != nil {
		s.logger.Error("create checkout session failed",
			slog.Uint64("bid_id", uint64(bid.ID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}

	metrics.CheckoutSessionsCreatedTotal.Inc()
	c.JSON(http.StatusOK, sess)
}

// handlePaymentWebhook 处理支付网关回调。
//
// 处理顺序：签名校验 → 事件 ID 重放守卫 → 台账 MarkCompleted。
// 台账失败时释放事件 ID 占位，让网关重试能重新进来。
//
// POST /webhooks/payment
func (s *Server) handlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	event, err := s.verifier.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("webhook signature verification failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": market.ErrInvalidSignature.Error()})
		return
	}

	if event.Type != paygate.EventTypeCheckoutCompleted {
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	dup, err := s.deduper.IsDuplicate(c.Request.Context(), event.ID)
	if err != nil {
		// 去重器不可用时继续处理：台账自身幂等，宁可重复调用也不丢事件
		s.logger.Warn("webhook dedup check failed", slog.String("error", err.Error()))
	} else if dup {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	if err := s.ledger.MarkCompleted(c.Request.Context(), event.BidID, event.AmountPaid, "stripe"); err != nil {
		if errors.Is(err, market.ErrInvalidTransition) || errors.Is(err, market.ErrNotFound) {
			// 出价状态不对或不存在：重试也救不回来，直接确认事件
			metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
			s.logger.Warn("webhook event rejected",
				slog.String("event_id", event.ID),
				slog.Uint64("bid_id", uint64(event.BidID)),
				slog.String("error", err.Error()))
			c.JSON(http.StatusOK, gin.H{"status": "rejected"})
			return
		}

		// 暂时性失败：释放事件占位，等网关重试
		if delErr := s.deduper.Delete(c.Request.Context(), event.ID); delErr != nil {
			s.logger.Warn("webhook dedup release failed", slog.String("error", delErr.Error()))
		}
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		s.logger.Error("webhook ledger update failed",
			slog.String("event_id", event.ID),
			slog.Uint64("bid_id", uint64(event.BidID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
	s.logger.Info("payment webhook processed",
		slog.String("event_id", event.ID),
		slog.Uint64("bid_id", uint64(event.BidID)),
		slog.Float64("amount_paid", event.AmountPaid))
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
