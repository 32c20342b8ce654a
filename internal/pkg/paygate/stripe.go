package paygate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"agrimandi/internal/config"
	"agrimandi/internal/market"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

// EventTypeCheckoutCompleted 网关付款完成事件。
const EventTypeCheckoutCompleted = "checkout.session.completed"

// Session 创建支付会话后返回给前端的跳转信息。
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Event 是网关通知经签名校验后的扁平化结果。
// 非 checkout.session.completed 的事件 BidID 为 0。
type Event struct {
	ID         string
	Type       string
	BidID      uint
	AmountPaid float64
}

// Client 封装 Stripe Checkout 会话创建与 webhook 签名校验。
type Client struct {
	cfg    config.StripeConfig
	logger *slog.Logger
}

// NewClient 创建支付网关客户端。
func NewClient(cfg config.StripeConfig, logger *slog.Logger) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg, logger: logger}
}

// CreateSession 为一条已接受的出价创建 Checkout 支付会话。
//
// 金额以卢比计价，转为 paise（1 卢比 = 100 paise）传给网关；
// bid_id / user_id 写入会话 metadata，回调时据此定位出价。
func (c *Client) CreateSession(bidID, userID uint, amount float64, description string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(c.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(toMinorUnits(amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
	}
	params.AddMetadata("bid_id", strconv.FormatUint(uint64(bidID), 10))
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("checkout session created",
			slog.String("session_id", sess.ID),
			slog.Uint64("bid_id", uint64(bidID)))
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyEvent 校验网关通知签名并扁平化事件内容。
//
// 签名不合法返回 market.ErrInvalidSignature；
// metadata 里没有合法 bid_id 的完成事件也视为非法。
// 事件的 api_version 与 SDK 固定版本不一致不算签名问题，
// 否则端点版本漂移会把真实的付款确认当成非法请求拒掉。
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, market.ErrInvalidSignature
	}

	evt := &Event{ID: raw.ID, Type: string(raw.Type)}
	if evt.Type != EventTypeCheckoutCompleted {
		return evt, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	bidID, err := strconv.ParseUint(cs.Metadata["bid_id"], 10, 32)
	if err != nil || bidID == 0 {
		return nil, market.ErrInvalidSignature
	}

	evt.BidID = uint(bidID)
	evt.AmountPaid = float64(cs.AmountTotal) / 100
	return evt, nil
}

// toMinorUnits 卢比转 paise，四舍五入到整数。
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
