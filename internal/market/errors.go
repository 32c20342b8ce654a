package market

import "errors"

// 领域层哨兵错误。handler 层负责映射为 HTTP 状态码，
// 错误信息本身保持机器可读（snake_case），上下文由调用方补充。
var (
	ErrInvalidAmount        = errors.New("invalid_amount")        // 金额 <= 0
	ErrInvalidTransition    = errors.New("invalid_transition")    // 出价状态不允许该操作
	ErrNotOwner             = errors.New("not_owner")             // 请求者不是资源所有者
	ErrListingUnavailable   = errors.New("listing_unavailable")   // 挂单不在 available 状态
	ErrUnauthorized         = errors.New("unauthorized")          // 未认证
	ErrInvalidSignature     = errors.New("invalid_signature")     // 网关通知签名校验失败
	ErrDuplicateTransaction = errors.New("duplicate_transaction") // 同一出价已有成交记录
	ErrNotFound             = errors.New("not_found")             // 实体不存在
	ErrStoreUnavailable     = errors.New("store_unavailable")     // 存储暂不可用（可重试）
)
