package notify

import "context"

// Notifier 定义通知接口。
type Notifier interface {
	// SendBelowMSPAlert 通知农户其挂单价低于当季 MSP。
	//
	// 参数:
	//   ctx: 上下文
	//   toEmail: 接收邮箱
	//   cropName: 作物名称
	//   listingPrice: 挂单单价
	//   mspPrice: 当季 MSP
	SendBelowMSPAlert(ctx context.Context, toEmail, cropName string, listingPrice, mspPrice float64) error
}
