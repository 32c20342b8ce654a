package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agrimandi/internal/config"
	"agrimandi/internal/pkg/currency"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendBelowMSPAlert 发送低于 MSP 的提醒邮件。
//
// 邮件配置缺失或收件人为空时跳过发送（只保留站内提醒），不算错误。
func (n *EmailNotifier) SendBelowMSPAlert(ctx context.Context, toEmail, cropName string, listingPrice, mspPrice float64) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[AgriMandi] Price below MSP alert")

	body := n.buildHTMLBody(cropName, listingPrice, mspPrice)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email notification sent", slog.String("to", toEmail), slog.String("crop", cropName))
	return nil
}

// SendVerificationCode 发送邮箱验证码。
func (n *EmailNotifier) SendVerificationCode(toEmail string, code string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[AgriMandi] Email verification code")

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>AgriMandi email verification</h2>
    <p>Your verification code is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>The code expires in 10 minutes.</p>
  </div>
</body>
</html>`, code)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("verification email sent", slog.String("to", toEmail))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(cropName string, listingPrice, mspPrice float64) string {
	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #14532d; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .price { font-size: 26px; font-weight: bold; color: #ef4444; margin: 8px 0 12px; }
  .note { font-size: 14px; margin-bottom: 16px; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">[AgriMandi] Price below MSP alert</div>
    <div class="content">
      <div class="note">Your <strong>%s</strong> listing is priced below the Minimum Support Price.</div>
      <div class="price">Listed: ₹%s &nbsp;|&nbsp; MSP: ₹%s</div>
      <div class="note">Consider raising your price or selling through government procurement.</div>
      <div class="footer">This alert is generated automatically for available listings.</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template, cropName, currency.FormatINR(listingPrice), currency.FormatINR(mspPrice))
}
