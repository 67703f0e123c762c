package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Kai-Ger/CardGallery/internal/config"
	"github.com/Kai-Ger/CardGallery/internal/pkg/metrics"

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

// SendActivation 发送注册确认邮件。
func (n *EmailNotifier) SendActivation(toEmail, username, link string) error {
	text := fmt.Sprintf("Dear %s\n\n"+
		"Thanks for joining CardGallery. To complete your registration, please follow this link:\n\n"+
		"%s\n\n"+
		"If you did not request this registration, please ignore this email.\n\n"+
		"Thank you!", username, link)
	return n.send("activation", toEmail, "Welcome to CardGallery", text)
}

// SendPasswordReset 发送密码重置邮件。
func (n *EmailNotifier) SendPasswordReset(toEmail, username, link string) error {
	text := fmt.Sprintf("Dear %s\n\n"+
		"You recently asked to reset your password. To complete your request, please follow this link:\n\n"+
		"%s\n\n"+
		"If you did not request this change, please ignore this email and your password will remain unchanged.\n", username, link)
	return n.send("password_reset", toEmail, "Reset your password", text)
}

// SendPasswordChanged 发送密码已修改的确认邮件。
func (n *EmailNotifier) SendPasswordChanged(toEmail, username string) error {
	text := fmt.Sprintf("Dear %s\n\n"+
		"This is a confirmation that the password for your account %s has just been changed.\n", username, toEmail)
	return n.send("password_changed", toEmail, "Your password has been changed", text)
}

// SendWishAdded 通知管理员有新的愿望。
func (n *EmailNotifier) SendWishAdded(username, cardName string) error {
	if strings.TrimSpace(n.cfg.AdminTo) == "" {
		n.logger.Warn("admin email not configured, skip wish notification")
		return nil
	}
	text := fmt.Sprintf("User %s just wished for the card %q.\n\n"+
		"Visit the user profile to fulfill the wish once the card is in stock.\n", username, cardName)
	return n.send("wish_added", n.cfg.AdminTo, "[CardGallery] New wish", text)
}

// SendWishFulfilled 通知用户愿望已寄出。
func (n *EmailNotifier) SendWishFulfilled(toEmail, username, cardName string) error {
	text := fmt.Sprintf("Dear %s\n\n"+
		"Good news! Your wished card %q is on its way to you.\n\n"+
		"Thank you for being part of CardGallery!\n", username, cardName)
	return n.send("wish_fulfilled", toEmail, "[CardGallery] Your wish was fulfilled", text)
}

func (n *EmailNotifier) send(kind, toEmail, subject, text string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification", slog.String("kind", kind))
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification", slog.String("kind", kind))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", n.buildHTMLBody(subject, text))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		metrics.EmailFailedTotal.WithLabelValues(kind).Inc()
		return fmt.Errorf("send email: %w", err)
	}

	metrics.EmailSentTotal.WithLabelValues(kind).Inc()
	n.logger.Info("email notification sent", slog.String("to", toEmail), slog.String("kind", kind))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(subject, text string) string {
	template := `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; white-space: pre-line; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">%s</div>
    <div class="content">%s</div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template, subject, text)
}
