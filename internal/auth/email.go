package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// EmailMessage 待发送的邮件
type EmailMessage struct {
	To      string
	Subject string
	Text    string
}

// EmailSender 邮件发送接口
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// LogEmailSender 把邮件内容写入日志，未接入邮件服务的环境使用
type LogEmailSender struct {
	log *zap.Logger
}

// NewLogEmailSender 创建日志邮件发送器
func NewLogEmailSender(log *zap.Logger) *LogEmailSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmailSender{log: log.Named("email")}
}

// Send 记录一封邮件
func (s *LogEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.log.Info("email queued for delivery",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

// verificationEmail 邮箱验证邮件
func verificationEmail(to, publicURL, token string, ttl time.Duration) EmailMessage {
	link := publicURL + "/v1/auth/verify-email?token=" + url.QueryEscape(token)
	return EmailMessage{
		To:      to,
		Subject: "Verify your Publier account",
		Text: fmt.Sprintf("Welcome to Publier!\n\n"+
			"Please verify your email address by opening the link below:\n\n%s\n\n"+
			"This link will expire in %s.\n\n"+
			"If you didn't create an account, you can safely ignore this email.", link, humanDuration(ttl)),
	}
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}
