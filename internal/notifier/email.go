package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"job-compass/internal/scheduler"
)

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Subject  string   `yaml:"subject" json:"subject"`
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	data := buildEmailData(msg)
	return smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data))
}

// EmailNotifier 将提醒摘要发送邮件。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Job application reminders"
	}
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Notify 将提醒摘要发送邮件，空摘要跳过。
func (n EmailNotifier) Notify(ctx context.Context, digest scheduler.Digest) error {
	if digest.Empty() {
		return nil
	}

	msg := EmailMessage{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: n.cfg.Subject,
		Body:    buildBody(digest),
	}
	return n.sender.Send(ctx, msg)
}

func buildBody(digest scheduler.Digest) string {
	var b strings.Builder

	if len(digest.Overdue) > 0 {
		b.WriteString("Overdue deadlines:\n")
		for _, card := range digest.Overdue {
			b.WriteString(fmt.Sprintf("- %s (%d days past)\n", card.JobID, -card.DaysRemaining))
		}
	}

	if len(digest.Urgent) > 0 {
		b.WriteString("Deadlines within 24 hours:\n")
		for _, card := range digest.Urgent {
			if card.DaysRemaining < 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("- %s (%d days remaining)\n", card.JobID, card.DaysRemaining))
		}
	}

	if len(digest.FollowUps) > 0 {
		b.WriteString("Stalled applications to follow up:\n")
		for _, fu := range digest.FollowUps {
			b.WriteString(fmt.Sprintf("- %s at %s, %s for %d days\n", fu.Title, fu.Company, fu.Stage, fu.IdleDays))
		}
	}

	return b.String()
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
