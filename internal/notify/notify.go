// Package notify implements the email alert collaborator spec.md §4.1
// names ("disables the account ... and notifies (email collaborator)"),
// plus a Slack channel supplementing it the way the pack's own
// telegraph adapters layer multiple notification backends.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/mjproxy/core/internal/model"
)

// EmailConfig holds the SMTP settings used to send disabled-account
// alerts.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

// EmailNotifier sends plain-text SMTP alerts.
type EmailNotifier struct {
	cfg  EmailConfig
	auth smtp.Auth
}

// NewEmailNotifier builds an EmailNotifier. Returns nil if the host or
// the recipient (To) is unset, matching the pack's "nil notifier when unconfigured" idiom.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Host == "" || cfg.To == "" {
		return nil
	}
	return &EmailNotifier{
		cfg:  cfg,
		auth: smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host),
	}
}

// AccountDisabled sends an email alert when the Gateway Client disables
// an account after repeated connect failures (spec.md §4.1).
func (n *EmailNotifier) AccountDisabled(acc *model.Account, reason string) {
	if n == nil {
		return
	}
	subject := fmt.Sprintf("mjproxy: account %s disabled", acc.ID)
	body := fmt.Sprintf("Account %s (channel %s) was disabled.\nReason: %s\n", acc.ID, acc.ChannelID, reason)
	msg := buildMessage(n.cfg.From, n.cfg.To, subject, body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	_ = smtp.SendMail(addr, n.auth, n.cfg.From, []string{n.cfg.To}, msg)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n\r\n", subject)
	b.WriteString(body)
	return []byte(b.String())
}

// SlackNotifier posts account-disabled alerts to a Slack channel via a
// bot token, for deployments that want alerting in Slack alongside (or
// instead of) email.
type SlackNotifier struct {
	client    *slackapi.Client
	channelID string
}

// NewSlackNotifier builds a SlackNotifier. Returns nil if botToken or
// channelID is unset.
func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	if botToken == "" || channelID == "" {
		return nil
	}
	return &SlackNotifier{client: slackapi.New(botToken), channelID: channelID}
}

// AccountDisabled posts a formatted Slack message for the disabled
// account.
func (n *SlackNotifier) AccountDisabled(acc *model.Account, reason string) {
	if n == nil {
		return
	}
	attachment := slackapi.Attachment{
		Color:    "danger",
		Title:    fmt.Sprintf("Account %s disabled", acc.ID),
		Text:     reason,
		Fallback: fmt.Sprintf("Account %s disabled: %s", acc.ID, reason),
		Fields: []slackapi.AttachmentField{
			{Title: "Channel", Value: acc.ChannelID, Short: true},
		},
	}
	_, _, _ = n.client.PostMessage(n.channelID, slackapi.MsgOptionAttachments(attachment))
}

// Multi fans out AccountDisabled to every configured notifier.
type Multi struct {
	notifiers []interface {
		AccountDisabled(acc *model.Account, reason string)
	}
}

// NewMulti builds a Multi from zero or more notifiers, skipping untyped
// nil values. A typed nil pointer (a nil *EmailNotifier or
// *SlackNotifier) is kept; its AccountDisabled does nothing.
func NewMulti(notifiers ...interface {
	AccountDisabled(acc *model.Account, reason string)
}) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// AccountDisabled fans the event out to every wrapped notifier.
func (m *Multi) AccountDisabled(acc *model.Account, reason string) {
	for _, n := range m.notifiers {
		n.AccountDisabled(acc, reason)
	}
}
