// Package report formats the daily statistics summary and mails it.
package report

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jizpi/arm-ledger/internal/stats"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	From string `yaml:"from"`
}

// IsConfigured returns true if SMTP settings are present.
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Subject returns the mail subject for a report day.
func Subject(s stats.Statistics) string {
	return fmt.Sprintf("ARM hisobot: %s", s.Today)
}

// Format builds the plain-text daily summary.
func Format(s stats.Statistics) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Axborot-resurs markazi, %s\n\n", s.Today)
	fmt.Fprintf(&buf, "Bugun:          %s\n", groupDigits(s.TodayCount))
	fmt.Fprintf(&buf, "Shu oy:         %s\n", groupDigits(s.MonthCount))
	fmt.Fprintf(&buf, "O'tgan oy:      %s\n", groupDigits(s.LastMonthCount))
	fmt.Fprintf(&buf, "O'sish:         %+d%%\n", s.Growth)
	fmt.Fprintf(&buf, "Jami:           %s (%d yozuv)\n", groupDigits(s.TotalWeight), s.TotalRecords)
	fmt.Fprintf(&buf, "Ichki / tashqi: %d%% / %d%%\n", s.InternalPercent, s.ExternalPercent)
	if s.MaxDay.Count > 0 {
		fmt.Fprintf(&buf, "Eng faol kun:   %s (%d)\n", s.MaxDay.Date, s.MaxDay.Count)
	}

	var used []stats.Share
	for _, r := range s.Resources {
		if r.Count > 0 {
			used = append(used, r)
		}
	}
	if len(used) > 0 {
		fmt.Fprintf(&buf, "\nResurslar:\n")
		for _, r := range used {
			fmt.Fprintf(&buf, "  - %s: %d (%d%%)\n", r.Name, r.Count, r.Percent)
		}
	}

	if len(s.Histogram) > 0 {
		var days []string
		for _, d := range s.Histogram {
			days = append(days, fmt.Sprintf("%s %d", d.Date[:5], d.Count))
		}
		fmt.Fprintf(&buf, "\nSo'nggi kunlar: %s\n", strings.Join(days, ", "))
	}

	if n := len(s.MonthlyTop); n > 0 {
		m := s.MonthlyTop[n-1]
		if m.Month == stats.UnknownMonth && n > 1 {
			m = s.MonthlyTop[n-2]
		}
		fmt.Fprintf(&buf, "\nEng faol fakultetlar (%s):\n", m.Month)
		for _, r := range m.Top {
			fmt.Fprintf(&buf, "  %d. %s: %d\n", r.Rank, r.Department, r.Count)
		}
	}

	return buf.String()
}

// Send sends an email via SMTP.
// Supports both port 465 (implicit TLS) and port 587 (STARTTLS).
func Send(cfg SMTPConfig, to []string, subject, body string) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		cfg.From,
		strings.Join(to, ", "),
		subject,
		body,
	)

	addr := cfg.Host + ":" + cfg.Port

	if cfg.Port == "465" {
		return sendImplicitTLS(cfg, addr, to, msg)
	}
	return sendSTARTTLS(cfg, addr, to, msg)
}

// sendImplicitTLS connects over TLS directly (port 465/SMTPS).
func sendImplicitTLS(cfg SMTPConfig, addr string, to []string, msg string) (err error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil && err == nil {
			err = fmt.Errorf("quit: %w", quitErr)
		}
	}()

	if cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return nil
}

// sendSTARTTLS connects plain then upgrades to TLS (port 587).
func sendSTARTTLS(cfg SMTPConfig, addr string, to []string, msg string) error {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

// groupDigits writes n with a space every three digits, as in 12 345.
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, " ")
	if neg {
		return "-" + out
	}
	return out
}
