package notifier

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewMailerDialer(t *testing.T) {
	m := NewMailer(MailerOptions{
		Host:        "smtp.example.com",
		Port:        465,
		Username:    "alerts",
		Password:    "secret",
		Sender:      "alerts@example.com",
		SSL:         true,
		SendTimeout: 20 * time.Second,
	}, zerolog.Nop())

	if !m.dialer.SSL {
		t.Fatal("ssl setting must reach the dialer")
	}
	if m.dialer.Host != "smtp.example.com" || m.dialer.Port != 465 {
		t.Fatalf("dialer endpoint: got %s:%d", m.dialer.Host, m.dialer.Port)
	}
	if m.dialer.Timeout != 20*time.Second {
		t.Fatalf("dialer timeout: got %v", m.dialer.Timeout)
	}
}

func TestNewMailerDefaultTimeout(t *testing.T) {
	m := NewMailer(MailerOptions{Host: "smtp.example.com", Port: 465}, zerolog.Nop())
	if m.opts.SendTimeout != 15*time.Second {
		t.Fatalf("default send timeout: got %v", m.opts.SendTimeout)
	}
}
