package notifier

import (
	"context"
	"fmt"
	"io"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/rs/zerolog"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/storage"
)

// MailerOptions configure the SMTP relay.
type MailerOptions struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Sender       string
	SSL          bool
	SendTimeout  time.Duration
	DashboardURL string
}

// Mailer delivers over SMTP-over-TLS. Each recipient gets an independent
// delivery attempt with its own timeout so one hung connection cannot
// stall the loop that called us.
type Mailer struct {
	opts   MailerOptions
	dialer *mail.Dialer
	logger zerolog.Logger
}

// NewMailer constructs an SMTP notifier.
func NewMailer(opts MailerOptions, logger zerolog.Logger) *Mailer {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}

	dialer := mail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	dialer.SSL = opts.SSL
	dialer.Timeout = opts.SendTimeout

	return &Mailer{
		opts:   opts,
		dialer: dialer,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// SendAlert delivers the price alert to every recipient independently and
// returns the recipients that failed.
func (m *Mailer) SendAlert(ctx context.Context, rec storage.PriceRecord, stats alerting.Stats, recipients []string) []DeliveryFailure {
	subject := fmt.Sprintf("⚠️ %s price alert", rec.FuelType)
	body := renderAlertHTML(rec, stats, m.opts.DashboardURL)

	var failures []DeliveryFailure
	for _, recipient := range recipients {
		msg := m.newMessage(recipient, subject)
		msg.SetBody("text/html", body)

		if err := m.send(ctx, msg); err != nil {
			m.logger.Warn().Err(err).Str("recipient", recipient).Msg("alert delivery failed")
			failures = append(failures, DeliveryFailure{Recipient: recipient, Err: err})
			continue
		}
		m.logger.Info().Str("recipient", recipient).Str("fuel_type", rec.FuelType).Msg("alert email sent")
	}
	return failures
}

// SendWeeklyDigest delivers the weekly summary, embedding the chart image
// inline by content-id when one was rendered.
func (m *Mailer) SendWeeklyDigest(ctx context.Context, digest Digest, recipients []string) []DeliveryFailure {
	body := renderDigestHTML(digest, m.opts.DashboardURL)

	var failures []DeliveryFailure
	for _, recipient := range recipients {
		msg := m.newMessage(recipient, "⛽ Weekly Fuel Price Summary")
		msg.SetBody("text/html", body)
		if len(digest.ChartPNG) > 0 {
			png := digest.ChartPNG
			msg.Embed(chartFilename, mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(png)
				return err
			}))
		}

		if err := m.send(ctx, msg); err != nil {
			m.logger.Warn().Err(err).Str("recipient", recipient).Msg("weekly digest delivery failed")
			failures = append(failures, DeliveryFailure{Recipient: recipient, Err: err})
			continue
		}
		m.logger.Info().Str("recipient", recipient).Msg("weekly digest sent")
	}
	return failures
}

// SendVerification delivers a subscription verification code.
func (m *Mailer) SendVerification(ctx context.Context, email, code string) error {
	msg := m.newMessage(email, "Your verification code")
	msg.SetBody("text/html", renderVerificationHTML(code))

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	m.logger.Info().Str("recipient", email).Msg("verification code sent")
	return nil
}

func (m *Mailer) newMessage(recipient, subject string) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.opts.Sender)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	return msg
}

// send runs the blocking dial-and-send under both the caller's context and
// the per-recipient timeout.
func (m *Mailer) send(ctx context.Context, msg *mail.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	timer := time.NewTimer(m.opts.SendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("smtp delivery timed out after %s", m.opts.SendTimeout)
	}
}

var _ Notifier = (*Mailer)(nil)
