package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Expected user-facing outcomes; the API layer maps these to 4xx responses
// and never logs them as errors.
var (
	ErrRateLimited       = errors.New("verification code issued too recently")
	ErrInvalidCode       = errors.New("invalid or expired verification code")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrNoChannels        = errors.New("no subscription channel requested")
)

// codeTTL bounds both the verification window and the reissue rate limit.
const codeTTL = 60 * time.Second

type issuedCode struct {
	code   string
	issued time.Time
}

type subscriptionDoc struct {
	Weekly []string                  `json:"weekly"`
	Alerts map[string][]AlertRule    `json:"alerts"`
	Info   map[string]SubscriberInfo `json:"info"`
}

// Registry is the durable subscriber mapping plus the transient
// verification-code cache. All mutation funnels through it; each
// read-modify-write holds the registry mutex so concurrent subscribe and
// unsubscribe for the same address cannot interleave.
type Registry struct {
	mu    sync.Mutex
	doc   subscriptionDoc
	codes map[string]issuedCode
	path  string

	now    func() time.Time
	logger zerolog.Logger
}

// OpenRegistry loads the subscriptions document. A legacy document that is
// a bare array of addresses (the format before alert rules existed) is
// upgraded in place to the weekly/alerts/info shape.
func OpenRegistry(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		doc: subscriptionDoc{
			Weekly: []string{},
			Alerts: map[string][]AlertRule{},
			Info:   map[string]SubscriberInfo{},
		},
		codes:  make(map[string]issuedCode),
		path:   path,
		now:    time.Now,
		logger: logger.With().Str("component", "subscription_registry").Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(data) == 0 {
		return r, nil
	}

	var legacy []string
	if err := json.Unmarshal(data, &legacy); err == nil {
		r.doc.Weekly = legacy
		for _, email := range legacy {
			r.doc.Info[email] = SubscriberInfo{}
		}
		r.logger.Info().Int("subscribers", len(legacy)).Msg("migrated legacy subscription list")
		if err := writeDocument(path, r.doc); err != nil {
			return nil, fmt.Errorf("write migrated subscriptions: %w", err)
		}
		return r, nil
	}

	if err := json.Unmarshal(data, &r.doc); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}
	if r.doc.Alerts == nil {
		r.doc.Alerts = map[string][]AlertRule{}
	}
	if r.doc.Info == nil {
		r.doc.Info = map[string]SubscriberInfo{}
	}
	return r, nil
}

// IssueCode generates a fresh six-digit verification code for the email.
// Fails with ErrRateLimited while a code issued within the last minute is
// still live.
func (r *Registry) IssueCode(email string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.codes[email]; ok && r.now().Sub(prev.issued) < codeTTL {
		return "", ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	r.codes[email] = issuedCode{code: code, issued: r.now()}
	return code, nil
}

// VerifyCode reports whether the code matches and is still within its
// lifetime. Codes are consumed by expiry only; a correct code verifies
// repeatedly within the window.
func (r *Registry) VerifyCode(email, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.codes[email]
	if !ok || code == "" || rec.code != code {
		return false
	}
	return r.now().Sub(rec.issued) <= codeTTL
}

// IsSubscribed reports whether the email has any active channel.
func (r *Registry) IsSubscribed(email string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribedLocked(email)
}

func (r *Registry) subscribedLocked(email string) bool {
	for _, e := range r.doc.Weekly {
		if e == email {
			return true
		}
	}
	return len(r.doc.Alerts[email]) > 0
}

// Subscribe adds the requested channels. A channel the email already has
// is rejected with ErrAlreadySubscribed, not merged. At least one channel
// must be requested; an info entry never exists without one.
func (r *Registry) Subscribe(email string, weekly bool, alerts []AlertRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !weekly && len(alerts) == 0 {
		return ErrNoChannels
	}

	if weekly {
		for _, e := range r.doc.Weekly {
			if e == email {
				return fmt.Errorf("%w: weekly", ErrAlreadySubscribed)
			}
		}
	}
	if len(alerts) > 0 && len(r.doc.Alerts[email]) > 0 {
		return fmt.Errorf("%w: alerts", ErrAlreadySubscribed)
	}

	prev := r.doc
	if weekly {
		r.doc.Weekly = append(append([]string{}, r.doc.Weekly...), email)
	}
	if len(alerts) > 0 {
		merged := make(map[string][]AlertRule, len(r.doc.Alerts)+1)
		for k, v := range r.doc.Alerts {
			merged[k] = v
		}
		merged[email] = alerts
		r.doc.Alerts = merged
	}
	if _, ok := r.doc.Info[email]; !ok {
		info := make(map[string]SubscriberInfo, len(r.doc.Info)+1)
		for k, v := range r.doc.Info {
			info[k] = v
		}
		info[email] = SubscriberInfo{}
		r.doc.Info = info
	}

	if err := writeDocument(r.path, r.doc); err != nil {
		r.doc = prev
		return fmt.Errorf("write subscriptions: %w", err)
	}
	return nil
}

// Unsubscribe removes the email from every channel and drops its info
// entry.
func (r *Registry) Unsubscribe(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.subscribedLocked(email) {
		return ErrNotSubscribed
	}

	prev := r.doc

	weekly := make([]string, 0, len(r.doc.Weekly))
	for _, e := range r.doc.Weekly {
		if e != email {
			weekly = append(weekly, e)
		}
	}
	r.doc.Weekly = weekly

	alerts := make(map[string][]AlertRule, len(r.doc.Alerts))
	for k, v := range r.doc.Alerts {
		if k != email {
			alerts[k] = v
		}
	}
	r.doc.Alerts = alerts

	info := make(map[string]SubscriberInfo, len(r.doc.Info))
	for k, v := range r.doc.Info {
		if k != email {
			info[k] = v
		}
	}
	r.doc.Info = info

	if err := writeDocument(r.path, r.doc); err != nil {
		r.doc = prev
		return fmt.Errorf("write subscriptions: %w", err)
	}
	return nil
}

// AlertRules returns a snapshot of every subscriber's rules.
func (r *Registry) AlertRules() map[string][]AlertRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]AlertRule, len(r.doc.Alerts))
	for email, rules := range r.doc.Alerts {
		out[email] = append([]AlertRule{}, rules...)
	}
	return out
}

// WeeklyDue returns the weekly subscribers whose last digest is older than
// the cadence (or who never received one).
func (r *Registry) WeeklyDue(now time.Time, cadence time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]string, 0)
	for _, email := range r.doc.Weekly {
		last := r.doc.Info[email].WeeklyLastSent
		if last == nil || now.Sub(last.Time) >= cadence {
			due = append(due, email)
		}
	}
	return due
}

// MarkWeeklySent stamps the digest delivery time for the given
// subscribers.
func (r *Registry) MarkWeeklySent(emails []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(emails) == 0 {
		return nil
	}

	prev := r.doc
	info := make(map[string]SubscriberInfo, len(r.doc.Info))
	for k, v := range r.doc.Info {
		info[k] = v
	}
	stamp := NewTimestamp(at)
	for _, email := range emails {
		entry := info[email]
		entry.WeeklyLastSent = &stamp
		info[email] = entry
	}
	r.doc.Info = info

	if err := writeDocument(r.path, r.doc); err != nil {
		r.doc = prev
		return fmt.Errorf("write subscriptions: %w", err)
	}
	return nil
}

// Document returns the subscriptions JSON document verbatim.
func (r *Registry) Document() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r.doc, "", "    ")
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
