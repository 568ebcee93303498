package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipient_mails.json")
	reg, err := OpenRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return reg
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.Subscribe("a@example.com", true, nil); err != nil {
		t.Fatalf("subscribe weekly: %v", err)
	}
	if !reg.IsSubscribed("a@example.com") {
		t.Fatal("subscriber should be active after subscribe")
	}

	err := reg.Subscribe("a@example.com", true, nil)
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("duplicate weekly subscribe: want ErrAlreadySubscribed, got %v", err)
	}

	rules := []AlertRule{{FuelType: "U91", Method: MethodFixed, Threshold: 140}}
	if err := reg.Subscribe("a@example.com", false, rules); err != nil {
		t.Fatalf("adding alerts to a weekly subscriber should be allowed: %v", err)
	}
	err = reg.Subscribe("a@example.com", false, rules)
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("duplicate alert subscribe: want ErrAlreadySubscribed, got %v", err)
	}

	if err := reg.Unsubscribe("a@example.com"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if reg.IsSubscribed("a@example.com") {
		t.Fatal("subscriber should be gone after unsubscribe")
	}
	if len(reg.AlertRules()["a@example.com"]) != 0 {
		t.Fatal("alert rules must be removed with the subscriber")
	}
	if _, ok := reg.doc.Info["a@example.com"]; ok {
		t.Fatal("info entry must not outlive the subscription")
	}

	err = reg.Unsubscribe("a@example.com")
	if !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("unsubscribing an unknown address: want ErrNotSubscribed, got %v", err)
	}
}

func TestSubscribeRequiresChannel(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.Subscribe("a@example.com", false, nil)
	if !errors.Is(err, ErrNoChannels) {
		t.Fatalf("channel-less subscribe: want ErrNoChannels, got %v", err)
	}
	if reg.IsSubscribed("a@example.com") {
		t.Fatal("nothing should be recorded")
	}
	if _, ok := reg.doc.Info["a@example.com"]; ok {
		t.Fatal("an info entry must not exist without a channel")
	}
}

func TestVerificationCodeLifetime(t *testing.T) {
	reg := newTestRegistry(t)
	base := time.Now()
	current := base
	reg.now = func() time.Time { return current }

	code, err := reg.IssueCode("a@example.com")
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code should be six digits, got %q", code)
	}

	current = base.Add(59 * time.Second)
	if !reg.VerifyCode("a@example.com", code) {
		t.Fatal("code should still verify at 59s")
	}
	// Not single use.
	if !reg.VerifyCode("a@example.com", code) {
		t.Fatal("code must verify repeatedly within its lifetime")
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if reg.VerifyCode("a@example.com", wrong) {
		t.Fatal("wrong code must not verify")
	}
	if reg.VerifyCode("b@example.com", code) {
		t.Fatal("code is bound to the address it was issued for")
	}

	current = base.Add(61 * time.Second)
	if reg.VerifyCode("a@example.com", code) {
		t.Fatal("code must expire after 60s")
	}
}

func TestIssueCodeRateLimit(t *testing.T) {
	reg := newTestRegistry(t)
	base := time.Now()
	current := base
	reg.now = func() time.Time { return current }

	if _, err := reg.IssueCode("a@example.com"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = base.Add(30 * time.Second)
	_, err := reg.IssueCode("a@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("reissue within 60s: want ErrRateLimited, got %v", err)
	}

	if _, err := reg.IssueCode("b@example.com"); err != nil {
		t.Fatalf("rate limit is per address: %v", err)
	}

	current = base.Add(61 * time.Second)
	if _, err := reg.IssueCode("a@example.com"); err != nil {
		t.Fatalf("reissue after expiry: %v", err)
	}
}

func TestWeeklyDue(t *testing.T) {
	reg := newTestRegistry(t)
	now := time.Now()
	cadence := 168 * time.Hour

	for _, email := range []string{"fresh@example.com", "stale@example.com", "never@example.com"} {
		if err := reg.Subscribe(email, true, nil); err != nil {
			t.Fatalf("subscribe %s: %v", email, err)
		}
	}
	if err := reg.MarkWeeklySent([]string{"fresh@example.com"}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("mark fresh: %v", err)
	}
	if err := reg.MarkWeeklySent([]string{"stale@example.com"}, now.Add(-cadence-time.Hour)); err != nil {
		t.Fatalf("mark stale: %v", err)
	}

	due := reg.WeeklyDue(now, cadence)
	if len(due) != 2 {
		t.Fatalf("expected 2 due subscribers, got %v", due)
	}
	for _, email := range due {
		if email == "fresh@example.com" {
			t.Fatal("a subscriber inside the cadence window is not due")
		}
	}
}

func TestOpenRegistryMigratesLegacyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipient_mails.json")
	legacy := `["a@example.com", "b@example.com"]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy document: %v", err)
	}

	reg, err := OpenRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !reg.IsSubscribed("a@example.com") || !reg.IsSubscribed("b@example.com") {
		t.Fatal("legacy addresses should become weekly subscribers")
	}

	// The migration must rewrite the file, so a reopen parses the new shape.
	reloaded, err := OpenRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen migrated document: %v", err)
	}
	if got := len(reloaded.WeeklyDue(time.Now(), time.Hour)); got != 2 {
		t.Fatalf("migrated subscribers lost on reload: due=%d", got)
	}
}

func TestRegistryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipient_mails.json")
	reg, err := OpenRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rules := []AlertRule{{FuelType: "Diesel", Method: MethodMovingAverage, Window: 120}}
	if err := reg.Subscribe("a@example.com", true, rules); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	reloaded, err := OpenRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reloaded.IsSubscribed("a@example.com") {
		t.Fatal("subscription not persisted")
	}
	got := reloaded.AlertRules()["a@example.com"]
	if len(got) != 1 || got[0].FuelType != "Diesel" || got[0].Window != 120 {
		t.Fatalf("alert rules not persisted: %#v", got)
	}
}
