// Package notify delivers deal alerts over the configured channels,
// honoring quiet hours, delivery frequency and the at-most-once flag
// each deal carries in the store.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gridwatch/internal/database"
	"gridwatch/internal/models"
	"gridwatch/logger"
)

// Notification frequencies.
const (
	FrequencyImmediate = "immediate"
	FrequencyDigest    = "digest"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// QuietHours is a daily suppression window on the local clock. A window
// whose end precedes its start wraps past midnight.
type QuietHours struct {
	start int // minutes after midnight
	end   int
}

// ParseQuietHours builds a window from two HH:MM clock times.
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, err
	}
	return QuietHours{start: s, end: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window, bounds inclusive.
// An empty window (start equals end) contains nothing.
func (q QuietHours) Contains(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	if q.start == q.end {
		return false
	}
	if q.start < q.end {
		return now >= q.start && now <= q.end
	}
	return now >= q.start || now <= q.end
}

// Settings is the user-tunable delivery behavior. It is read from the
// preference store on every dispatch so edits apply without a restart.
type Settings struct {
	Frequency       string
	Quiet           QuietHours
	TelegramEnabled bool
	EmailEnabled    bool
}

// LoadSettings reads the notification preferences, applying defaults for
// keys that were never written.
func LoadSettings(ctx context.Context, store database.Store) (Settings, error) {
	frequency, err := store.GetPreference(ctx, database.PrefFrequency, FrequencyImmediate)
	if err != nil {
		return Settings{}, err
	}
	quietStart, err := store.GetPreference(ctx, database.PrefQuietStart, "22:00")
	if err != nil {
		return Settings{}, err
	}
	quietEnd, err := store.GetPreference(ctx, database.PrefQuietEnd, "08:00")
	if err != nil {
		return Settings{}, err
	}
	quiet, err := ParseQuietHours(quietStart, quietEnd)
	if err != nil {
		return Settings{}, err
	}

	telegram, err := boolPreference(ctx, store, database.PrefTelegramEnabled, true)
	if err != nil {
		return Settings{}, err
	}
	email, err := boolPreference(ctx, store, database.PrefEmailEnabled, false)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Frequency:       frequency,
		Quiet:           quiet,
		TelegramEnabled: telegram,
		EmailEnabled:    email,
	}, nil
}

func boolPreference(ctx context.Context, store database.Store, key string, fallback bool) (bool, error) {
	raw, err := store.GetPreference(ctx, key, strconv.FormatBool(fallback))
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("preference %s: %w", key, err)
	}
	return v, nil
}

// Dispatcher fans deal alerts out to the configured channels and records
// delivery in the store so a deal is announced at most once.
type Dispatcher struct {
	store    database.Store
	channels []Channel
	log      *logrus.Entry
	now      func() time.Time
}

// NewDispatcher returns a Dispatcher over the given channels.
func NewDispatcher(store database.Store, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		log:      logger.WithComponent("notify"),
		now:      time.Now,
	}
}

// Dispatch delivers alerts for the given detections and returns how many
// deals were delivered and marked. Quiet hours defer everything to a
// later cycle; deals already marked notified are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, deals []models.DealAssessment) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	settings, err := LoadSettings(ctx, d.store)
	if err != nil {
		return 0, fmt.Errorf("load notification settings: %w", err)
	}

	pending := d.pending(ctx, deals)
	if len(pending) == 0 {
		return 0, nil
	}

	if settings.Quiet.Contains(d.now()) {
		d.log.WithField("deals", len(pending)).Info("inside quiet hours, deferring notifications")
		return 0, nil
	}

	channels := d.enabled(settings)
	if len(channels) == 0 {
		d.log.Warn("no notification channel enabled")
		return 0, nil
	}

	if settings.Frequency == FrequencyDigest {
		return d.sendDigest(ctx, channels, pending)
	}
	return d.sendImmediate(ctx, channels, pending)
}

// pending filters out deals whose notified flag is already set.
func (d *Dispatcher) pending(ctx context.Context, deals []models.DealAssessment) []models.DealAssessment {
	var out []models.DealAssessment
	for _, a := range deals {
		deal, err := d.store.GetDeal(ctx, a.DealID)
		if err != nil {
			d.log.WithError(err).WithField("deal", a.DealID).Warn("deal lookup failed, skipping")
			continue
		}
		if deal.Notified {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (d *Dispatcher) enabled(settings Settings) []Channel {
	var out []Channel
	for _, c := range d.channels {
		switch c.Name() {
		case "telegram":
			if !settings.TelegramEnabled {
				continue
			}
		case "email":
			if !settings.EmailEnabled {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// deliver sends text to every channel. Channels fail independently; one
// success is enough to count the alert as delivered.
func (d *Dispatcher) deliver(ctx context.Context, channels []Channel, text string) bool {
	delivered := false
	for _, c := range channels {
		if err := c.Send(ctx, text); err != nil {
			d.log.WithError(err).WithField("channel", c.Name()).Error("send failed")
			continue
		}
		delivered = true
	}
	return delivered
}

func (d *Dispatcher) sendImmediate(ctx context.Context, channels []Channel, pending []models.DealAssessment) (int, error) {
	notified := 0
	for _, a := range pending {
		if !d.deliver(ctx, channels, dealText(a)) {
			continue
		}
		if err := d.store.MarkDealNotified(ctx, a.DealID); err != nil {
			d.log.WithError(err).WithField("deal", a.DealID).Error("mark notified failed")
			continue
		}
		notified++
	}
	return notified, nil
}

// sendDigest folds every pending deal into one message and marks them in
// one statement, so the batch is recorded all-or-nothing.
func (d *Dispatcher) sendDigest(ctx context.Context, channels []Channel, pending []models.DealAssessment) (int, error) {
	if !d.deliver(ctx, channels, digestText(pending)) {
		return 0, nil
	}

	ids := make([]int64, len(pending))
	for i, a := range pending {
		ids[i] = a.DealID
	}
	if err := d.store.MarkDealsNotified(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark digest notified: %w", err)
	}
	return len(pending), nil
}

// ── Message formatting ──────────────────────────────────────────────────

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"JPY": "¥",
}

func formatPrice(amount float64, currency string) string {
	if sym, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%.2f", sym, amount)
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func moduleName(a models.DealAssessment) string {
	name := strings.TrimSpace(a.Module.Manufacturer + " " + a.Module.Name)
	if name == "" {
		name = a.Listing.ExternalID
	}
	return name
}

func dealText(a models.DealAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal found: %s\n", moduleName(a))

	b.WriteString(formatPrice(a.Listing.Price, a.Listing.Currency))
	if a.IsDeal {
		fmt.Fprintf(&b, ", %.1f%% below the %s average", a.PercentBelow, formatPrice(a.AvgPrice, a.Listing.Currency))
	}
	if a.BelowMax {
		b.WriteString(", under your price cap")
	}

	var details []string
	if a.Listing.Condition != "" {
		details = append(details, a.Listing.Condition)
	}
	if a.Listing.Region != "" {
		details = append(details, a.Listing.Region)
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}

	if a.Listing.URL != "" {
		b.WriteString("\n")
		b.WriteString(a.Listing.URL)
	}
	return b.String()
}

func digestText(deals []models.DealAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new deals found", len(deals))
	for _, a := range deals {
		fmt.Fprintf(&b, "\n- %s: %s", moduleName(a), formatPrice(a.Listing.Price, a.Listing.Currency))

		var extras []string
		if a.IsDeal {
			extras = append(extras, fmt.Sprintf("%.1f%% below average", a.PercentBelow))
		}
		if a.Listing.Region != "" {
			extras = append(extras, a.Listing.Region)
		}
		if len(extras) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(extras, ", "))
		}

		if a.Listing.URL != "" {
			b.WriteString(" ")
			b.WriteString(a.Listing.URL)
		}
	}
	return b.String()
}
