package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gridwatch/internal/analyzer"
	"gridwatch/internal/database"
	"gridwatch/internal/models"
	"gridwatch/internal/notify"
	"gridwatch/internal/secrets"
)

type fakeMarket struct {
	authed   bool
	failAuth bool
	gotUser  string
	gotPass  string
	pages    map[string][]models.ListingRecord
	details  map[string]models.ListingDetail
}

func (f *fakeMarket) Authenticated() bool { return f.authed }

func (f *fakeMarket) Authenticate(_ context.Context, username, password string) error {
	if f.failAuth {
		return errors.New("login rejected")
	}
	f.gotUser, f.gotPass = username, password
	f.authed = true
	return nil
}

func (f *fakeMarket) ListPage(_ context.Context, region string, page int) ([]models.ListingRecord, error) {
	if page > 1 {
		return nil, nil
	}
	return f.pages[region], nil
}

func (f *fakeMarket) ListingDetail(_ context.Context, rawURL string) (models.ListingDetail, error) {
	d, ok := f.details[rawURL]
	if !ok {
		return models.ListingDetail{}, errors.New("unknown listing page")
	}
	return d, nil
}

type fakeChannel struct {
	sent []string
}

func (f *fakeChannel) Name() string { return "test" }

func (f *fakeChannel) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func offerRecord(ext, moduleExt string, price float64) models.ListingRecord {
	return models.ListingRecord{
		ExternalID:  ext,
		DateListed:  "2024-03-01",
		Price:       price,
		Currency:    "EUR",
		PriceOK:     true,
		ModuleName:  "Maths",
		ModuleURL:   "https://market.example/e/modules/view/" + moduleExt,
		ModuleID:    moduleExt,
		Description: "Racked once",
		Seller:      "synthdealer",
		Region:      "EU",
		URL:         "https://market.example/e/offers/view/" + ext,
	}
}

var soldHistory = models.ListingDetail{
	Name:      "Maths",
	Price:     200,
	Currency:  "EUR",
	PriceOK:   true,
	Condition: "Racked once",
	Seller:    "synthdealer",
	Region:    "EU",
	History: []models.HistoryRecord{
		{DateSold: "2024-01-01", Price: 250, Currency: "EUR", Cond: "Used"},
		{DateSold: "2024-01-02", Price: 240, Currency: "EUR", Cond: "Used"},
		{DateSold: "2024-01-03", Price: 260, Currency: "EUR", Cond: "Used"},
	},
}

type testRig struct {
	store   *database.SQLite
	market  *fakeMarket
	channel *fakeChannel
	monitor *Monitor
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	dir := t.TempDir()

	store, err := database.NewSQLite(filepath.Join(dir, "monitor_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	credsPath := filepath.Join(dir, "credentials.json")
	if err := secrets.Save(credsPath, secrets.Credentials{Username: "gearhead", Password: "correct-horse"}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	// An empty quiet window keeps delivery independent of the wall clock.
	ctx := context.Background()
	if err := store.SetPreference(ctx, database.PrefQuietStart, "00:00"); err != nil {
		t.Fatalf("preference: %v", err)
	}
	if err := store.SetPreference(ctx, database.PrefQuietEnd, "00:00"); err != nil {
		t.Fatalf("preference: %v", err)
	}

	market := &fakeMarket{
		pages:   map[string][]models.ListingRecord{},
		details: map[string]models.ListingDetail{},
	}
	channel := &fakeChannel{}

	m := New(store, market,
		analyzer.New(store, 15),
		notify.NewDispatcher(store, channel),
		Options{
			CredentialsPath:   credsPath,
			Regions:           "EU",
			RequestsPerSecond: 1000,
		},
	)
	return &testRig{store: store, market: market, channel: channel, monitor: m}
}

func TestRunCycleEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	moduleID, err := rig.store.UpsertModule(ctx, models.Module{
		ExternalID:   "4034",
		Name:         "Maths",
		Manufacturer: "Make Noise",
	})
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	if err := rig.store.UpsertWatch(ctx, moduleID, 15, 0, "EUR"); err != nil {
		t.Fatalf("watch: %v", err)
	}

	deal := offerRecord("2001", "4034", 200)
	fair := offerRecord("2002", "4034", 245)
	rig.market.pages["EU"] = []models.ListingRecord{deal, fair}
	rig.market.details[deal.URL] = soldHistory
	rig.market.details[fair.URL] = soldHistory

	result, err := rig.monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if result.Listings != 2 || result.Deals != 1 || result.Notified != 1 {
		t.Fatalf("result = %+v, want 2 listings, 1 deal, 1 notified", result)
	}

	if rig.market.gotUser != "gearhead" || rig.market.gotPass != "correct-horse" {
		t.Errorf("authenticated as %s/%s", rig.market.gotUser, rig.market.gotPass)
	}
	if len(rig.channel.sent) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(rig.channel.sent))
	}
	if msg := rig.channel.sent[0]; !strings.Contains(msg, "Make Noise Maths") || !strings.Contains(msg, "€200.00") {
		t.Errorf("alert text: %q", msg)
	}

	// The progress feed reported the scan.
	stages := map[State]bool{}
	sawEU := false
	for drained := false; !drained; {
		select {
		case e := <-rig.monitor.Events():
			stages[e.Stage] = true
			if e.Region == "EU" {
				sawEU = true
			}
		default:
			drained = true
		}
	}
	if !stages[StateScanning] || !stages[StateNotifying] || !sawEU {
		t.Errorf("event feed incomplete: %v, sawEU=%v", stages, sawEU)
	}

	// Cycle two: the fair-priced offer is gone, and the alert must not
	// repeat for the deal that is still listed.
	rig.market.pages["EU"] = []models.ListingRecord{deal}

	result, err = rig.monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if result.Listings != 1 {
		t.Errorf("second cycle listings = %d, want 1", result.Listings)
	}
	if result.Deals != 1 {
		t.Errorf("second cycle deals = %d, want the same deal re-detected", result.Deals)
	}
	if result.Notified != 0 {
		t.Errorf("deal notified twice")
	}
	if len(rig.channel.sent) != 1 {
		t.Errorf("sent %d alerts after two cycles, want 1", len(rig.channel.sent))
	}

	gone, err := rig.store.GetListing(ctx, "2002")
	if err != nil {
		t.Fatalf("get 2002: %v", err)
	}
	if gone.Active {
		t.Errorf("vanished listing still active")
	}
	still, err := rig.store.GetListing(ctx, "2001")
	if err != nil {
		t.Fatalf("get 2001: %v", err)
	}
	if !still.Active {
		t.Errorf("listed offer was retired")
	}

	// History landed and the cached averages followed.
	m, err := rig.store.GetModuleByID(ctx, moduleID)
	if err != nil {
		t.Fatalf("get module: %v", err)
	}
	if m.AvgPriceUsed != 250 {
		t.Errorf("cached used average = %v, want 250", m.AvgPriceUsed)
	}
}

func TestRunCycleAuthFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.market.failAuth = true
	rig.market.pages["EU"] = []models.ListingRecord{offerRecord("2001", "4034", 200)}

	result, err := rig.monitor.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("expected an authentication error")
	}
	if result != (Result{}) {
		t.Errorf("counts after auth failure: %+v", result)
	}

	listings, err := rig.store.ListListings(context.Background(), false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("%d listings stored without a session", len(listings))
	}
}

func TestRunCycleMissingCredentials(t *testing.T) {
	rig := newTestRig(t)
	rig.monitor.opts.CredentialsPath = filepath.Join(t.TempDir(), "absent.json")

	_, err := rig.monitor.RunCycle(context.Background())
	if !errors.Is(err, secrets.ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestRunCycleSingleFlight(t *testing.T) {
	rig := newTestRig(t)

	rig.monitor.runMu.Lock()
	_, err := rig.monitor.RunCycle(context.Background())
	rig.monitor.runMu.Unlock()

	if !errors.Is(err, ErrScanInFlight) {
		t.Fatalf("err = %v, want ErrScanInFlight", err)
	}
}

func TestExpandRegions(t *testing.T) {
	tests := []struct {
		pref string
		want []string
	}{
		{"All", AllRegions},
		{"all", AllRegions},
		{"", AllRegions},
		{"EU", []string{"EU"}},
		{"EU, USA", []string{"EU", "USA"}},
		{" , ", AllRegions},
	}
	for _, tt := range tests {
		got := expandRegions(tt.pref)
		if len(got) != len(tt.want) {
			t.Errorf("expandRegions(%q) = %v, want %v", tt.pref, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("expandRegions(%q)[%d] = %q, want %q", tt.pref, i, got[i], tt.want[i])
			}
		}
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	rig := newTestRig(t)
	rig.market.pages["EU"] = []models.ListingRecord{offerRecord("2001", "4034", 200)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rig.monitor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIdle(t, rig.monitor, 5*time.Second)

	listings, err := rig.store.ListListings(context.Background(), false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("immediate cycle stored %d listings, want 1", len(listings))
	}

	cancel()
	rig.monitor.Stop()
	if got := rig.monitor.State(); got != StateStopped {
		t.Errorf("state after stop = %s, want %s", got, StateStopped)
	}
}

// waitForIdle drains the progress feed until the cycle reports idle.
func waitForIdle(t *testing.T, m *Monitor, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-m.Events():
			if e.Stage == StateIdle {
				return
			}
		case <-deadline:
			t.Fatalf("cycle did not finish within %v", timeout)
		}
	}
}
