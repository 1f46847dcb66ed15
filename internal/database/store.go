package database

import (
	"context"
	"errors"

	"gridwatch/internal/models"
)

// ErrNotFound is returned by lookups that matched no row, regardless of
// the backing driver.
var ErrNotFound = errors.New("not found")

// Preference keys understood by the pipeline. The preference table is the
// single source of truth for runtime settings; bootstrap config only seeds
// missing keys.
const (
	PrefScanInterval = "scan_interval"
	PrefRegions      = "regions"
	PrefThreshold    = "default_threshold"
	PrefFrequency    = "notification_frequency"
	PrefQuietStart   = "quiet_hours_start"
	PrefQuietEnd     = "quiet_hours_end"

	PrefTelegramEnabled = "telegram_enabled"
	PrefEmailEnabled    = "email_enabled"
	PrefEmailFrom       = "email_from"
	PrefEmailTo         = "email_to"
	PrefSMTPHost        = "smtp_host"
	PrefSMTPPort        = "smtp_port"
	PrefSMTPUsername    = "smtp_username"
	PrefSMTPPassword    = "smtp_password"
)

// Averages is the per-bucket price reference for one module, computed from
// accumulated history with zero prices excluded.
type Averages struct {
	New          float64
	NewCount     int
	Used         float64
	UsedCount    int
	Overall      float64
	OverallCount int
}

// Store is the persistence contract of the pipeline. Any backing database
// implements it; every operation is transactional per call.
type Store interface {
	// Modules.
	UpsertModule(ctx context.Context, m models.Module) (int64, error)
	GetModule(ctx context.Context, externalID string) (*models.Module, error)
	GetModuleByID(ctx context.Context, id int64) (*models.Module, error)
	ListModules(ctx context.Context) ([]models.Module, error)

	// Listings and their active lifecycle.
	UpsertListing(ctx context.Context, l models.Listing) (int64, error)
	GetListing(ctx context.Context, externalID string) (*models.Listing, error)
	ListListings(ctx context.Context, activeOnly bool) ([]models.Listing, error)
	WatchedActiveListings(ctx context.Context) ([]models.Listing, error)
	ActiveListingURL(ctx context.Context, moduleID int64) (string, error)
	SweepInactive(ctx context.Context, seenIDs []string, scanSucceeded bool) (int64, error)

	// Price history.
	AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) (int64, error)
	ModuleAverages(ctx context.Context, moduleID int64) (Averages, error)
	RefreshModuleAverages(ctx context.Context, moduleID int64) error

	// Watchlist.
	UpsertWatch(ctx context.Context, moduleID int64, threshold, maxPrice float64, currency string) error
	RemoveWatch(ctx context.Context, moduleID int64) error
	ListWatch(ctx context.Context) ([]models.WatchlistEntry, error)

	// Deals.
	RecordDeal(ctx context.Context, d models.Deal) (int64, error)
	GetDeal(ctx context.Context, id int64) (*models.Deal, error)
	ListDeals(ctx context.Context, onlyUnnotified bool) ([]models.Deal, error)
	MarkDealNotified(ctx context.Context, dealID int64) error
	MarkDealsNotified(ctx context.Context, dealIDs []int64) error

	// Preferences.
	GetPreference(ctx context.Context, key, fallback string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
	SeedPreferences(ctx context.Context, defaults map[string]string) error

	// Scan runs.
	StartScanRun(ctx context.Context) (string, error)
	FinishScanRun(ctx context.Context, run models.ScanRun) error

	Close() error
}
