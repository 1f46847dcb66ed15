package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"gridwatch/internal/models"
	"gridwatch/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS modules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	name TEXT,
	manufacturer TEXT,
	hp INTEGER,
	module_type TEXT,
	description TEXT,
	avg_price_new REAL,
	avg_price_used REAL,
	url TEXT,
	last_updated DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	module_id INTEGER NOT NULL REFERENCES modules(id),
	price REAL,
	currency TEXT,
	seller TEXT,
	region TEXT,
	condition TEXT,
	date_listed TEXT,
	url TEXT,
	active BOOLEAN DEFAULT 1,
	last_checked DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	module_id INTEGER NOT NULL REFERENCES modules(id),
	price REAL,
	currency TEXT,
	date_sold TEXT,
	condition TEXT,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS watchlist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	module_id INTEGER NOT NULL UNIQUE REFERENCES modules(id),
	price_threshold REAL,
	max_price REAL,
	currency TEXT,
	notify BOOLEAN DEFAULT 1,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id INTEGER NOT NULL UNIQUE REFERENCES listings(id),
	avg_price REAL,
	price_diff REAL,
	percent_below REAL,
	trigger_kind TEXT,
	notified BOOLEAN DEFAULT 0,
	detected_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS preferences (
	name TEXT PRIMARY KEY,
	value TEXT,
	updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS scan_runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	listings INTEGER DEFAULT 0,
	deals INTEGER DEFAULT 0,
	notified INTEGER DEFAULT 0,
	error TEXT,
	started_at DATETIME,
	finished_at DATETIME
);
`

const (
	moduleColumns  = "id, external_id, name, manufacturer, hp, module_type, description, avg_price_new, avg_price_used, url, last_updated, created_at"
	listingColumns = "id, external_id, module_id, price, currency, seller, region, condition, date_listed, url, active, last_checked, created_at"
	dealColumns    = "id, listing_id, avg_price, price_diff, percent_below, trigger_kind, notified, detected_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLite is the embedded Store implementation, the default backend.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite opens the database at path, creating it and its schema when
// absent.
func NewSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &SQLite{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("database").WithField("path", path).Info("sqlite store ready")
	return s, nil
}

// Close releases the underlying connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) init() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Columns added after the first release. SQLite has no IF NOT EXISTS
	// for ALTER TABLE, so the errors are ignored.
	_, _ = s.conn.Exec("ALTER TABLE modules ADD COLUMN avg_price_new REAL")
	_, _ = s.conn.Exec("ALTER TABLE modules ADD COLUMN avg_price_used REAL")
	_, _ = s.conn.Exec("ALTER TABLE deals ADD COLUMN trigger_kind TEXT")

	return nil
}

// ── Modules ─────────────────────────────────────────────────────────────

// UpsertModule inserts the module on first sighting and refreshes only the
// non-empty incoming fields afterwards.
func (s *SQLite) UpsertModule(ctx context.Context, m models.Module) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, "SELECT id FROM modules WHERE external_id = ?", m.ExternalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO modules (external_id, name, manufacturer, hp, module_type, description, url, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			m.ExternalID, m.Name, m.Manufacturer, m.HP, m.ModuleType, m.Description, m.URL,
		)
		if err != nil {
			return 0, fmt.Errorf("insert module %s: %w", m.ExternalID, err)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("lookup module %s: %w", m.ExternalID, err)
	}

	sets := []string{"last_updated = CURRENT_TIMESTAMP"}
	args := []any{}
	if m.Name != "" {
		sets = append(sets, "name = ?")
		args = append(args, m.Name)
	}
	if m.Manufacturer != "" {
		sets = append(sets, "manufacturer = ?")
		args = append(args, m.Manufacturer)
	}
	if m.HP > 0 {
		sets = append(sets, "hp = ?")
		args = append(args, m.HP)
	}
	if m.ModuleType != "" {
		sets = append(sets, "module_type = ?")
		args = append(args, m.ModuleType)
	}
	if m.Description != "" {
		sets = append(sets, "description = ?")
		args = append(args, m.Description)
	}
	if m.URL != "" {
		sets = append(sets, "url = ?")
		args = append(args, m.URL)
	}
	args = append(args, id)

	if _, err := s.conn.ExecContext(ctx, "UPDATE modules SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return 0, fmt.Errorf("update module %s: %w", m.ExternalID, err)
	}
	return id, nil
}

// GetModule looks a module up by its external id.
func (s *SQLite) GetModule(ctx context.Context, externalID string) (*models.Module, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+moduleColumns+" FROM modules WHERE external_id = ?", externalID)
	return scanModulePtr(row)
}

// GetModuleByID looks a module up by its database id.
func (s *SQLite) GetModuleByID(ctx context.Context, id int64) (*models.Module, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+moduleColumns+" FROM modules WHERE id = ?", id)
	return scanModulePtr(row)
}

// ListModules returns every known module.
func (s *SQLite) ListModules(ctx context.Context) ([]models.Module, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT "+moduleColumns+" FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// ── Listings ────────────────────────────────────────────────────────────

// UpsertListing inserts the listing on first observation. Re-observation
// always refreshes price, condition, seller, region, URL and last-checked,
// and reactivates the listing.
func (s *SQLite) UpsertListing(ctx context.Context, l models.Listing) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, "SELECT id FROM listings WHERE external_id = ?", l.ExternalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO listings (external_id, module_id, price, currency, seller, region, condition, date_listed, url, active, last_checked)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
			l.ExternalID, l.ModuleID, l.Price, l.Currency, l.Seller, l.Region, l.Condition, l.DateListed, l.URL,
		)
		if err != nil {
			return 0, fmt.Errorf("insert listing %s: %w", l.ExternalID, err)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("lookup listing %s: %w", l.ExternalID, err)
	}

	_, err = s.conn.ExecContext(ctx,
		`UPDATE listings
		 SET price = ?, currency = ?, seller = ?, region = ?, condition = ?, date_listed = ?, url = ?, active = 1, last_checked = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		l.Price, l.Currency, l.Seller, l.Region, l.Condition, l.DateListed, l.URL, id,
	)
	if err != nil {
		return 0, fmt.Errorf("update listing %s: %w", l.ExternalID, err)
	}
	return id, nil
}

// GetListing looks a listing up by its external id.
func (s *SQLite) GetListing(ctx context.Context, externalID string) (*models.Listing, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM listings WHERE external_id = ?", externalID)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns listings, optionally only active ones.
func (s *SQLite) ListListings(ctx context.Context, activeOnly bool) ([]models.Listing, error) {
	query := "SELECT " + listingColumns + " FROM listings"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// WatchedActiveListings returns the active listings of watched modules in
// insertion order.
func (s *SQLite) WatchedActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+prefixedListingColumns("l")+`
		 FROM listings l
		 JOIN watchlist w ON w.module_id = l.module_id
		 WHERE l.active = 1 AND w.notify = 1
		 ORDER BY l.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("watched listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// ActiveListingURL returns the URL of any one active listing of a module,
// used to reach the module's detail page for history.
func (s *SQLite) ActiveListingURL(ctx context.Context, moduleID int64) (string, error) {
	var url sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT url FROM listings WHERE module_id = ? AND active = 1 LIMIT 1", moduleID,
	).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !url.Valid) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("active listing url: %w", err)
	}
	return url.String, nil
}

// SweepInactive deactivates every active listing not seen by a complete,
// error-free scan. A failed scan must not deactivate anything.
func (s *SQLite) SweepInactive(ctx context.Context, seenIDs []string, scanSucceeded bool) (int64, error) {
	if !scanSucceeded {
		return 0, nil
	}

	query := "UPDATE listings SET active = 0 WHERE active = 1"
	args := make([]any, 0, len(seenIDs))
	if len(seenIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seenIDs)), ",")
		query += " AND external_id NOT IN (" + placeholders + ")"
		for _, id := range seenIDs {
			args = append(args, id)
		}
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep inactive listings: %w", err)
	}
	return res.RowsAffected()
}

// ── Price history ───────────────────────────────────────────────────────

// AppendPriceHistory records one historical sale. A duplicate composite
// key is a successful no-op returning the existing row id.
func (s *SQLite) AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT id FROM price_history WHERE module_id = ? AND price = ? AND currency = ? AND date_sold = ?",
		e.ModuleID, e.Price, e.Currency, e.DateSold,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup price history: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO price_history (module_id, price, currency, date_sold, condition, added_at) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		e.ModuleID, e.Price, e.Currency, e.DateSold, e.Cond,
	)
	if err != nil {
		return 0, fmt.Errorf("insert price history: %w", err)
	}
	return res.LastInsertId()
}

// ModuleAverages computes the per-bucket reference averages for one module
// from its history. Zero prices are treated as missing data.
func (s *SQLite) ModuleAverages(ctx context.Context, moduleID int64) (Averages, error) {
	var a Averages
	err := s.conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(AVG(CASE WHEN lower(condition) LIKE 'new%' THEN price END), 0),
			COUNT(CASE WHEN lower(condition) LIKE 'new%' THEN price END),
			COALESCE(AVG(CASE WHEN lower(condition) LIKE 'new%' THEN NULL ELSE price END), 0),
			COUNT(CASE WHEN lower(condition) LIKE 'new%' THEN NULL ELSE price END),
			COALESCE(AVG(price), 0),
			COUNT(price)
		 FROM price_history
		 WHERE module_id = ? AND price > 0`,
		moduleID,
	).Scan(&a.New, &a.NewCount, &a.Used, &a.UsedCount, &a.Overall, &a.OverallCount)
	if err != nil {
		return Averages{}, fmt.Errorf("module averages: %w", err)
	}
	return a, nil
}

// RefreshModuleAverages rewrites the module's cached bucket averages from
// its accumulated history.
func (s *SQLite) RefreshModuleAverages(ctx context.Context, moduleID int64) error {
	a, err := s.ModuleAverages(ctx, moduleID)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		"UPDATE modules SET avg_price_new = ?, avg_price_used = ?, last_updated = CURRENT_TIMESTAMP WHERE id = ?",
		a.New, a.Used, moduleID,
	)
	if err != nil {
		return fmt.Errorf("refresh module averages: %w", err)
	}
	return nil
}

// ── Watchlist ───────────────────────────────────────────────────────────

// UpsertWatch adds a module to the watchlist or updates its thresholds.
func (s *SQLite) UpsertWatch(ctx context.Context, moduleID int64, threshold, maxPrice float64, currency string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO watchlist (module_id, price_threshold, max_price, currency, notify, added_at)
		 VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(module_id) DO UPDATE SET price_threshold = excluded.price_threshold, max_price = excluded.max_price, currency = excluded.currency`,
		moduleID, threshold, maxPrice, currency,
	)
	if err != nil {
		return fmt.Errorf("upsert watch: %w", err)
	}
	return nil
}

// RemoveWatch drops a module from the watchlist.
func (s *SQLite) RemoveWatch(ctx context.Context, moduleID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM watchlist WHERE module_id = ?", moduleID)
	if err != nil {
		return fmt.Errorf("remove watch: %w", err)
	}
	return nil
}

// ListWatch returns every watchlist entry.
func (s *SQLite) ListWatch(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, module_id, price_threshold, max_price, currency, notify, added_at FROM watchlist ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var w models.WatchlistEntry
		var threshold, maxPrice sql.NullFloat64
		var currency sql.NullString
		var addedAt sql.NullTime
		if err := rows.Scan(&w.ID, &w.ModuleID, &threshold, &maxPrice, &currency, &w.Notify, &addedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		w.PriceThreshold = threshold.Float64
		w.MaxPrice = maxPrice.Float64
		w.Currency = currency.String
		if addedAt.Valid {
			w.AddedAt = addedAt.Time
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}

// ── Deals ───────────────────────────────────────────────────────────────

// RecordDeal stores a deal for a listing. A listing carries at most one
// deal; re-recording returns the existing id untouched.
func (s *SQLite) RecordDeal(ctx context.Context, d models.Deal) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, "SELECT id FROM deals WHERE listing_id = ?", d.ListingID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup deal: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO deals (listing_id, avg_price, price_diff, percent_below, trigger_kind, notified, detected_at) VALUES (?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)",
		d.ListingID, d.AvgPrice, d.PriceDiff, d.PercentBelow, d.Trigger,
	)
	if err != nil {
		return 0, fmt.Errorf("insert deal: %w", err)
	}
	return res.LastInsertId()
}

// GetDeal looks a deal up by id.
func (s *SQLite) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = ?", id)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeals returns deals, optionally only ones not yet notified.
func (s *SQLite) ListDeals(ctx context.Context, onlyUnnotified bool) ([]models.Deal, error) {
	query := "SELECT " + dealColumns + " FROM deals"
	if onlyUnnotified {
		query += " WHERE notified = 0"
	}
	query += " ORDER BY id"

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// MarkDealNotified flips the write-once notified flag. Calling it again is
// a no-op.
func (s *SQLite) MarkDealNotified(ctx context.Context, dealID int64) error {
	_, err := s.conn.ExecContext(ctx, "UPDATE deals SET notified = 1 WHERE id = ?", dealID)
	if err != nil {
		return fmt.Errorf("mark deal notified: %w", err)
	}
	return nil
}

// MarkDealsNotified marks a digest's deals in one statement so the batch
// is all-or-nothing.
func (s *SQLite) MarkDealsNotified(ctx context.Context, dealIDs []int64) error {
	if len(dealIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dealIDs)), ",")
	args := make([]any, len(dealIDs))
	for i, id := range dealIDs {
		args[i] = id
	}
	_, err := s.conn.ExecContext(ctx, "UPDATE deals SET notified = 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("mark deals notified: %w", err)
	}
	return nil
}

// ── Preferences ─────────────────────────────────────────────────────────

// GetPreference returns the stored value or the fallback when the key was
// never written.
func (s *SQLite) GetPreference(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM preferences WHERE name = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

// SetPreference writes one key.
func (s *SQLite) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO preferences (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// SeedPreferences writes only keys that do not exist yet, leaving user
// edits alone.
func (s *SQLite) SeedPreferences(ctx context.Context, defaults map[string]string) error {
	for key, value := range defaults {
		_, err := s.conn.ExecContext(ctx,
			"INSERT OR IGNORE INTO preferences (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
			key, value,
		)
		if err != nil {
			return fmt.Errorf("seed preference %s: %w", key, err)
		}
	}
	return nil
}

// ── Scan runs ───────────────────────────────────────────────────────────

// StartScanRun opens a run record and returns its id.
func (s *SQLite) StartScanRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO scan_runs (id, status, started_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		id, models.RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("start scan run: %w", err)
	}
	return id, nil
}

// FinishScanRun closes a run record with its final status and counts.
func (s *SQLite) FinishScanRun(ctx context.Context, run models.ScanRun) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE scan_runs SET status = ?, listings = ?, deals = ?, notified = ?, error = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?",
		run.Status, run.Listings, run.Deals, run.Notified, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	return nil
}

// ── Row scanning ────────────────────────────────────────────────────────

func scanModule(row rowScanner) (models.Module, error) {
	var m models.Module
	var name, manufacturer, moduleType, description, url sql.NullString
	var hp sql.NullInt64
	var avgNew, avgUsed sql.NullFloat64
	var lastUpdated, createdAt sql.NullTime

	err := row.Scan(&m.ID, &m.ExternalID, &name, &manufacturer, &hp, &moduleType, &description, &avgNew, &avgUsed, &url, &lastUpdated, &createdAt)
	if err != nil {
		return models.Module{}, err
	}

	m.Name = name.String
	m.Manufacturer = manufacturer.String
	m.HP = int(hp.Int64)
	m.ModuleType = moduleType.String
	m.Description = description.String
	m.AvgPriceNew = avgNew.Float64
	m.AvgPriceUsed = avgUsed.Float64
	m.URL = url.String
	if lastUpdated.Valid {
		m.LastUpdated = lastUpdated.Time
	}
	if createdAt.Valid {
		m.CreatedAt = createdAt.Time
	}
	return m, nil
}

func scanModulePtr(row rowScanner) (*models.Module, error) {
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan module: %w", err)
	}
	return &m, nil
}

func scanListing(row rowScanner) (models.Listing, error) {
	var l models.Listing
	var price sql.NullFloat64
	var currency, seller, region, condition, dateListed, url sql.NullString
	var lastChecked, createdAt sql.NullTime

	err := row.Scan(&l.ID, &l.ExternalID, &l.ModuleID, &price, &currency, &seller, &region, &condition, &dateListed, &url, &l.Active, &lastChecked, &createdAt)
	if err != nil {
		return models.Listing{}, err
	}

	l.Price = price.Float64
	l.Currency = currency.String
	l.Seller = seller.String
	l.Region = region.String
	l.Condition = condition.String
	l.DateListed = dateListed.String
	l.URL = url.String
	if lastChecked.Valid {
		l.LastChecked = lastChecked.Time
	}
	if createdAt.Valid {
		l.CreatedAt = createdAt.Time
	}
	return l, nil
}

func collectListings(rows *sql.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanDeal(row rowScanner) (models.Deal, error) {
	var d models.Deal
	var avgPrice, priceDiff, percentBelow sql.NullFloat64
	var trigger sql.NullString
	var detectedAt sql.NullTime

	err := row.Scan(&d.ID, &d.ListingID, &avgPrice, &priceDiff, &percentBelow, &trigger, &d.Notified, &detectedAt)
	if err != nil {
		return models.Deal{}, err
	}

	d.AvgPrice = avgPrice.Float64
	d.PriceDiff = priceDiff.Float64
	d.PercentBelow = percentBelow.Float64
	d.Trigger = trigger.String
	if detectedAt.Valid {
		d.DetectedAt = detectedAt.Time
	}
	return d, nil
}

func prefixedListingColumns(alias string) string {
	cols := strings.Split(listingColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
