package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gridwatch/internal/models"
	"gridwatch/logger"
)

// Text and numeric columns default to '' and 0 instead of NULL so rows
// scan straight into the model structs.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS modules (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		manufacturer TEXT NOT NULL DEFAULT '',
		hp INTEGER NOT NULL DEFAULT 0,
		module_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		avg_price_new DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_price_used DOUBLE PRECISION NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		module_id BIGINT NOT NULL REFERENCES modules(id),
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		seller TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		condition TEXT NOT NULL DEFAULT '',
		date_listed TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_checked TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		module_id BIGINT NOT NULL REFERENCES modules(id),
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		date_sold TEXT NOT NULL DEFAULT '',
		condition TEXT NOT NULL DEFAULT '',
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS watchlist (
		id BIGSERIAL PRIMARY KEY,
		module_id BIGINT NOT NULL UNIQUE REFERENCES modules(id),
		price_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		notify BOOLEAN NOT NULL DEFAULT TRUE,
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id BIGSERIAL PRIMARY KEY,
		listing_id BIGINT NOT NULL UNIQUE REFERENCES listings(id),
		avg_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_diff DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent_below DOUBLE PRECISION NOT NULL DEFAULT 0,
		trigger_kind TEXT NOT NULL DEFAULT '',
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		listings INTEGER NOT NULL DEFAULT 0,
		deals INTEGER NOT NULL DEFAULT 0,
		notified INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	)`,
	`ALTER TABLE modules ADD COLUMN IF NOT EXISTS avg_price_new DOUBLE PRECISION NOT NULL DEFAULT 0`,
	`ALTER TABLE modules ADD COLUMN IF NOT EXISTS avg_price_used DOUBLE PRECISION NOT NULL DEFAULT 0`,
	`ALTER TABLE deals ADD COLUMN IF NOT EXISTS trigger_kind TEXT NOT NULL DEFAULT ''`,
}

// Postgres is the pgx-backed Store implementation for shared deployments.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL, verifies the connection and applies
// the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	for _, stmt := range pgSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	logger.WithComponent("database").Info("postgres store ready")
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// ── Modules ─────────────────────────────────────────────────────────────

// UpsertModule inserts the module on first sighting and refreshes only the
// non-empty incoming fields afterwards.
func (p *Postgres) UpsertModule(ctx context.Context, m models.Module) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO modules (external_id, name, manufacturer, hp, module_type, description, url, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (external_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), modules.name),
			manufacturer = COALESCE(NULLIF(EXCLUDED.manufacturer, ''), modules.manufacturer),
			hp = CASE WHEN EXCLUDED.hp > 0 THEN EXCLUDED.hp ELSE modules.hp END,
			module_type = COALESCE(NULLIF(EXCLUDED.module_type, ''), modules.module_type),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), modules.description),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), modules.url),
			last_updated = NOW()
		 RETURNING id`,
		m.ExternalID, m.Name, m.Manufacturer, m.HP, m.ModuleType, m.Description, m.URL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert module %s: %w", m.ExternalID, err)
	}
	return id, nil
}

// GetModule looks a module up by its external id.
func (p *Postgres) GetModule(ctx context.Context, externalID string) (*models.Module, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+moduleColumns+" FROM modules WHERE external_id = $1", externalID)
	return pgScanModulePtr(row)
}

// GetModuleByID looks a module up by its database id.
func (p *Postgres) GetModuleByID(ctx context.Context, id int64) (*models.Module, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+moduleColumns+" FROM modules WHERE id = $1", id)
	return pgScanModulePtr(row)
}

// ListModules returns every known module.
func (p *Postgres) ListModules(ctx context.Context) ([]models.Module, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+moduleColumns+" FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		m, err := pgScanModule(rows)
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
func (p *Postgres) UpsertListing(ctx context.Context, l models.Listing) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO listings (external_id, module_id, price, currency, seller, region, condition, date_listed, url, active, last_checked)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, NOW())
		 ON CONFLICT (external_id) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			seller = EXCLUDED.seller,
			region = EXCLUDED.region,
			condition = EXCLUDED.condition,
			date_listed = EXCLUDED.date_listed,
			url = EXCLUDED.url,
			active = TRUE,
			last_checked = NOW()
		 RETURNING id`,
		l.ExternalID, l.ModuleID, l.Price, l.Currency, l.Seller, l.Region, l.Condition, l.DateListed, l.URL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert listing %s: %w", l.ExternalID, err)
	}
	return id, nil
}

// GetListing looks a listing up by its external id.
func (p *Postgres) GetListing(ctx context.Context, externalID string) (*models.Listing, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+listingColumns+" FROM listings WHERE external_id = $1", externalID)
	l, err := pgScanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns listings, optionally only active ones.
func (p *Postgres) ListListings(ctx context.Context, activeOnly bool) ([]models.Listing, error) {
	query := "SELECT " + listingColumns + " FROM listings"
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY id"

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return pgCollectListings(rows)
}

// WatchedActiveListings returns the active listings of watched modules in
// insertion order.
func (p *Postgres) WatchedActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+prefixedListingColumns("l")+`
		 FROM listings l
		 JOIN watchlist w ON w.module_id = l.module_id
		 WHERE l.active AND w.notify
		 ORDER BY l.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("watched listings: %w", err)
	}
	defer rows.Close()
	return pgCollectListings(rows)
}

// ActiveListingURL returns the URL of any one active listing of a module,
// used to reach the module's detail page for history.
func (p *Postgres) ActiveListingURL(ctx context.Context, moduleID int64) (string, error) {
	var url string
	err := p.pool.QueryRow(ctx,
		"SELECT url FROM listings WHERE module_id = $1 AND active LIMIT 1", moduleID,
	).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("active listing url: %w", err)
	}
	if url == "" {
		return "", ErrNotFound
	}
	return url, nil
}

// SweepInactive deactivates every active listing not seen by a complete,
// error-free scan. A failed scan must not deactivate anything.
func (p *Postgres) SweepInactive(ctx context.Context, seenIDs []string, scanSucceeded bool) (int64, error) {
	if !scanSucceeded {
		return 0, nil
	}

	query := "UPDATE listings SET active = FALSE WHERE active"
	args := []any{}
	if len(seenIDs) > 0 {
		query += " AND NOT (external_id = ANY($1))"
		args = append(args, seenIDs)
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep inactive listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── Price history ───────────────────────────────────────────────────────

// AppendPriceHistory records one historical sale. A duplicate composite
// key is a successful no-op returning the existing row id.
func (p *Postgres) AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		"SELECT id FROM price_history WHERE module_id = $1 AND price = $2 AND currency = $3 AND date_sold = $4",
		e.ModuleID, e.Price, e.Currency, e.DateSold,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup price history: %w", err)
	}

	err = p.pool.QueryRow(ctx,
		"INSERT INTO price_history (module_id, price, currency, date_sold, condition) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		e.ModuleID, e.Price, e.Currency, e.DateSold, e.Cond,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert price history: %w", err)
	}
	return id, nil
}

// ModuleAverages computes the per-bucket reference averages for one module
// from its history. Zero prices are treated as missing data.
func (p *Postgres) ModuleAverages(ctx context.Context, moduleID int64) (Averages, error) {
	var a Averages
	err := p.pool.QueryRow(ctx,
		`SELECT
			COALESCE(AVG(CASE WHEN lower(condition) LIKE 'new%' THEN price END), 0),
			COUNT(CASE WHEN lower(condition) LIKE 'new%' THEN price END),
			COALESCE(AVG(CASE WHEN lower(condition) LIKE 'new%' THEN NULL ELSE price END), 0),
			COUNT(CASE WHEN lower(condition) LIKE 'new%' THEN NULL ELSE price END),
			COALESCE(AVG(price), 0),
			COUNT(price)
		 FROM price_history
		 WHERE module_id = $1 AND price > 0`,
		moduleID,
	).Scan(&a.New, &a.NewCount, &a.Used, &a.UsedCount, &a.Overall, &a.OverallCount)
	if err != nil {
		return Averages{}, fmt.Errorf("module averages: %w", err)
	}
	return a, nil
}

// RefreshModuleAverages rewrites the module's cached bucket averages from
// its accumulated history.
func (p *Postgres) RefreshModuleAverages(ctx context.Context, moduleID int64) error {
	a, err := p.ModuleAverages(ctx, moduleID)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		"UPDATE modules SET avg_price_new = $1, avg_price_used = $2, last_updated = NOW() WHERE id = $3",
		a.New, a.Used, moduleID,
	)
	if err != nil {
		return fmt.Errorf("refresh module averages: %w", err)
	}
	return nil
}

// ── Watchlist ───────────────────────────────────────────────────────────

// UpsertWatch adds a module to the watchlist or updates its thresholds.
func (p *Postgres) UpsertWatch(ctx context.Context, moduleID int64, threshold, maxPrice float64, currency string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO watchlist (module_id, price_threshold, max_price, currency, notify)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (module_id) DO UPDATE SET price_threshold = EXCLUDED.price_threshold, max_price = EXCLUDED.max_price, currency = EXCLUDED.currency`,
		moduleID, threshold, maxPrice, currency,
	)
	if err != nil {
		return fmt.Errorf("upsert watch: %w", err)
	}
	return nil
}

// RemoveWatch drops a module from the watchlist.
func (p *Postgres) RemoveWatch(ctx context.Context, moduleID int64) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM watchlist WHERE module_id = $1", moduleID)
	if err != nil {
		return fmt.Errorf("remove watch: %w", err)
	}
	return nil
}

// ListWatch returns every watchlist entry.
func (p *Postgres) ListWatch(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, module_id, price_threshold, max_price, currency, notify, added_at FROM watchlist ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var w models.WatchlistEntry
		if err := rows.Scan(&w.ID, &w.ModuleID, &w.PriceThreshold, &w.MaxPrice, &w.Currency, &w.Notify, &w.AddedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}

// ── Deals ───────────────────────────────────────────────────────────────

// RecordDeal stores a deal for a listing. A listing carries at most one
// deal; re-recording returns the existing id untouched.
func (p *Postgres) RecordDeal(ctx context.Context, d models.Deal) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO deals (listing_id, avg_price, price_diff, percent_below, trigger_kind)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (listing_id) DO NOTHING
		 RETURNING id`,
		d.ListingID, d.AvgPrice, d.PriceDiff, d.PercentBelow, d.Trigger,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the listing already carries a deal.
		err = p.pool.QueryRow(ctx, "SELECT id FROM deals WHERE listing_id = $1", d.ListingID).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("record deal: %w", err)
	}
	return id, nil
}

// GetDeal looks a deal up by id.
func (p *Postgres) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = $1", id)
	d, err := pgScanDeal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeals returns deals, optionally only ones not yet notified.
func (p *Postgres) ListDeals(ctx context.Context, onlyUnnotified bool) ([]models.Deal, error) {
	query := "SELECT " + dealColumns + " FROM deals"
	if onlyUnnotified {
		query += " WHERE NOT notified"
	}
	query += " ORDER BY id"

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := pgScanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// MarkDealNotified flips the write-once notified flag. Calling it again is
// a no-op.
func (p *Postgres) MarkDealNotified(ctx context.Context, dealID int64) error {
	_, err := p.pool.Exec(ctx, "UPDATE deals SET notified = TRUE WHERE id = $1", dealID)
	if err != nil {
		return fmt.Errorf("mark deal notified: %w", err)
	}
	return nil
}

// MarkDealsNotified marks a digest's deals in one statement so the batch
// is all-or-nothing.
func (p *Postgres) MarkDealsNotified(ctx context.Context, dealIDs []int64) error {
	if len(dealIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, "UPDATE deals SET notified = TRUE WHERE id = ANY($1)", dealIDs)
	if err != nil {
		return fmt.Errorf("mark deals notified: %w", err)
	}
	return nil
}

// ── Preferences ─────────────────────────────────────────────────────────

// GetPreference returns the stored value or the fallback when the key was
// never written.
func (p *Postgres) GetPreference(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, "SELECT value FROM preferences WHERE name = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

// SetPreference writes one key.
func (p *Postgres) SetPreference(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO preferences (name, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// SeedPreferences writes only keys that do not exist yet, leaving user
// edits alone.
func (p *Postgres) SeedPreferences(ctx context.Context, defaults map[string]string) error {
	for key, value := range defaults {
		_, err := p.pool.Exec(ctx,
			"INSERT INTO preferences (name, value) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
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
func (p *Postgres) StartScanRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := p.pool.Exec(ctx, "INSERT INTO scan_runs (id, status) VALUES ($1, $2)", id, models.RunRunning)
	if err != nil {
		return "", fmt.Errorf("start scan run: %w", err)
	}
	return id, nil
}

// FinishScanRun closes a run record with its final status and counts.
func (p *Postgres) FinishScanRun(ctx context.Context, run models.ScanRun) error {
	_, err := p.pool.Exec(ctx,
		"UPDATE scan_runs SET status = $1, listings = $2, deals = $3, notified = $4, error = $5, finished_at = NOW() WHERE id = $6",
		run.Status, run.Listings, run.Deals, run.Notified, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	return nil
}

// ── Row scanning ────────────────────────────────────────────────────────

func pgScanModule(row rowScanner) (models.Module, error) {
	var m models.Module
	err := row.Scan(&m.ID, &m.ExternalID, &m.Name, &m.Manufacturer, &m.HP, &m.ModuleType, &m.Description,
		&m.AvgPriceNew, &m.AvgPriceUsed, &m.URL, &m.LastUpdated, &m.CreatedAt)
	if err != nil {
		return models.Module{}, err
	}
	return m, nil
}

func pgScanModulePtr(row rowScanner) (*models.Module, error) {
	m, err := pgScanModule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan module: %w", err)
	}
	return &m, nil
}

func pgScanListing(row rowScanner) (models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.ExternalID, &l.ModuleID, &l.Price, &l.Currency, &l.Seller, &l.Region,
		&l.Condition, &l.DateListed, &l.URL, &l.Active, &l.LastChecked, &l.CreatedAt)
	if err != nil {
		return models.Listing{}, err
	}
	return l, nil
}

func pgCollectListings(rows pgx.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		l, err := pgScanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func pgScanDeal(row rowScanner) (models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.ListingID, &d.AvgPrice, &d.PriceDiff, &d.PercentBelow, &d.Trigger, &d.Notified, &d.DetectedAt)
	if err != nil {
		return models.Deal{}, err
	}
	return d, nil
}
