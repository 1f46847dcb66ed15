// Package monitor orchestrates the scan cycle: authenticate, walk the
// marketplace listings, refresh sold-price history, analyze watched
// modules and dispatch deal alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"gridwatch/internal/analyzer"
	"gridwatch/internal/database"
	"gridwatch/internal/models"
	"gridwatch/internal/notify"
	"gridwatch/internal/secrets"
	"gridwatch/logger"
)

// MarketClient is the slice of the scraping client the monitor drives.
type MarketClient interface {
	Authenticated() bool
	Authenticate(ctx context.Context, username, password string) error
	ListPage(ctx context.Context, region string, page int) ([]models.ListingRecord, error)
	ListingDetail(ctx context.Context, rawURL string) (models.ListingDetail, error)
}

// AllRegions is the expansion of the "All" regions preference.
var AllRegions = []string{"EU", "USA", "Canada", "Australia", "Asia", "Africa", "South America"}

// ErrScanInFlight is returned when a cycle is requested while another is
// still running.
var ErrScanInFlight = errors.New("scan already in flight")

// Result is the outcome of one cycle.
type Result struct {
	Listings int
	Deals    int
	Notified int
}

// Options carries the configured fallbacks. Values with a preference key
// in the store can be changed at runtime; the store wins.
type Options struct {
	CredentialsPath   string
	Interval          time.Duration
	Regions           string
	RequestsPerSecond float64
}

// Monitor runs scan cycles, either one-shot or on a schedule.
type Monitor struct {
	store    database.Store
	market   MarketClient
	analyzer *analyzer.Analyzer
	dispatch *notify.Dispatcher
	opts     Options

	limiter *rate.Limiter
	log     *logrus.Entry
	events  chan Event

	stateMu sync.Mutex
	state   State

	runMu sync.Mutex

	cron *cron.Cron
	wg   sync.WaitGroup
}

// New wires a Monitor from its collaborators.
func New(store database.Store, market MarketClient, an *analyzer.Analyzer, dispatch *notify.Dispatcher, opts Options) *Monitor {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Monitor{
		store:    store,
		market:   market,
		analyzer: an,
		dispatch: dispatch,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      logger.WithComponent("monitor"),
		events:   make(chan Event, 64),
		state:    StateIdle,
	}
}

// RunCycle executes one full scan and records it as a scan run. Only one
// cycle runs at a time; a concurrent caller gets ErrScanInFlight.
func (m *Monitor) RunCycle(ctx context.Context) (Result, error) {
	if !m.runMu.TryLock() {
		return Result{}, ErrScanInFlight
	}
	defer m.runMu.Unlock()

	runID, err := m.store.StartScanRun(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("start scan run: %w", err)
	}

	result, cycleErr := m.cycle(ctx)

	run := models.ScanRun{
		ID:       runID,
		Status:   models.RunCompleted,
		Listings: result.Listings,
		Deals:    result.Deals,
		Notified: result.Notified,
	}
	if cycleErr != nil {
		run.Status = models.RunFailed
		run.Error = cycleErr.Error()
	}
	if err := m.store.FinishScanRun(ctx, run); err != nil {
		m.log.WithError(err).Error("record scan run failed")
	}

	m.setState(StateIdle)
	return result, cycleErr
}

func (m *Monitor) cycle(ctx context.Context) (Result, error) {
	started := time.Now()

	if err := m.ensureAuthenticated(ctx); err != nil {
		return Result{}, err
	}

	m.setState(StateScanning)
	listings, seen, scanErr := m.scanRegions(ctx)
	if scanErr != nil && ctx.Err() != nil {
		return Result{Listings: listings}, scanErr
	}

	// Listings that vanished from the marketplace are retired, but only
	// when every region paged through cleanly.
	swept, err := m.store.SweepInactive(ctx, seen, scanErr == nil)
	if err != nil {
		m.log.WithError(err).Error("sweep failed")
	} else if swept > 0 {
		m.log.WithField("count", swept).Info("retired vanished listings")
	}

	m.setState(StateHistory)
	m.refreshHistory(ctx)

	m.setState(StateAnalyzing)
	found, err := m.analyzer.FindDeals(ctx)
	if err != nil {
		return Result{Listings: listings}, fmt.Errorf("analyze listings: %w", err)
	}
	deals := m.recordDeals(ctx, found)

	m.setState(StateNotifying)
	notified, err := m.dispatch.Dispatch(ctx, deals)
	if err != nil {
		m.log.WithError(err).Error("dispatch failed")
	}

	result := Result{Listings: listings, Deals: len(deals), Notified: notified}
	m.log.WithFields(logger.Fields{
		"listings": result.Listings,
		"deals":    result.Deals,
		"notified": result.Notified,
		"took":     time.Since(started).Round(time.Millisecond).String(),
	}).Info("scan cycle finished")
	return result, scanErr
}

// ensureAuthenticated logs the client in with the saved credentials when
// its session is not yet established.
func (m *Monitor) ensureAuthenticated(ctx context.Context) error {
	if m.market.Authenticated() {
		return nil
	}
	m.setState(StateAuthenticating)

	creds, err := secrets.Load(m.opts.CredentialsPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if err := m.market.Authenticate(ctx, creds.Username, creds.Password); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// scanRegions pages through every configured region and stores what it
// finds. It returns the stored count, the external ids seen and the first
// error, if any region failed.
func (m *Monitor) scanRegions(ctx context.Context) (int, []string, error) {
	regions := expandRegions(m.regionsPreference(ctx))

	var (
		stored   int
		seen     []string
		firstErr error
	)
	for _, region := range regions {
		n, ids, err := m.scanRegion(ctx, region)
		stored += n
		seen = append(seen, ids...)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.log.WithError(err).WithField("region", region).Error("region scan incomplete")
			if ctx.Err() != nil {
				break
			}
		}
	}
	return stored, seen, firstErr
}

// scanRegion pages through one region until an empty page marks the end.
func (m *Monitor) scanRegion(ctx context.Context, region string) (int, []string, error) {
	var (
		ids      []string
		stored   int
		firstErr error
	)
	for page := 1; ; page++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return stored, ids, err
		}
		records, err := m.market.ListPage(ctx, region, page)
		if err != nil {
			return stored, ids, fmt.Errorf("list %s page %d: %w", region, page, err)
		}
		if len(records) == 0 {
			break
		}
		m.emit(Event{Stage: StateScanning, Region: region, Page: page, Count: len(records)})

		for _, r := range records {
			if err := m.storeRecord(ctx, r, region); err != nil {
				m.log.WithError(err).WithField("listing", r.ExternalID).Error("store listing failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			ids = append(ids, r.ExternalID)
			stored++
		}
	}
	return stored, ids, firstErr
}

// storeRecord lands one offers row: module first, then the listing
// pointing at it. The row's description is the seller's condition note.
func (m *Monitor) storeRecord(ctx context.Context, r models.ListingRecord, region string) error {
	moduleID, err := m.store.UpsertModule(ctx, models.Module{
		ExternalID: r.ModuleID,
		Name:       r.ModuleName,
		URL:        r.ModuleURL,
	})
	if err != nil {
		return fmt.Errorf("upsert module %s: %w", r.ModuleID, err)
	}

	listingRegion := r.Region
	if listingRegion == "" {
		listingRegion = region
	}
	_, err = m.store.UpsertListing(ctx, models.Listing{
		ExternalID: r.ExternalID,
		ModuleID:   moduleID,
		Price:      r.Price,
		Currency:   r.Currency,
		Seller:     r.Seller,
		Region:     listingRegion,
		Condition:  r.Description,
		DateListed: r.DateListed,
		URL:        r.URL,
	})
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", r.ExternalID, err)
	}
	return nil
}

// refreshHistory pulls each watched module's sold-price table through one
// of its active listings. History is an enrichment: failures are logged
// and never fail the cycle.
func (m *Monitor) refreshHistory(ctx context.Context) {
	watches, err := m.store.ListWatch(ctx)
	if err != nil {
		m.log.WithError(err).Error("load watchlist for history")
		return
	}

	for _, w := range watches {
		if ctx.Err() != nil {
			return
		}
		url, err := m.store.ActiveListingURL(ctx, w.ModuleID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			m.log.WithError(err).WithField("module", w.ModuleID).Warn("listing lookup failed")
			continue
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		detail, err := m.market.ListingDetail(ctx, url)
		if err != nil {
			m.log.WithError(err).WithField("module", w.ModuleID).Warn("detail fetch failed")
			continue
		}

		for _, h := range detail.History {
			_, err := m.store.AppendPriceHistory(ctx, models.PriceHistoryEntry{
				ModuleID: w.ModuleID,
				Price:    h.Price,
				Currency: h.Currency,
				DateSold: h.DateSold,
				Cond:     h.Cond,
			})
			if err != nil {
				m.log.WithError(err).WithField("module", w.ModuleID).Warn("append history failed")
			}
		}
		if err := m.store.RefreshModuleAverages(ctx, w.ModuleID); err != nil {
			m.log.WithError(err).WithField("module", w.ModuleID).Warn("refresh averages failed")
		}
		m.emit(Event{Stage: StateHistory, Message: detail.Name, Count: len(detail.History)})
	}
}

// recordDeals persists each detection and carries the deal id forward for
// the dispatcher.
func (m *Monitor) recordDeals(ctx context.Context, found []models.DealAssessment) []models.DealAssessment {
	var out []models.DealAssessment
	for _, a := range found {
		id, err := m.store.RecordDeal(ctx, models.Deal{
			ListingID:    a.Listing.ID,
			AvgPrice:     a.AvgPrice,
			PriceDiff:    a.PriceDiff,
			PercentBelow: a.PercentBelow,
			Trigger:      a.TriggerKind(),
		})
		if err != nil {
			m.log.WithError(err).WithField("listing", a.Listing.ExternalID).Error("record deal failed")
			continue
		}
		a.DealID = id
		out = append(out, a)
	}
	return out
}

func (m *Monitor) regionsPreference(ctx context.Context) string {
	fallback := m.opts.Regions
	if fallback == "" {
		fallback = "All"
	}
	v, err := m.store.GetPreference(ctx, database.PrefRegions, fallback)
	if err != nil {
		m.log.WithError(err).Warn("read regions preference")
		return fallback
	}
	return v
}

// expandRegions resolves the regions preference. "All" covers every
// marketplace region; otherwise the value is a comma-separated list.
func expandRegions(pref string) []string {
	if strings.EqualFold(strings.TrimSpace(pref), "all") {
		return append([]string(nil), AllRegions...)
	}
	var out []string
	for _, r := range strings.Split(pref, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), AllRegions...)
	}
	return out
}

func (m *Monitor) interval(ctx context.Context) time.Duration {
	fallback := int(m.opts.Interval / time.Second)
	raw, err := m.store.GetPreference(ctx, database.PrefScanInterval, strconv.Itoa(fallback))
	if err == nil {
		if secs, perr := strconv.Atoi(raw); perr == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if m.opts.Interval > 0 {
		return m.opts.Interval
	}
	return time.Hour
}
