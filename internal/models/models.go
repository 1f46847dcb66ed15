package models

import "time"

// Module is the immutable reference data for one synthesizer module.
// Created on first sighting in any listing and refreshed in place afterwards.
type Module struct {
	ID           int64
	ExternalID   string
	Name         string
	Manufacturer string
	HP           int
	ModuleType   string
	Description  string
	AvgPriceNew  float64 // cached bucket average, 0 when unknown
	AvgPriceUsed float64
	URL          string
	LastUpdated  time.Time
	CreatedAt    time.Time
}

// Listing is a single marketplace offer for one module.
type Listing struct {
	ID          int64
	ExternalID  string
	ModuleID    int64
	Price       float64
	Currency    string
	Seller      string
	Region      string
	Condition   string
	DateListed  string // free text as shown by the origin
	URL         string
	Active      bool
	LastChecked time.Time
	CreatedAt   time.Time
}

// PriceHistoryEntry is one historical sale of a module. The origin exposes
// no stable identifier, so (module, price, currency, date sold) is the
// de-duplication key.
type PriceHistoryEntry struct {
	ID       int64
	ModuleID int64
	Price    float64
	Currency string
	DateSold string // free text, not necessarily a parseable date
	Cond     string
	AddedAt  time.Time
}

// WatchlistEntry marks one module for deal monitoring, unique per module.
type WatchlistEntry struct {
	ID             int64
	ModuleID       int64
	PriceThreshold float64 // percent below average that triggers a deal
	MaxPrice       float64 // absolute cap trigger, 0 = unset
	Currency       string
	Notify         bool
	AddedAt        time.Time
}

// Deal trigger kinds. A single deal may carry both.
const (
	TriggerThreshold = "threshold"
	TriggerMaxPrice  = "max_price"
	TriggerBoth      = "threshold+max_price"
)

// Deal is a listing that was classified as priced sufficiently below its
// reference average, or under its watch cap. At most one per listing.
type Deal struct {
	ID           int64
	ListingID    int64
	AvgPrice     float64
	PriceDiff    float64
	PercentBelow float64
	Trigger      string
	Notified     bool
	DetectedAt   time.Time
}

// DealAssessment is the analyzer's verdict on one watched listing. A
// listing can trip the percentage threshold, the absolute cap, or both.
type DealAssessment struct {
	Listing      Listing
	Module       Module
	DealID       int64 // set once the deal is recorded
	AvgPrice     float64
	PriceDiff    float64
	PercentBelow float64
	Threshold    float64
	IsDeal       bool // percent below average reached the threshold
	BelowMax     bool // price at or under the watch cap
}

// Triggered reports whether either deal condition fired.
func (a DealAssessment) Triggered() bool {
	return a.IsDeal || a.BelowMax
}

// TriggerKind names which condition(s) fired, empty when none did.
func (a DealAssessment) TriggerKind() string {
	switch {
	case a.IsDeal && a.BelowMax:
		return TriggerBoth
	case a.IsDeal:
		return TriggerThreshold
	case a.BelowMax:
		return TriggerMaxPrice
	}
	return ""
}

// Scan run lifecycle states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ScanRun records one orchestrator cycle for status reads.
type ScanRun struct {
	ID         string // uuid
	Status     string
	Listings   int
	Deals      int
	Notified   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListingRecord is the normalized output of one offers-table row before it
// touches storage.
type ListingRecord struct {
	ExternalID  string
	DateListed  string
	Price       float64
	Currency    string
	PriceOK     bool // false when the raw price text was unparseable
	ModuleName  string
	ModuleURL   string
	ModuleID    string // external id derived from the module URL
	Description string
	Seller      string
	Region      string
	URL         string
}

// ListingDetail is the best-effort extraction of a listing detail page.
// History is optional, the origin gates it behind account tier.
type ListingDetail struct {
	Name      string
	Price     float64
	Currency  string
	PriceOK   bool
	Condition string
	Seller    string
	Region    string
	History   []HistoryRecord
}

// HistoryRecord is one row of the detail page's price-history table.
type HistoryRecord struct {
	DateSold string
	Price    float64
	Currency string
	Cond     string
}

// ModuleResult is one row of the module browser's search results.
type ModuleResult struct {
	ExternalID   string
	Name         string
	Manufacturer string
	URL          string
}
