// Package analyzer classifies watched listings as deals by comparing
// their asking price against reference averages built from sold history.
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"gridwatch/internal/database"
	"gridwatch/internal/models"
	"gridwatch/logger"
)

// DefaultThreshold is the percent-below-average that flags a deal when
// neither the watch entry nor the configuration says otherwise.
const DefaultThreshold = 15.0

// Analyzer evaluates watched listings against the store's reference data.
type Analyzer struct {
	store            database.Store
	defaultThreshold float64
	log              *logrus.Entry
}

// New returns an Analyzer. A non-positive defaultThreshold falls back to
// DefaultThreshold.
func New(store database.Store, defaultThreshold float64) *Analyzer {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultThreshold
	}
	return &Analyzer{
		store:            store,
		defaultThreshold: defaultThreshold,
		log:              logger.WithComponent("analyzer"),
	}
}

// Assess evaluates one listing against its watch terms and the module's
// reference averages. Listings without a usable price never trigger, and
// without any reference average only the absolute cap can.
func Assess(l models.Listing, m models.Module, w models.WatchlistEntry, avgs database.Averages, defaultThreshold float64) models.DealAssessment {
	out := models.DealAssessment{Listing: l, Module: m, Threshold: defaultThreshold}
	if w.PriceThreshold > 0 {
		out.Threshold = w.PriceThreshold
	}
	if l.Price <= 0 {
		return out
	}

	out.AvgPrice = referenceAverage(l.Condition, m, avgs)
	if out.AvgPrice > 0 {
		out.PriceDiff = out.AvgPrice - l.Price
		out.PercentBelow = out.PriceDiff / out.AvgPrice * 100
		out.IsDeal = out.Threshold > 0 && out.PercentBelow >= out.Threshold
	}
	out.BelowMax = w.MaxPrice > 0 && l.Price <= w.MaxPrice
	return out
}

// referenceAverage picks the history bucket matching the listing's
// condition, then the module's cached bucket average, then the overall
// history average.
func referenceAverage(condition string, m models.Module, avgs database.Averages) float64 {
	if isNewCondition(condition) {
		if avgs.NewCount > 0 {
			return avgs.New
		}
		if m.AvgPriceNew > 0 {
			return m.AvgPriceNew
		}
	} else {
		if avgs.UsedCount > 0 {
			return avgs.Used
		}
		if m.AvgPriceUsed > 0 {
			return m.AvgPriceUsed
		}
	}
	if avgs.OverallCount > 0 {
		return avgs.Overall
	}
	return 0
}

// isNewCondition buckets by prefix so "new in box" counts as new while
// "Like new" stays used. Must agree with the bucketing in the store's
// average queries.
func isNewCondition(condition string) bool {
	return strings.HasPrefix(strings.ToLower(condition), "new")
}

// thresholdPreference reads the runtime default threshold from the
// store, falling back to the constructor value when unset or unusable.
func (a *Analyzer) thresholdPreference(ctx context.Context) float64 {
	raw, err := a.store.GetPreference(ctx, database.PrefThreshold, "")
	if err != nil || raw == "" {
		return a.defaultThreshold
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return a.defaultThreshold
	}
	return v
}

// FindDeals assesses every active listing of a watched module and returns
// the assessments that triggered, in listing order. Per-listing store
// failures are logged and skipped.
func (a *Analyzer) FindDeals(ctx context.Context) ([]models.DealAssessment, error) {
	watches, err := a.store.ListWatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	byModule := make(map[int64]models.WatchlistEntry, len(watches))
	for _, w := range watches {
		byModule[w.ModuleID] = w
	}

	listings, err := a.store.WatchedActiveListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watched listings: %w", err)
	}
	threshold := a.thresholdPreference(ctx)

	var deals []models.DealAssessment
	for _, l := range listings {
		watch, ok := byModule[l.ModuleID]
		if !ok {
			continue
		}
		module, err := a.store.GetModuleByID(ctx, l.ModuleID)
		if err != nil {
			a.log.WithError(err).WithField("listing", l.ExternalID).Warn("module lookup failed, skipping listing")
			continue
		}
		avgs, err := a.store.ModuleAverages(ctx, l.ModuleID)
		if err != nil {
			a.log.WithError(err).WithField("listing", l.ExternalID).Warn("averages unavailable, skipping listing")
			continue
		}

		assessment := Assess(l, *module, watch, avgs, threshold)
		if !assessment.Triggered() {
			continue
		}
		a.log.WithFields(logger.Fields{
			"listing":       l.ExternalID,
			"module":        module.Name,
			"price":         l.Price,
			"avg":           assessment.AvgPrice,
			"percent_below": assessment.PercentBelow,
			"trigger":       assessment.TriggerKind(),
		}).Info("deal detected")
		deals = append(deals, assessment)
	}
	return deals, nil
}
