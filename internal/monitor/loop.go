package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"gridwatch/logger"
)

// Start schedules recurring cycles and fires one immediately so a fresh
// deployment has data before the first tick. The interval is read from
// the preference store once; changing it takes effect on restart.
func (m *Monitor) Start(ctx context.Context) error {
	interval := m.interval(ctx)

	m.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		m.runScheduled(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	m.cron.Start()
	m.log.WithField("interval", interval.String()).Info("monitor started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runScheduled(ctx)
	}()
	return nil
}

// Stop halts the schedule and waits for any in-flight cycle to drain.
// Cancel the context passed to Start first to abort mid-cycle work.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.wg.Wait()
	m.setState(StateStopped)
	m.log.Info("monitor stopped")
}

func (m *Monitor) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := m.RunCycle(ctx)
	if errors.Is(err, ErrScanInFlight) {
		return
	}
	if err != nil {
		m.log.WithError(err).Error("scan cycle failed")
		return
	}
	m.log.WithFields(logger.Fields{
		"listings": result.Listings,
		"deals":    result.Deals,
		"notified": result.Notified,
	}).Debug("scheduled cycle complete")
}
