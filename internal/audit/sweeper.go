// Package audit watches the ledger for transactions stuck in pending.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/store"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval    = 10 * time.Minute
	defaultPendingThreshold = 24 * time.Hour
)

// Sweeper periodically counts pending transactions older than a threshold.
// It only reports; pending rows are never modified.
type Sweeper struct {
	ledger    *store.Ledger
	metrics   *metrics.Metrics
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// NewSweeper constructs a Sweeper. Non-positive durations fall back to defaults.
func NewSweeper(ledger *store.Ledger, m *metrics.Metrics, interval, threshold time.Duration) *Sweeper {
	if ledger == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if threshold <= 0 {
		threshold = defaultPendingThreshold
	}
	return &Sweeper{
		ledger:    ledger,
		metrics:   m,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	log.Infof("pending transaction sweeper started (interval=%s, threshold=%s)", s.interval, s.threshold)
	if _, err := s.SweepOnce(ctx); err != nil {
		log.WithError(err).Warn("audit sweeper: initial sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.WithError(err).Warn("audit sweeper: sweep failed")
			}
		}
	}
}

// SweepOnce counts stale pending transactions and publishes the result.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s == nil || s.ledger == nil {
		return 0, fmt.Errorf("audit sweeper: nil ledger")
	}
	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	cutoff := clock().UTC().Add(-s.threshold)
	count, err := s.ledger.CountPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.SetStalePending(count)
	if count > 0 {
		log.WithFields(log.Fields{
			"anomaly": "stale_pending",
			"count":   count,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Warn("audit sweeper: pending transactions without a notification")
	}
	return count, nil
}
