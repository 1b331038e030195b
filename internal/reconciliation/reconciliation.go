// Package reconciliation checks that ledger balances, confirmed deposits and
// held escrow tickets agree with each other.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/merakimarket/meraki/internal/ledger"
)

// LedgerTotaler returns platform-wide ledger sums.
type LedgerTotaler interface {
	Totals(ctx context.Context) (*ledger.Totals, error)
}

// EscrowTotaler returns the amount locked in held escrow tickets.
type EscrowTotaler interface {
	HeldTotal(ctx context.Context) (int64, error)
}

// Report is the outcome of one reconciliation run.
//
// LedgerDrift is money in balances that no deposit accounts for.
// EscrowDrift is escrowed ledger funds minus the sum of held tickets; a
// non-zero value means a ticket and its ledger lock disagree.
type Report struct {
	Balanced    bool      `json:"balanced"`
	Available   int64     `json:"available"`
	Escrowed    int64     `json:"escrowed"`
	Deposited   int64     `json:"deposited"`
	EscrowHeld  int64     `json:"escrowHeld"`
	LedgerDrift int64     `json:"ledgerDrift"`
	EscrowDrift int64     `json:"escrowDrift"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Service runs reconciliation checks and keeps the latest report.
type Service struct {
	ledger LedgerTotaler
	escrow EscrowTotaler
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *Report
}

// NewService creates a reconciliation service.
func NewService(l LedgerTotaler, e EscrowTotaler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, escrow: e, logger: logger, now: time.Now}
}

// Run compares ledger totals against deposits and held escrow.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum ledger balances: %w", err)
	}
	held, err := s.escrow.HeldTotal(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum held escrow: %w", err)
	}

	r := &Report{
		Available:   totals.Available,
		Escrowed:    totals.Escrowed,
		Deposited:   totals.Deposited,
		EscrowHeld:  held,
		LedgerDrift: totals.Drift(),
		EscrowDrift: totals.Escrowed - held,
		CheckedAt:   s.now(),
	}
	r.Balanced = r.LedgerDrift == 0 && r.EscrowDrift == 0

	reconcileLedgerDrift.Set(float64(r.LedgerDrift))
	reconcileEscrowDrift.Set(float64(r.EscrowDrift))
	if !r.Balanced {
		s.logger.Warn("reconciliation mismatch",
			"ledger_drift", r.LedgerDrift, "escrow_drift", r.EscrowDrift,
			"deposited", r.Deposited, "escrow_held", r.EscrowHeld)
	}

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return r, nil
}

// Last returns the most recent report, or nil before the first run.
func (s *Service) Last() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}
