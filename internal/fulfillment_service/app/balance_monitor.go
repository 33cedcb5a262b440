package app

import (
	"context"
	"log/slog"
)

// BalanceSource reports the wallet balance; ok is false when it is unknown.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, bool)
}

// BalanceCheck is the result of one balance check.
type BalanceCheck struct {
	Balance        float64
	Known          bool
	BelowThreshold bool
	Report         *DeactivationReport
}

// BalanceMonitor checks the wallet after a failed delivery and takes the
// category's listings down when the balance is below the threshold.
type BalanceMonitor struct {
	source         BalanceSource
	deactivator    ListingDeactivator
	threshold      float64
	autoDeactivate bool
	categoryID     int64
	logger         *slog.Logger
}

func NewBalanceMonitor(logger *slog.Logger, source BalanceSource, deactivator ListingDeactivator, threshold float64, autoDeactivate bool, categoryID int64) *BalanceMonitor {
	return &BalanceMonitor{
		source:         source,
		deactivator:    deactivator,
		threshold:      threshold,
		autoDeactivate: autoDeactivate,
		categoryID:     categoryID,
		logger:         logger.With("component", "balance_monitor"),
	}
}

func (m *BalanceMonitor) Check(ctx context.Context) BalanceCheck {
	balance, ok := m.source.Balance(ctx)
	if !ok {
		m.logger.WarnContext(ctx, "Could not determine wallet balance")
		return BalanceCheck{}
	}
	walletBalanceGauge.Set(balance)
	m.logger.InfoContext(ctx, "Current wallet balance", "balance", balance)

	result := BalanceCheck{Balance: balance, Known: true}
	if balance >= m.threshold {
		return result
	}
	result.BelowThreshold = true
	m.logger.WarnContext(ctx, "Wallet balance below threshold", "balance", balance, "threshold", m.threshold)

	if !m.autoDeactivate {
		m.logger.WarnContext(ctx, "Automatic deactivation disabled, listings must be switched off manually",
			"category_id", m.categoryID)
		return result
	}
	report := m.deactivator.DeactivateCategory(ctx, m.categoryID)
	m.logger.WarnContext(ctx, "Listings deactivated automatically",
		"category_id", m.categoryID, "deactivated", report.Deactivated)
	result.Report = &report
	return result
}
