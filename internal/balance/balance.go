// Package balance derives the user's balance from their transactions and
// writes it back to the remote profile.
package balance

import (
	"context"
	"fmt"
	"log/slog"

	"finsync/internal/core"
	"finsync/internal/remote"

	"github.com/shopspring/decimal"
)

// Sum adds income and subtracts expenses. Transactions of any other type
// contribute zero and are returned as anomalies.
func Sum(txs []core.Transaction) (total decimal.Decimal, anomalies []core.Transaction) {
	total = decimal.Zero
	for _, tx := range txs {
		v, ok := tx.Signed()
		if !ok {
			anomalies = append(anomalies, tx)
			continue
		}
		total = total.Add(v)
	}
	return total, anomalies
}

// Calculator recomputes a profile balance and stores it remotely.
type Calculator struct {
	profiles remote.ProfileGateway
	logger   *slog.Logger
}

func NewCalculator(profiles remote.ProfileGateway, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{profiles: profiles, logger: logger}
}

// Compute returns the signed total of txs, logging every anomaly.
func (c *Calculator) Compute(ctx context.Context, txs []core.Transaction) decimal.Decimal {
	total, anomalies := Sum(txs)
	for _, tx := range anomalies {
		c.logger.WarnContext(ctx, "Transaction with unknown type ignored in balance",
			"id", tx.ID,
			"owner_id", tx.OwnerID,
			"type", string(tx.Type),
			"anomaly", true)
	}
	return total
}

// Recalculate sets the profile balance of userID to the total of txs and
// persists it through the profile gateway. Running it twice on the same
// input writes the same value.
func (c *Calculator) Recalculate(ctx context.Context, userID int64, txs []core.Transaction) (core.Profile, error) {
	total := c.Compute(ctx, txs)

	pending := 0
	for _, tx := range txs {
		if tx.Pending {
			pending++
		}
	}

	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile %d: %w", userID, err)
	}

	profile.Balance = total
	updated, err := c.profiles.UpdateProfile(ctx, userID, profile)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile %d: %w", userID, err)
	}

	c.logger.InfoContext(ctx, "Balance recalculated",
		"user_id", userID,
		"balance", total.StringFixed(2),
		"transactions", len(txs),
		"pending", pending)

	return updated, nil
}
