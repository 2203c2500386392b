package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Prune removes contracts that expired before cutoff and reports how many.
type Prune func(ctx context.Context, cutoff time.Time) (int, error)

// MidnightPruner runs Prune once at start, then at every UTC midnight.
type MidnightPruner struct {
	Prune   Prune
	Timeout time.Duration
	Logger  *zap.Logger

	now func() time.Time
}

// Start launches the schedule. It stops when ctx is cancelled.
func (m *MidnightPruner) Start(ctx context.Context) {
	go func() {
		m.runOnce(ctx)

		for {
			wait := time.Until(nextMidnight(m.clock()))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.runOnce(ctx)
			}
		}
	}()
}

func (m *MidnightPruner) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// runOnce uses the start of the current UTC day as cutoff: options expiring
// today still trade.
func (m *MidnightPruner) runOnce(ctx context.Context) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cutoff := m.clock().UTC().Truncate(24 * time.Hour)
	n, err := m.Prune(ctx, cutoff)
	if err != nil {
		m.Logger.Warn("failed to prune expired contracts", zap.Error(err))
		return
	}
	m.Logger.Info("pruned expired contracts", zap.Int("count", n), zap.Time("cutoff", cutoff))
}

func nextMidnight(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
