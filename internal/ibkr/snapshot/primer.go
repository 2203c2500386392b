package snapshot

import (
	"context"
	"fmt"
	"time"

	"tickscope/pkg/ibkr"

	"go.uber.org/zap"
)

// PrimerAPI is satisfied by *ibkr.RESTClient.
type PrimerAPI interface {
	Accounts(ctx context.Context) error
	MarketSnapshot(ctx context.Context, ids []ibkr.ConID, fields []string) error
}

// Primer readies the gateway session for streaming: the gateway wants
// /iserver/accounts once per session and a snapshot request before it pushes
// a contract on the stream.
type Primer struct {
	API     PrimerAPI
	Timeout time.Duration
	Logger  *zap.Logger
}

// Prime runs both requests under one timeout.
func (p *Primer) Prime(ctx context.Context, ids []ibkr.ConID) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if err := p.API.Accounts(ctx); err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	if err := p.API.MarketSnapshot(ctx, ids, ibkr.StreamFields); err != nil {
		return fmt.Errorf("market snapshot: %w", err)
	}

	p.Logger.Info("primed market data", zap.Stringers("conids", ids))
	return nil
}
