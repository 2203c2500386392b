package stream

import (
	"time"

	"tickscope/internal/ibkr/memorystore"
	"tickscope/pkg/ibkr"

	"github.com/google/uuid"
)

// Extract converts one record into zero or more typed records. A single record
// may yield a trade, a quote and a volume tick at once. receivedAt stamps
// records that carry no server timestamp.
func (r RawRecord) Extract(receivedAt time.Time) (memorystore.Batch, error) {
	var out memorystore.Batch

	id, ok := asPositiveInt(r[ibkr.FieldConID])
	if !ok {
		return out, ErrRecordRejected
	}
	conid := ibkr.ConID(id)

	ts := receivedAt
	if ms, ok := asFloat(r[ibkr.FieldServerTime]); ok && ms >= -maxExactFloatInt && ms <= maxExactFloatInt {
		ts = time.UnixMilli(int64(ms))
	}

	if price, ok := asFloat(r[ibkr.FieldLastPrice]); ok {
		trade := memorystore.Trade{ID: uuid.New(), ContractID: conid, Price: price, Timestamp: ts}
		if size, ok := asUint(r[ibkr.FieldLastSize]); ok {
			trade.Size = &size
		}
		out.Trades = append(out.Trades, trade)
	}

	bid, hasBid := asFloat(r[ibkr.FieldBid])
	ask, hasAsk := asFloat(r[ibkr.FieldAsk])
	if hasBid || hasAsk {
		quote := memorystore.Quote{ID: uuid.New(), ContractID: conid, Timestamp: ts}
		if hasBid {
			quote.Bid = &bid
		}
		if hasAsk {
			quote.Ask = &ask
		}
		out.Quotes = append(out.Quotes, quote)
	}

	if vol, ok := asUint(r[ibkr.FieldVolume]); ok {
		out.Volumes = append(out.Volumes, memorystore.VolumeTick{
			ID: uuid.New(), ContractID: conid, Volume: vol, Timestamp: ts,
		})
	}

	return out, nil
}

// ToBatch extracts every record of a data frame. Rejected records are skipped
// and counted; their siblings are kept.
func (b DataBatch) ToBatch(receivedAt time.Time) (batch memorystore.Batch, rejected int) {
	for _, rec := range b.Records {
		part, err := rec.Extract(receivedAt)
		if err != nil {
			rejected++
			continue
		}
		batch.Trades = append(batch.Trades, part.Trades...)
		batch.Quotes = append(batch.Quotes, part.Quotes...)
		batch.Volumes = append(batch.Volumes, part.Volumes...)
	}
	return batch, rejected
}
