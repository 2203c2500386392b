package stream

import (
	"time"

	"tickscope/internal/ibkr/memorystore"

	"go.uber.org/zap"
)

// MakeFrameHandler returns a function that decodes one inbound frame, passes a
// session token to onToken and every data frame's records, possibly none, to
// onBatch. Bad frames and rejected records are logged and dropped.
func MakeFrameHandler(logger *zap.Logger, onToken func(token string),
	onBatch func(batch memorystore.Batch)) func(raw []byte, receivedAt time.Time) {
	return func(raw []byte, receivedAt time.Time) {
		switch res := Decode(raw).(type) {
		case ControlToken:
			onToken(res.Token)

		case DataBatch:
			batch, rejected := res.ToBatch(receivedAt)
			if rejected > 0 {
				logger.Debug("dropped records without conid",
					zap.Int("rejected", rejected), zap.Int("records", len(res.Records)))
			}
			// heartbeats arrive as empty batches and still drive retention
			onBatch(batch)

		case Unparsable:
			logger.Debug("dropping unparsable frame", zap.Error(res.Err), zap.Int("bytes", len(raw)))
		}
	}
}
