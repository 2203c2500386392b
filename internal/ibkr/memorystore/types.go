package memorystore

import (
	"time"

	"tickscope/pkg/ibkr"

	"github.com/google/uuid"
)

// Trade is one last-trade print. Size is nil when the frame carried no size.
type Trade struct {
	ID         uuid.UUID  `json:"id"` // stable key for chart marks
	ContractID ibkr.ConID `json:"conid"`
	Price      float64    `json:"price"`
	Size       *uint64    `json:"size,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Quote is a top-of-book update; either side may be missing but not both.
type Quote struct {
	ID         uuid.UUID  `json:"id"`
	ContractID ibkr.ConID `json:"conid"`
	Bid        *float64   `json:"bid,omitempty"`
	Ask        *float64   `json:"ask,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// VolumeTick is the cumulative day volume at Timestamp.
type VolumeTick struct {
	ID         uuid.UUID  `json:"id"`
	ContractID ibkr.ConID `json:"conid"`
	Volume     uint64     `json:"volume"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Batch holds the records decoded from one inbound frame, in arrival order.
type Batch struct {
	Trades  []Trade
	Quotes  []Quote
	Volumes []VolumeTick
}

func (b Batch) Len() int {
	return len(b.Trades) + len(b.Quotes) + len(b.Volumes)
}

// Snapshot is a read-only copy of the three series.
type Snapshot struct {
	Trades  []Trade      `json:"trades"`
	Quotes  []Quote      `json:"quotes"`
	Volumes []VolumeTick `json:"volumes"`
}

// ForContract returns the subset of the snapshot belonging to id.
func (s Snapshot) ForContract(id ibkr.ConID) Snapshot {
	out := Snapshot{
		Trades:  make([]Trade, 0),
		Quotes:  make([]Quote, 0),
		Volumes: make([]VolumeTick, 0),
	}
	for _, t := range s.Trades {
		if t.ContractID == id {
			out.Trades = append(out.Trades, t)
		}
	}
	for _, q := range s.Quotes {
		if q.ContractID == id {
			out.Quotes = append(out.Quotes, q)
		}
	}
	for _, v := range s.Volumes {
		if v.ContractID == id {
			out.Volumes = append(out.Volumes, v)
		}
	}
	return out
}
