package market

import "time"

// Snapshot is one timestamped sample of an asset's market data.
// Snapshots are immutable once stored.
type Snapshot struct {
	ID        string    `json:"-"`
	Asset     string    `json:"coin"`      // canonical asset id, e.g. "bitcoin"
	Price     float64   `json:"price"`     // USD
	MarketCap float64   `json:"marketCap"` // USD
	Change24h float64   `json:"change24h"` // percent
	Timestamp time.Time `json:"timestamp"` // zero until stored
}

// Stats is the public view of the latest snapshot served by GET /stats.
type Stats struct {
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	Change24h float64 `json:"24hChange"`
}

// View projects the snapshot onto its public shape.
func (s Snapshot) View() Stats {
	return Stats{
		Price:     s.Price,
		MarketCap: s.MarketCap,
		Change24h: s.Change24h,
	}
}
