package postgres

import (
	"strconv"
	"time"

	"cryptostats/internal/market"
)

// SnapshotRecord is one stored market data sample.
type SnapshotRecord struct {
	ID uint `gorm:"primaryKey"`

	Asset     string    `gorm:"type:varchar(64);not null;index:idx_snapshot_asset_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_snapshot_asset_timestamp,priority:2,sort:desc"`

	Price     float64 `gorm:"type:double precision;not null"`
	MarketCap float64 `gorm:"type:double precision;not null"`
	Change24h float64 `gorm:"type:double precision;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (SnapshotRecord) TableName() string {
	return "crypto_stats"
}

// ToSnapshotRecord converts a domain snapshot for insertion.
// Timestamp is truncated to the microsecond resolution Postgres stores.
func ToSnapshotRecord(s market.Snapshot) *SnapshotRecord {
	return &SnapshotRecord{
		Asset:     s.Asset,
		Timestamp: s.Timestamp.Truncate(time.Microsecond),
		Price:     s.Price,
		MarketCap: s.MarketCap,
		Change24h: s.Change24h,
	}
}

func (r SnapshotRecord) Snapshot() market.Snapshot {
	return market.Snapshot{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Asset:     r.Asset,
		Price:     r.Price,
		MarketCap: r.MarketCap,
		Change24h: r.Change24h,
		Timestamp: r.Timestamp,
	}
}
