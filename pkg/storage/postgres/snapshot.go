package postgres

import (
	"context"
	"errors"
	"time"

	"cryptostats/internal/market"

	"gorm.io/gorm"
)

// Append validates s and inserts it as a new row.
func (p *PostgresClient) Append(ctx context.Context, s market.Snapshot) (market.Snapshot, error) {
	s, err := p.catalog.Prepare(s, time.Now().UTC())
	if err != nil {
		return market.Snapshot{}, err
	}

	record := ToSnapshotRecord(s)
	if err := p.DB.WithContext(ctx).Create(record).Error; err != nil {
		return market.Snapshot{}, &market.StorageError{Op: "append", Err: err}
	}
	return record.Snapshot(), nil
}

// Latest returns the newest row for asset; ok is false when the asset has no rows.
func (p *PostgresClient) Latest(ctx context.Context, asset string) (market.Snapshot, bool, error) {
	var record SnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("asset = ?", asset).
		Order("timestamp DESC").
		Order("id DESC").
		First(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Snapshot{}, false, nil
	}
	if err != nil {
		return market.Snapshot{}, false, &market.StorageError{Op: "latest", Err: err}
	}
	return record.Snapshot(), true, nil
}

// Recent returns up to limit rows for asset, newest first.
func (p *PostgresClient) Recent(ctx context.Context, asset string, limit int) ([]market.Snapshot, error) {
	if limit <= 0 {
		return []market.Snapshot{}, nil
	}

	var records []SnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("asset = ?", asset).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, &market.StorageError{Op: "recent", Err: err}
	}

	out := make([]market.Snapshot, 0, len(records))
	for _, r := range records {
		out = append(out, r.Snapshot())
	}
	return out, nil
}
