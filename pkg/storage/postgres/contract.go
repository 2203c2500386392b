package postgres

import (
	"context"
	"errors"
	"time"

	"tickscope/pkg/ibkr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveContract upserts the id stored under key. Ids are immutable facts, so the
// last writer wins.
func (p *PostgresClient) SaveContract(ctx context.Context, key, secType string, id ibkr.ConID, expiry *time.Time) error {
	record := &ContractRecord{
		CacheKey: key,
		ConID:    int64(id),
		SecType:  secType,
		Expiry:   expiry,
	}
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"con_id", "sec_type", "expiry", "updated_at"}),
	}).Create(record).Error
}

// LookupContract returns the cached id for key. Options whose expiry day has
// passed are treated as missing.
func (p *PostgresClient) LookupContract(ctx context.Context, key string) (ibkr.ConID, bool, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var record ContractRecord
	err := p.DB.WithContext(ctx).
		Where("cache_key = ? AND (expiry IS NULL OR expiry >= ?)", key, today).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ibkr.ConID(record.ConID), true, nil
}

// DeleteExpiredContracts removes option rows that expired before the given time.
func (p *PostgresClient) DeleteExpiredContracts(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("expiry IS NOT NULL AND expiry < ?", before).
		Delete(&ContractRecord{})
	return tx.RowsAffected, tx.Error
}
