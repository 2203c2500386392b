package postgres

import "time"

// ContractRecord caches one resolved contract id. Expiry is set for options
// and nil for stocks.
type ContractRecord struct {
	ID uint `gorm:"primaryKey"`

	CacheKey string `gorm:"type:text;not null;uniqueIndex:idx_contract_cache_key"` // "STK|BA", "OPT|BA250620P00180000"
	ConID    int64  `gorm:"not null"`
	SecType  string `gorm:"type:varchar(8);not null"`

	Expiry *time.Time `gorm:"index:idx_contract_expiry"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (ContractRecord) TableName() string {
	return "contract_record"
}
