package store

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntryModel is the GORM model behind GormKV. Values are stored as JSON
// documents so both raw tokens and serialized records fit one column.
type KVEntryModel struct {
	Profile   string         `gorm:"primaryKey"`
	Key       string         `gorm:"primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (KVEntryModel) TableName() string {
	return "kv_entries"
}
