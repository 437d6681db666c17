package db

import (
	"encoding/json"
	"time"
)

// ClientPreference maps pagetranslate.client_preferences.
type ClientPreference struct {
	ClientID       string          `gorm:"column:client_id;type:text;primaryKey"`
	TargetLanguage string          `gorm:"column:target_language;type:text;not null"`
	UIPrefs        json.RawMessage `gorm:"column:ui_prefs;type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ClientPreference) TableName() string { return "pagetranslate.client_preferences" }

func autoMigrateModels() []any {
	return []any{
		&ClientPreference{},
	}
}
