package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
)

const migrationNormalizeBirthMinutes = "2026-07-12_normalize_birth_minutes"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeBirthMinutes, apply: normalizeBirthMinutes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeBirthMinutes strips second and zone suffixes left behind by early
// clients that stored full RFC 3339 birth values. The scheduler indexes on the
// minute-precision form, so longer rows would never match a tick.
func normalizeBirthMinutes(db *gorm.DB) error {
	return db.Model(&subscribers.FamilyMember{}).
		Where("length(birth_datetime) > ?", len(subscribers.BirthLayout)).
		Update("birth_datetime", gorm.Expr("substr(birth_datetime, 1, ?)", len(subscribers.BirthLayout))).Error
}
