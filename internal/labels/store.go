package labels

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rawblock/whale-classifier/internal/models"
)

// AddressLabelRecord is the GORM model for the persistent label store.
// Unique index on (address, chain) per SPEC_FULL.md §3.
type AddressLabelRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Address    string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_address_chain"`
	Chain      string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_address_chain"`
	Kind       string    `gorm:"type:varchar(32);not null"`
	EntityName string    `gorm:"type:varchar(128)"`
	Confidence float64   `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (AddressLabelRecord) TableName() string {
	return "address_labels"
}

// Store is the read-through persistent tier behind the process-local cache.
type Store struct {
	db *gorm.DB
}

// NewStore opens a MySQL connection and migrates the address_labels schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to label store MySQL: %w", err)
	}
	if err := db.AutoMigrate(&AddressLabelRecord{}); err != nil {
		return nil, fmt.Errorf("migrate address_labels schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns a persisted label, or (zero, false) on miss/error.
func (s *Store) Get(address string, chain models.Chain) (models.AddressLabel, bool) {
	var rec AddressLabelRecord
	result := s.db.Where("address = ? AND chain = ?", address, string(chain)).First(&rec)
	if result.Error != nil {
		return models.AddressLabel{}, false
	}
	return models.AddressLabel{
		Address:    rec.Address,
		Chain:      models.Chain(rec.Chain),
		Kind:       models.EntityKind(rec.Kind),
		EntityName: rec.EntityName,
		Confidence: rec.Confidence,
		UpdatedAt:  rec.UpdatedAt,
	}, true
}

// Upsert writes a label, keeping the higher-confidence entry on conflict
// (ties broken by freshness), per spec.md §9's open-question resolution.
func (s *Store) Upsert(label models.AddressLabel) error {
	var existing AddressLabelRecord
	err := s.db.Where("address = ? AND chain = ?", label.Address, string(label.Chain)).First(&existing).Error
	if err == nil {
		if label.Confidence < existing.Confidence {
			return nil
		}
		if label.Confidence == existing.Confidence && !label.UpdatedAt.After(existing.UpdatedAt) {
			return nil
		}
		existing.Kind = string(label.Kind)
		existing.EntityName = label.EntityName
		existing.Confidence = label.Confidence
		existing.UpdatedAt = label.UpdatedAt
		return s.db.Save(&existing).Error
	}

	rec := AddressLabelRecord{
		Address:    label.Address,
		Chain:      string(label.Chain),
		Kind:       string(label.Kind),
		EntityName: label.EntityName,
		Confidence: label.Confidence,
		UpdatedAt:  label.UpdatedAt,
	}
	return s.db.Create(&rec).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying label store DB: %w", err)
	}
	return sqlDB.Close()
}
