package repositories

import (
	"fmt"
	"strings"

	"duka/internal/models"

	"gorm.io/gorm"
)

// GORMDeliveryZoneRepository is a GORM implementation of DeliveryZoneRepository.
type GORMDeliveryZoneRepository struct {
	db *gorm.DB
}

// NewGORMDeliveryZoneRepository creates a new instance of GORMDeliveryZoneRepository.
func NewGORMDeliveryZoneRepository(db *gorm.DB) *GORMDeliveryZoneRepository {
	return &GORMDeliveryZoneRepository{
		db: db,
	}
}

// GetAll retrieves all delivery zones.
func (r *GORMDeliveryZoneRepository) GetAll() ([]models.DeliveryZone, error) {
	var zones []models.DeliveryZone
	if err := r.db.Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to get delivery zones: %w", err)
	}
	return zones, nil
}

// GetByCity retrieves the zone for a city, case-insensitively.
func (r *GORMDeliveryZoneRepository) GetByCity(city string) (*models.DeliveryZone, error) {
	var zone models.DeliveryZone
	if err := r.db.First(&zone, "LOWER(city) = ?", strings.ToLower(city)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("delivery zone for city %s: %w", city, ErrZoneNotFound)
		}
		return nil, fmt.Errorf("failed to get delivery zone for city %s: %w", city, err)
	}
	return &zone, nil
}

// Create adds a new delivery zone.
func (r *GORMDeliveryZoneRepository) Create(zone *models.DeliveryZone) error {
	if err := r.db.Create(zone).Error; err != nil {
		return fmt.Errorf("failed to create delivery zone: %w", err)
	}
	return nil
}
