package repositories

import (
	"duka/internal/models"
)

// DeliveryZoneRepository defines the interface for delivery zone lookups.
// The order flow only reads zones; maintenance is a catalog concern.
type DeliveryZoneRepository interface {
	GetAll() ([]models.DeliveryZone, error)
	GetByCity(city string) (*models.DeliveryZone, error)
	Create(zone *models.DeliveryZone) error
}
