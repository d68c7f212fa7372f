package repositories

import (
	"fmt"
	"strings"
	"sync"

	"duka/internal/models"
)

// MockDeliveryZoneRepository is an in-memory implementation of
// DeliveryZoneRepository.
type MockDeliveryZoneRepository struct {
	zones map[string]models.DeliveryZone // keyed by lowercase city
	mu    sync.RWMutex
}

// NewMockDeliveryZoneRepository creates a new instance of MockDeliveryZoneRepository.
func NewMockDeliveryZoneRepository() *MockDeliveryZoneRepository {
	return &MockDeliveryZoneRepository{
		zones: make(map[string]models.DeliveryZone),
	}
}

// GetAll returns all delivery zones.
func (r *MockDeliveryZoneRepository) GetAll() ([]models.DeliveryZone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zoneList := make([]models.DeliveryZone, 0, len(r.zones))
	for _, z := range r.zones {
		zoneList = append(zoneList, z)
	}
	return zoneList, nil
}

// GetByCity returns the zone for a city, case-insensitively.
func (r *MockDeliveryZoneRepository) GetByCity(city string) (*models.DeliveryZone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zone, ok := r.zones[strings.ToLower(city)]
	if !ok {
		return nil, fmt.Errorf("delivery zone for city %s: %w", city, ErrZoneNotFound)
	}
	return &zone, nil
}

// Create adds a new delivery zone.
func (r *MockDeliveryZoneRepository) Create(zone *models.DeliveryZone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.zones[strings.ToLower(zone.City)] = *zone
	return nil
}
