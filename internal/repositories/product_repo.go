package repositories

import (
	"duka/internal/models"
)

// ProductRepository defines the interface for product data access.
// DecrementStock and IncrementStock are the only mutations the order flow
// performs; both must be atomic per product row.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetActive() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error

	// DecrementStock subtracts quantity from the product's stock only if
	// enough stock remains; returns ErrInsufficientStock otherwise.
	DecrementStock(id string, quantity int) error
	// IncrementStock adds quantity back to the product's stock.
	IncrementStock(id string, quantity int) error
}
