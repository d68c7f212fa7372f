package repositories

import (
	"duka/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByUser(userID string) ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	GetByMerchantReference(ref string) (*models.Order, error)
	GetByTrackingID(trackingID string) (*models.Order, error)
	Create(order *models.Order) error

	// Delete removes an order and its items. Only used to roll back a
	// failed in-flight creation, never after a successful submission.
	Delete(id string) error

	// SetTracking records the processor-assigned tracking id after a
	// successful payment submission.
	SetTracking(id string, trackingID string) error

	// UpdateStatus sets the order status (admin path).
	UpdateStatus(id string, status string) error

	// TransitionPayment atomically moves the order's payment status from
	// fromPayment to toPayment (and the order status to toStatus) only if
	// the current payment status still equals fromPayment. It reports
	// whether this call performed the transition, which is what makes
	// duplicate callbacks idempotent.
	TransitionPayment(id, fromPayment, toPayment, toStatus, paymentMethod string) (bool, error)
}
