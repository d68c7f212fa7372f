package repositories

import (
	"fmt"
	"sync"
	"time"

	"duka/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// GetAll returns all orders.
func (r *MockOrderRepository) GetAll() ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orderList = append(orderList, order)
	}
	return orderList, nil
}

// GetByUser returns the orders belonging to a single user.
func (r *MockOrderRepository) GetByUser(userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orderList []models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			orderList = append(orderList, order)
		}
	}
	return orderList, nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	return &order, nil
}

// GetByMerchantReference returns an order by its merchant reference.
func (r *MockOrderRepository) GetByMerchantReference(ref string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.MerchantReference == ref {
			o := order
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order with merchant reference %s: %w", ref, ErrOrderNotFound)
}

// GetByTrackingID returns an order by its gateway tracking id.
func (r *MockOrderRepository) GetByTrackingID(trackingID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.TrackingID == trackingID {
			o := order
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order with tracking ID %s: %w", trackingID, ErrOrderNotFound)
}

// Create adds a new order.
func (r *MockOrderRepository) Create(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// Delete removes an order by its ID.
func (r *MockOrderRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	delete(r.orders, id)
	return nil
}

// SetTracking records the gateway tracking id on an order.
func (r *MockOrderRepository) SetTracking(id string, trackingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	order.TrackingID = trackingID
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

// UpdateStatus updates the status of an order.
func (r *MockOrderRepository) UpdateStatus(id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

// TransitionPayment applies the guarded payment transition under the same
// lock, matching the conditional-update semantics of the GORM repository.
func (r *MockOrderRepository) TransitionPayment(id, fromPayment, toPayment, toStatus, paymentMethod string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	if order.PaymentStatus != fromPayment {
		return false, nil
	}
	order.PaymentStatus = toPayment
	order.Status = toStatus
	if paymentMethod != "" {
		order.PaymentMethod = paymentMethod
	}
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return true, nil
}
