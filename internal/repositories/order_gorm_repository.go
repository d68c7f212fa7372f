package repositories

import (
	"fmt"
	"time"

	"duka/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetAll retrieves all orders with their items, newest first.
func (r *GORMOrderRepository) GetAll() ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	return orders, nil
}

// GetByUser retrieves the orders belonging to a single user.
func (r *GORMOrderRepository) GetByUser(userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for user %s: %w", userID, err)
	}
	return orders, nil
}

// GetByID retrieves a single order with its items.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByMerchantReference looks an order up by the reference we generated at
// submission time.
func (r *GORMOrderRepository) GetByMerchantReference(ref string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, "merchant_reference = ?", ref).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order with merchant reference %s: %w", ref, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by merchant reference %s: %w", ref, err)
	}
	return &order, nil
}

// GetByTrackingID looks an order up by the processor-assigned tracking id.
func (r *GORMOrderRepository) GetByTrackingID(trackingID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, "tracking_id = ?", trackingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order with tracking ID %s: %w", trackingID, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by tracking ID %s: %w", trackingID, err)
	}
	return &order, nil
}

// Create persists an order together with its items in one transaction.
func (r *GORMOrderRepository) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := r.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// Delete removes an order and its items. Rollback of a failed creation only.
func (r *GORMOrderRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.OrderItem{}, "order_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete items for order %s: %w", id, err)
		}
		res := tx.Delete(&models.Order{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete order %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
		}
		return nil
	})
}

// SetTracking records the tracking id returned by the gateway.
func (r *GORMOrderRepository) SetTracking(id string, trackingID string) error {
	res := r.db.Model(&models.Order{}).Where("id = ?", id).
		Updates(map[string]interface{}{"tracking_id": trackingID, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to set tracking ID for order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// UpdateStatus updates the order status.
func (r *GORMOrderRepository) UpdateStatus(id string, status string) error {
	res := r.db.Model(&models.Order{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update status for order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// TransitionPayment is a guarded update: the WHERE clause on the current
// payment status makes the check-then-act a single atomic statement, so
// only one of any number of concurrent duplicate callbacks wins.
func (r *GORMOrderRepository) TransitionPayment(id, fromPayment, toPayment, toStatus, paymentMethod string) (bool, error) {
	updates := map[string]interface{}{
		"payment_status": toPayment,
		"status":         toStatus,
		"updated_at":     time.Now(),
	}
	if paymentMethod != "" {
		updates["payment_method"] = paymentMethod
	}
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, fromPayment).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition payment for order %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
