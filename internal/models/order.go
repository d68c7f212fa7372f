package models

import "time"

// Order status values. A cancelled order has had its stock restored.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment status values as tracked against the gateway.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ValidOrderStatuses is the set of statuses an order may transition to.
var ValidOrderStatuses = map[string]bool{
	OrderStatusPending:    true,
	OrderStatusProcessing: true,
	OrderStatusShipped:    true,
	OrderStatusDelivered:  true,
	OrderStatusCancelled:  true,
}

// OrderItem represents a single item within an order. Price is the unit
// price captured at order time and never changes with the catalog.
type OrderItem struct {
	ID        uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   string  `json:"order_id" gorm:"type:varchar(36);index"`
	ProductID string  `json:"product_id" gorm:"type:varchar(36)"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Price     float64 `json:"price"`
}

// Order represents a customer order together with its payment state.
type Order struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string      `json:"user_id" gorm:"type:varchar(36);index"`
	Items       []OrderItem `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount float64     `json:"total_amount"`

	Status        string `json:"status" gorm:"type:varchar(20);default:pending"`
	PaymentStatus string `json:"payment_status" gorm:"type:varchar(20);default:pending"`

	// Shipping information
	ShippingAddress    string `json:"shipping_address"`
	ShippingCity       string `json:"shipping_city" gorm:"type:varchar(100)"`
	ShippingPostalCode string `json:"shipping_postal_code" gorm:"type:varchar(20)"`
	ShippingCountry    string `json:"shipping_country" gorm:"type:varchar(100)"`
	PhoneNumber        string `json:"phone_number" gorm:"type:varchar(20)"`
	WhatsappNumber     string `json:"whatsapp_number" gorm:"type:varchar(20)"`

	// Delivery terms resolved from the shipping city at creation time.
	DeliveryFee           float64 `json:"delivery_fee"`
	EstimatedDeliveryDays int     `json:"estimated_delivery_days"`

	// Gateway correlation fields. MerchantReference is generated by us and
	// globally unique; TrackingID is assigned by the processor.
	TrackingID        string `json:"tracking_id" gorm:"type:varchar(64);index"`
	MerchantReference string `json:"merchant_reference" gorm:"type:varchar(64);uniqueIndex"`
	PaymentMethod     string `json:"payment_method" gorm:"type:varchar(50)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
