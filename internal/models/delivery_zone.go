package models

import "time"

// Default delivery terms applied when the shipping city has no zone entry.
const (
	DefaultDeliveryFee  = 0.0
	DefaultDeliveryDays = 5
)

// DeliveryZone maps a city to its delivery fee and lead time. The order flow
// only ever reads this table.
type DeliveryZone struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	City         string    `json:"city" gorm:"uniqueIndex;type:varchar(100)" validate:"required"`
	Fee          float64   `json:"fee" validate:"gte=0"`
	DeliveryDays int       `json:"delivery_days" validate:"gt=0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
