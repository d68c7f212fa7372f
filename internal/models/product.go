package models

import "gorm.io/gorm"

// Product represents an item in the store catalog. Stock is the only field
// the order flow mutates; everything else is managed by catalog CRUD.
type Product struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"required,min=3,max=100"`
	Description string  `json:"description" validate:"omitempty,max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Category    string  `json:"category" gorm:"type:varchar(100)"`
	Size        string  `json:"size" gorm:"type:varchar(20);default:one_size"`
	Condition   string  `json:"condition" gorm:"type:varchar(20);default:good"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
	IsActive    bool    `json:"is_active" gorm:"default:true"`
	Slug        string  `json:"slug" gorm:"type:varchar(255);index"`
	gorm.Model          // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}
