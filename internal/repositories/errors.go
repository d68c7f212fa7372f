package repositories

import "errors"

// Sentinel errors shared by all repository implementations. Services wrap
// these into user-facing typed errors.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrZoneNotFound      = errors.New("delivery zone not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)
