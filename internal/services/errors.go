package services

import "fmt"

// ValidationError is a user-visible request error raised before any side
// effects are applied.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientStockError aborts order creation before any order row is
// persisted; earlier decrements in the same batch are rolled back.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

// PaymentInitiationError reports a failed payment submission. By the time
// it is returned, the reserved stock has been released and the pending
// order deleted.
type PaymentInitiationError struct {
	Err error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed: %v", e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }
