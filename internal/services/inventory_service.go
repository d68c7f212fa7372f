package services

import (
	"errors"
	"fmt"
	"log"

	"duka/internal/repositories"
)

// ReservationLine is one product/quantity pair in a reservation batch.
type ReservationLine struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// InventoryService reserves and releases stock for order line items.
// Per-product atomicity comes from the repository's conditional decrement;
// batch atomicity comes from compensating already-applied decrements when a
// later line fails.
type InventoryService struct {
	productRepo repositories.ProductRepository
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(productRepo repositories.ProductRepository) *InventoryService {
	return &InventoryService{
		productRepo: productRepo,
	}
}

// Reserve decrements stock for every line, all-or-nothing. If any line
// cannot be satisfied the decrements already applied are rolled back and an
// InsufficientStockError names the offending product.
func (s *InventoryService) Reserve(lines []ReservationLine) error {
	for i, line := range lines {
		err := s.productRepo.DecrementStock(line.ProductID, line.Quantity)
		if err == nil {
			continue
		}

		// Compensate the lines reserved so far before reporting.
		s.rollback(lines[:i])

		if errors.Is(err, repositories.ErrInsufficientStock) {
			return &InsufficientStockError{ProductName: line.ProductName}
		}
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	return nil
}

// Release restores stock for every line. Used exactly once per cancelled or
// rolled-back order; the caller guarantees that via the guarded payment
// transition.
func (s *InventoryService) Release(lines []ReservationLine) error {
	var firstErr error
	for _, line := range lines {
		if err := s.productRepo.IncrementStock(line.ProductID, line.Quantity); err != nil {
			log.Printf("Failed to release %d units of product %s: %v", line.Quantity, line.ProductID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *InventoryService) rollback(lines []ReservationLine) {
	for _, line := range lines {
		if err := s.productRepo.IncrementStock(line.ProductID, line.Quantity); err != nil {
			log.Printf("Failed to roll back reservation of %d units of product %s: %v",
				line.Quantity, line.ProductID, err)
		}
	}
}
