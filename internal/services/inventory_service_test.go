package services_test

import (
	"sync"
	"testing"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryService_ReserveAndRelease(t *testing.T) {
	repo := repositories.NewMockProductRepository()
	require.NoError(t, repo.Create(&models.Product{ID: "p1", Name: "Tote Bag", Stock: 4, IsActive: true}))
	inventory := services.NewInventoryService(repo)

	lines := []services.ReservationLine{{ProductID: "p1", ProductName: "Tote Bag", Quantity: 3}}

	require.NoError(t, inventory.Reserve(lines))
	product, _ := repo.GetByID("p1")
	assert.Equal(t, 1, product.Stock)

	require.NoError(t, inventory.Release(lines))
	product, _ = repo.GetByID("p1")
	assert.Equal(t, 4, product.Stock)
}

func TestInventoryService_ReserveFailureNamesProduct(t *testing.T) {
	repo := repositories.NewMockProductRepository()
	require.NoError(t, repo.Create(&models.Product{ID: "p1", Name: "Tote Bag", Stock: 2, IsActive: true}))
	inventory := services.NewInventoryService(repo)

	err := inventory.Reserve([]services.ReservationLine{
		{ProductID: "p1", ProductName: "Tote Bag", Quantity: 5},
	})

	var stockErr *services.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Tote Bag", stockErr.ProductName)

	product, _ := repo.GetByID("p1")
	assert.Equal(t, 2, product.Stock)
}

func TestInventoryService_BatchFailureCompensatesEarlierLines(t *testing.T) {
	repo := repositories.NewMockProductRepository()
	require.NoError(t, repo.Create(&models.Product{ID: "p1", Name: "Tote Bag", Stock: 10, IsActive: true}))
	require.NoError(t, repo.Create(&models.Product{ID: "p2", Name: "Sun Hat", Stock: 1, IsActive: true}))
	inventory := services.NewInventoryService(repo)

	err := inventory.Reserve([]services.ReservationLine{
		{ProductID: "p1", ProductName: "Tote Bag", Quantity: 4},
		{ProductID: "p2", ProductName: "Sun Hat", Quantity: 2},
	})

	var stockErr *services.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Sun Hat", stockErr.ProductName)

	p1, _ := repo.GetByID("p1")
	p2, _ := repo.GetByID("p2")
	assert.Equal(t, 10, p1.Stock)
	assert.Equal(t, 1, p2.Stock)
}

// Two concurrent reservations whose combined quantity exceeds stock must
// not both succeed; the conditional decrement serializes on the product.
func TestInventoryService_ConcurrentReservesDoNotOversell(t *testing.T) {
	repo := repositories.NewMockProductRepository()
	require.NoError(t, repo.Create(&models.Product{ID: "p1", Name: "Tote Bag", Stock: 10, IsActive: true}))
	inventory := services.NewInventoryService(repo)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inventory.Reserve([]services.ReservationLine{
				{ProductID: "p1", ProductName: "Tote Bag", Quantity: 3},
			})
			if err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := len(successes)
	assert.LessOrEqual(t, won, 3, "at most 3 reservations of 3 units fit in stock of 10")

	product, _ := repo.GetByID("p1")
	assert.Equal(t, 10-3*won, product.Stock)
	assert.GreaterOrEqual(t, product.Stock, 0)
}
