package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"duka/internal/models"
	"duka/internal/pesapal"
	"duka/internal/repositories"

	"github.com/google/uuid"
)

// PaymentGateway is the slice of the Pesapal client the order flow uses.
type PaymentGateway interface {
	SubmitOrder(ctx context.Context, merchantRef string, amount float64, description, callbackURL string, customer pesapal.Customer) (*pesapal.SubmitResponse, error)
	GetTransactionStatus(ctx context.Context, trackingID string) (*pesapal.TransactionStatus, error)
}

// EventPublisher publishes order lifecycle events. Publishing is
// best-effort; failures are logged and never fail the request.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Routing keys for published order events.
const (
	EventOrderCreated     = "order.created"
	EventPaymentCompleted = "order.payment_completed"
	EventPaymentFailed    = "order.payment_failed"
	EventStatusUpdated    = "order.status_updated"
)

// CreateOrderItem is one requested line item.
type CreateOrderItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest carries the checkout form.
type CreateOrderRequest struct {
	ShippingAddress    string            `json:"shipping_address" validate:"required"`
	ShippingCity       string            `json:"shipping_city" validate:"required"`
	ShippingPostalCode string            `json:"shipping_postal_code"`
	ShippingCountry    string            `json:"shipping_country" validate:"required"`
	PhoneNumber        string            `json:"phone_number" validate:"required"`
	WhatsappNumber     string            `json:"whatsapp_number"`
	Items              []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderResult is returned to the caller on success; the redirect URL
// points the customer at the gateway's payment page.
type CreateOrderResult struct {
	Order       *models.Order `json:"order"`
	RedirectURL string        `json:"redirect_url"`
}

// VerificationResult merges the internal order with the gateway's
// authoritative status.
type VerificationResult struct {
	Order             *models.Order `json:"order"`
	GatewayStatusCode int           `json:"gateway_status_code"`
	GatewayStatus     string        `json:"gateway_status"`
	PaymentMethod     string        `json:"payment_method"`
}

// IPN acknowledgement outcomes. The processor's retry policy depends on
// which one we answer with.
type IPNOutcome int

const (
	IPNProcessed IPNOutcome = iota
	IPNOrderNotFound
	IPNError
)

// OrderService orchestrates order creation, payment submission and status
// reconciliation. It owns the (status, payment_status) state machine.
type OrderService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	zoneRepo    repositories.DeliveryZoneRepository
	userRepo    repositories.UserRepository
	inventory   *InventoryService
	gateway     PaymentGateway
	publisher   EventPublisher
	callbackURL string
}

// NewOrderService creates a new OrderService. publisher may be nil, in
// which case events are skipped.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	zoneRepo repositories.DeliveryZoneRepository,
	userRepo repositories.UserRepository,
	inventory *InventoryService,
	gateway PaymentGateway,
	publisher EventPublisher,
	callbackURL string,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		zoneRepo:    zoneRepo,
		userRepo:    userRepo,
		inventory:   inventory,
		gateway:     gateway,
		publisher:   publisher,
		callbackURL: callbackURL,
	}
}

// GetAllOrders retrieves all orders (admin).
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetOrdersForUser retrieves the orders of a single user.
func (s *OrderService) GetOrdersForUser(userID string) ([]models.Order, error) {
	return s.orderRepo.GetByUser(userID)
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(id string) (*models.Order, error) {
	return s.orderRepo.GetByID(id)
}

// CreateOrder runs the full creation sequence: price snapshot, delivery
// zone resolution, stock reservation, order persistence and payment
// submission. Any failure after the reservation triggers the single
// compensation path, so the caller observes either a persisted order with a
// redirect URL or no trace at all.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*CreateOrderResult, error) {
	if s.gateway == nil {
		return nil, &PaymentInitiationError{Err: errors.New("payment gateway is not configured")}
	}
	if len(req.Items) == 0 {
		return nil, &ValidationError{Message: "order must contain at least one item"}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid quantity %d for product %s", item.Quantity, item.ProductID)}
		}
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	// Snapshot unit prices and build the reservation batch.
	var (
		total      float64
		orderItems []models.OrderItem
		lines      []ReservationLine
	)
	for _, item := range req.Items {
		product, err := s.productRepo.GetByID(item.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrProductNotFound) {
				return nil, &ValidationError{Message: fmt.Sprintf("product %s not found", item.ProductID)}
			}
			return nil, fmt.Errorf("failed to load product %s: %w", item.ProductID, err)
		}
		if !product.IsActive {
			return nil, &ValidationError{Message: fmt.Sprintf("product %s is no longer available", product.Name)}
		}

		orderItems = append(orderItems, models.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		lines = append(lines, ReservationLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
		})
		total += product.Price * float64(item.Quantity)
	}

	fee, days := s.resolveDelivery(req.ShippingCity)
	total += fee

	if err := s.inventory.Reserve(lines); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:                    uuid.New().String(),
		UserID:                userID,
		Items:                 orderItems,
		TotalAmount:           total,
		Status:                models.OrderStatusPending,
		PaymentStatus:         models.PaymentStatusPending,
		ShippingAddress:       req.ShippingAddress,
		ShippingCity:          req.ShippingCity,
		ShippingPostalCode:    req.ShippingPostalCode,
		ShippingCountry:       req.ShippingCountry,
		PhoneNumber:           req.PhoneNumber,
		WhatsappNumber:        req.WhatsappNumber,
		DeliveryFee:           fee,
		EstimatedDeliveryDays: days,
	}
	order.MerchantReference = merchantReference(order.ID, now)

	if err := s.orderRepo.Create(order); err != nil {
		s.compensate(lines, "")
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	submission, err := s.gateway.SubmitOrder(ctx,
		order.MerchantReference,
		order.TotalAmount,
		fmt.Sprintf("Order %s", order.MerchantReference),
		s.callbackURL,
		pesapal.Customer{
			Email: user.Email,
			Phone: req.PhoneNumber,
			Name:  user.Username,
		},
	)
	if err != nil {
		s.compensate(lines, order.ID)
		return nil, &PaymentInitiationError{Err: err}
	}

	if err := s.orderRepo.SetTracking(order.ID, submission.TrackingID); err != nil {
		s.compensate(lines, order.ID)
		return nil, &PaymentInitiationError{Err: err}
	}
	order.TrackingID = submission.TrackingID

	s.publish(EventOrderCreated, map[string]interface{}{
		"order_id":           order.ID,
		"user_id":            order.UserID,
		"merchant_reference": order.MerchantReference,
		"total":              order.TotalAmount,
	})

	return &CreateOrderResult{Order: order, RedirectURL: submission.RedirectURL}, nil
}

// VerifyPayment pulls the gateway status for an order and applies the
// completed transition if the payment went through. No stock side effects:
// stock was decremented at creation.
func (s *OrderService) VerifyPayment(ctx context.Context, orderID string) (*VerificationResult, error) {
	if s.gateway == nil {
		return nil, errors.New("payment gateway is not configured")
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.TrackingID == "" {
		return nil, &ValidationError{Message: "order has no payment submission to verify"}
	}

	status, err := s.gateway.GetTransactionStatus(ctx, order.TrackingID)
	if err != nil {
		return nil, err
	}

	if status.StatusCode == pesapal.StatusCompleted {
		won, err := s.orderRepo.TransitionPayment(order.ID,
			models.PaymentStatusPending, models.PaymentStatusCompleted,
			models.OrderStatusProcessing, status.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if won {
			s.publish(EventPaymentCompleted, map[string]interface{}{
				"order_id":       order.ID,
				"payment_method": status.PaymentMethod,
			})
		}
		order, err = s.orderRepo.GetByID(orderID)
		if err != nil {
			return nil, err
		}
	}

	return &VerificationResult{
		Order:             order,
		GatewayStatusCode: status.StatusCode,
		GatewayStatus:     status.Description,
		PaymentMethod:     status.PaymentMethod,
	}, nil
}

// ProcessIPN reconciles an asynchronous gateway notification against the
// order state machine. The notification's own parameters are only a lookup
// trigger; the financial outcome always comes from a fresh status query.
// Safe under duplicate and concurrent delivery.
func (s *OrderService) ProcessIPN(ctx context.Context, trackingID, merchantRef string) (IPNOutcome, error) {
	if s.gateway == nil {
		return IPNError, errors.New("payment gateway is not configured")
	}
	order, err := s.findOrder(trackingID, merchantRef)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return IPNOrderNotFound, err
		}
		return IPNError, err
	}

	lookup := order.TrackingID
	if lookup == "" {
		lookup = trackingID
	}
	status, err := s.gateway.GetTransactionStatus(ctx, lookup)
	if err != nil {
		return IPNError, err
	}

	switch status.StatusCode {
	case pesapal.StatusCompleted:
		won, err := s.orderRepo.TransitionPayment(order.ID,
			models.PaymentStatusPending, models.PaymentStatusCompleted,
			models.OrderStatusProcessing, status.PaymentMethod)
		if err != nil {
			return IPNError, err
		}
		if won {
			s.publish(EventPaymentCompleted, map[string]interface{}{
				"order_id":       order.ID,
				"payment_method": status.PaymentMethod,
			})
		}

	case pesapal.StatusFailed, pesapal.StatusInvalid, pesapal.StatusReversed:
		won, err := s.orderRepo.TransitionPayment(order.ID,
			models.PaymentStatusPending, models.PaymentStatusFailed,
			models.OrderStatusCancelled, status.PaymentMethod)
		if err != nil {
			return IPNError, err
		}
		if won {
			// Only the invocation that won the transition restocks, so a
			// re-delivered failure notification cannot double-restock.
			if err := s.inventory.Release(linesFromOrder(order)); err != nil {
				log.Printf("Failed to release stock for cancelled order %s: %v", order.ID, err)
			}
			s.publish(EventPaymentFailed, map[string]interface{}{
				"order_id": order.ID,
				"status":   status.Description,
			})
		}

	default:
		// Intermediate state: acknowledge receipt, change nothing.
	}

	return IPNProcessed, nil
}

// UpdateOrderStatus updates the status of an existing order (admin path).
func (s *OrderService) UpdateOrderStatus(id string, status string) error {
	if !models.ValidOrderStatuses[status] {
		return &ValidationError{Message: fmt.Sprintf("invalid order status: %s", status)}
	}

	if err := s.orderRepo.UpdateStatus(id, status); err != nil {
		return fmt.Errorf("failed to update order status for order %s: %w", id, err)
	}

	s.publish(EventStatusUpdated, map[string]interface{}{
		"order_id": id,
		"status":   status,
	})
	return nil
}

// findOrder resolves an IPN to an order: merchant reference first, then
// tracking id.
func (s *OrderService) findOrder(trackingID, merchantRef string) (*models.Order, error) {
	if merchantRef != "" {
		if order, err := s.orderRepo.GetByMerchantReference(merchantRef); err == nil {
			return order, nil
		}
	}
	if trackingID != "" {
		return s.orderRepo.GetByTrackingID(trackingID)
	}
	return nil, fmt.Errorf("notification carries no usable reference: %w", repositories.ErrOrderNotFound)
}

// compensate is the single rollback path for a failed in-flight creation:
// release the reserved stock and delete the pending order if one was
// persisted.
func (s *OrderService) compensate(lines []ReservationLine, orderID string) {
	if err := s.inventory.Release(lines); err != nil {
		log.Printf("Compensation: failed to release reserved stock: %v", err)
	}
	if orderID != "" {
		if err := s.orderRepo.Delete(orderID); err != nil {
			log.Printf("Compensation: failed to delete pending order %s: %v", orderID, err)
		}
	}
}

func (s *OrderService) resolveDelivery(city string) (float64, int) {
	zone, err := s.zoneRepo.GetByCity(city)
	if err != nil {
		if !errors.Is(err, repositories.ErrZoneNotFound) {
			log.Printf("Delivery zone lookup failed for city %s: %v", city, err)
		}
		return models.DefaultDeliveryFee, models.DefaultDeliveryDays
	}
	return zone.Fee, zone.DeliveryDays
}

func (s *OrderService) publish(routingKey string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", routingKey, err)
		return
	}
	if err := s.publisher.Publish("order", routingKey, body); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", routingKey, err)
	}
}

// merchantReference derives a globally unique reference from the order's
// uuid and creation time. The uuid alone guarantees uniqueness; the
// timestamp keeps the reference readable on gateway dashboards.
func merchantReference(orderID string, t time.Time) string {
	return fmt.Sprintf("ORDER-%s-%d", orderID, t.Unix())
}

func linesFromOrder(order *models.Order) []ReservationLine {
	lines := make([]ReservationLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, ReservationLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}
