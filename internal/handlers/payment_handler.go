package handlers

import (
	"log"

	"duka/internal/pesapal"
	"duka/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles the public IPN callback and IPN URL registration.
type PaymentHandler struct {
	service *services.OrderService
	gateway *pesapal.Client
}

// NewPaymentHandler creates a new PaymentHandler. gateway may be nil when
// IPN registration is not exposed.
func NewPaymentHandler(service *services.OrderService, gateway *pesapal.Client) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		gateway: gateway,
	}
}

// RegisterRoutes registers the public callback route. The IPN endpoint must
// stay unauthenticated: the processor calls it directly.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Get("/ipn", h.HandleIPN)
}

// RegisterAdminRoutes registers the deployment-time IPN registration route
// behind authentication.
func (h *PaymentHandler) RegisterAdminRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/register-ipn", h.HandleRegisterIPN)
}

// HandleIPN reconciles an asynchronous payment notification. The processor
// may call this zero, one, or many times per event; the response body tells
// it whether to retry.
func (h *PaymentHandler) HandleIPN(c *fiber.Ctx) error {
	trackingID := c.Query("orderTrackingId", c.Query("OrderTrackingId"))
	merchantRef := c.Query("orderMerchantReference", c.Query("OrderMerchantReference"))

	outcome, err := h.service.ProcessIPN(c.Context(), trackingID, merchantRef)
	switch outcome {
	case services.IPNProcessed:
		return c.JSON(fiber.Map{
			"orderTrackingId":        trackingID,
			"orderMerchantReference": merchantRef,
			"status":                 "processed",
		})
	case services.IPNOrderNotFound:
		log.Printf("IPN for unknown order (tracking=%s, merchantRef=%s)", trackingID, merchantRef)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"orderTrackingId":        trackingID,
			"orderMerchantReference": merchantRef,
			"status":                 "order not found",
		})
	default:
		log.Printf("IPN processing failed (tracking=%s, merchantRef=%s): %v", trackingID, merchantRef, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"orderTrackingId":        trackingID,
			"orderMerchantReference": merchantRef,
			"status":                 "error",
		})
	}
}

// HandleRegisterIPN registers the callback URL with the gateway. Idempotent
// on the processor side; intended for deployment setup, not request flow.
func (h *PaymentHandler) HandleRegisterIPN(c *fiber.Ctx) error {
	if h.gateway == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": "Payment gateway is not configured",
		})
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "A callback URL is required",
		})
	}

	reg, err := h.gateway.RegisterIPN(c.Context(), req.URL)
	if err != nil {
		log.Printf("Failed to register IPN URL %s: %v", req.URL, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "Could not register IPN URL",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"ipn_id": reg.ID,
		"url":    reg.URL,
	})
}
