package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"duka/internal/handlers"
	"duka/internal/middleware"
	"duka/internal/models"
	"duka/internal/pesapal"
	"duka/internal/repositories"
	"duka/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeGateway is an httptest stand-in for the Pesapal API. Its behavior is
// switched per test through the status fields.
type fakeGateway struct {
	server       *httptest.Server
	failSubmit   bool
	statusCode   int
	statusDesc   string
	submitCalls  int
	lastTracking string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{statusCode: pesapal.StatusCompleted, statusDesc: "Completed"}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "test-token"})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		g.submitCalls++
		if g.failSubmit {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "500",
				"error":  map[string]string{"code": "server_error", "message": "simulated outage"},
			})
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		g.lastTracking = fmt.Sprintf("track-%d", g.submitCalls)
		json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id":  g.lastTracking,
			"merchant_reference": body["id"].(string),
			"redirect_url":       "https://sandbox.pesapal.com/pay/" + g.lastTracking,
			"status":             "200",
		})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":                g.statusCode,
			"payment_status_description": g.statusDesc,
			"payment_method":             "MPESA",
		})
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

type testEnv struct {
	app         *fiber.App
	authService *services.AuthService
	productRepo repositories.ProductRepository
	orderRepo   repositories.OrderRepository
	gateway     *fakeGateway
}

// setupEnv wires the full application against an in-memory SQLite database
// and a fake gateway server.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	// A uniquely named shared-cache database keeps the whole pool on one
	// in-memory store while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.User{},
		&models.Order{}, &models.OrderItem{}, &models.DeliveryZone{},
	))

	gw := newFakeGateway(t)
	gatewayClient, err := pesapal.NewClient(pesapal.Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Environment:    pesapal.EnvSandbox,
		IPNID:          "ipn-1",
		BaseURL:        gw.server.URL,
	})
	require.NoError(t, err)

	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	zoneRepo := repositories.NewGORMDeliveryZoneRepository(db)

	require.NoError(t, zoneRepo.Create(&models.DeliveryZone{City: "Nairobi", Fee: 200, DeliveryDays: 2}))

	inventoryService := services.NewInventoryService(productRepo)
	productService := services.NewProductService(productRepo)
	authService := services.NewAuthService(userRepo, "test_jwt_secret")
	orderService := services.NewOrderService(
		orderRepo, productRepo, zoneRepo, userRepo,
		inventoryService, gatewayClient, nil,
		"https://shop.example.com/payment-complete",
	)

	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	authHandler := handlers.NewAuthHandler(authService)
	paymentHandler := handlers.NewPaymentHandler(orderService, gatewayClient)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")

	authHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	paymentHandler.RegisterAdminRoutes(protected)

	return &testEnv{
		app:         app,
		authService: authService,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		gateway:     gw,
	}
}

// registerAndLogin creates a user and returns a bearer token.
func (e *testEnv) registerAndLogin(t *testing.T) string {
	t.Helper()
	err := e.authService.RegisterUser(&models.User{
		Username: "wanjiku",
		Email:    "wanjiku@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	token, err := e.authService.LoginUser("wanjiku", "password123")
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedProduct(t *testing.T, name string, price float64, stock int) string {
	t.Helper()
	product := &models.Product{Name: name, Price: price, Stock: stock, IsActive: true}
	require.NoError(t, e.productRepo.Create(product))
	return product.ID
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestOrdersRequireAuthentication(t *testing.T) {
	env := setupEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateOrderFlow(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["redirect_url"])
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "pending", order["payment_status"])
	// 2 * 1500 + 200 delivery fee for Nairobi
	assert.Equal(t, 3200.0, order["total_amount"])

	product, err := env.productRepo.GetByID(productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 10}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	product, err := env.productRepo.GetByID(productID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	orders, err := env.orderRepo.GetAll()
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, env.gateway.submitCalls)
}

func TestCreateOrderGatewayFailureRollsBack(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)
	env.gateway.failSubmit = true

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	product, err := env.productRepo.GetByID(productID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	orders, err := env.orderRepo.GetAll()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestIPNCallbackCompletesOrder(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	order := body["order"].(map[string]interface{})
	orderID := order["id"].(string)
	merchantRef := order["merchant_reference"].(string)
	trackingID := order["tracking_id"].(string)

	// The IPN endpoint is public; the processor calls it without auth.
	ipnURL := fmt.Sprintf("/api/v1/payments/ipn?orderTrackingId=%s&orderMerchantReference=%s", trackingID, merchantRef)
	for i := 0; i < 2; i++ { // duplicate delivery must be harmless
		ipnResp := env.doJSON(t, http.MethodGet, ipnURL, "", nil)
		assert.Equal(t, http.StatusOK, ipnResp.StatusCode)
		ack := decodeBody(t, ipnResp)
		assert.Equal(t, "processed", ack["status"])
	}

	updated, err := env.orderRepo.GetByID(orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)
	assert.Equal(t, "MPESA", updated.PaymentMethod)

	// Stock stays decremented: completion has no stock side effect.
	product, err := env.productRepo.GetByID(productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestIPNCallbackFailedPaymentRestocksOnce(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	order := body["order"].(map[string]interface{})
	orderID := order["id"].(string)
	trackingID := order["tracking_id"].(string)

	env.gateway.statusCode = pesapal.StatusFailed
	env.gateway.statusDesc = "Failed"

	ipnURL := "/api/v1/payments/ipn?orderTrackingId=" + trackingID
	for i := 0; i < 3; i++ {
		ipnResp := env.doJSON(t, http.MethodGet, ipnURL, "", nil)
		assert.Equal(t, http.StatusOK, ipnResp.StatusCode)
		ipnResp.Body.Close()
	}

	updated, err := env.orderRepo.GetByID(orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)

	product, err := env.productRepo.GetByID(productID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock, "stock restored exactly once across duplicate notifications")
}

func TestIPNCallbackUnknownOrder(t *testing.T) {
	env := setupEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/v1/payments/ipn?orderTrackingId=nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ack := decodeBody(t, resp)
	assert.Equal(t, "order not found", ack["status"])
}

func TestVerifyEndpoint(t *testing.T) {
	env := setupEnv(t)
	token := env.registerAndLogin(t)
	productID := env.seedProduct(t, "Denim Jacket", 1500, 5)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"shipping_address": "123 Moi Avenue",
		"shipping_city":    "Nairobi",
		"shipping_country": "Kenya",
		"phone_number":     "0712345678",
		"items":            []map[string]interface{}{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	orderID := body["order"].(map[string]interface{})["id"].(string)

	verifyResp := env.doJSON(t, http.MethodGet, "/api/v1/orders/"+orderID+"/verify", token, nil)
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	result := decodeBody(t, verifyResp)
	assert.Equal(t, "Completed", result["gateway_status"])
	verified := result["order"].(map[string]interface{})
	assert.Equal(t, models.PaymentStatusCompleted, verified["payment_status"])
	assert.Equal(t, models.OrderStatusProcessing, verified["status"])
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	env := setupEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "newuser",
		"email":    "new@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "newuser",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
}
