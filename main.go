package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"duka/internal/handlers"
	"duka/internal/middleware"
	"duka/internal/models"
	"duka/internal/pesapal"
	"duka/internal/repositories"
	"duka/internal/services"
	"duka/pkg/rabbitmq"
)

// App bundles the wired application so main and the tests share one
// construction path.
type App struct {
	Fiber *fiber.App
	Auth  *services.AuthService
	MQ    *rabbitmq.Client
}

// NewApp builds the application from Viper configuration: database, gateway
// client, repositories, services, handlers and routes.
func NewApp() (*App, error) {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_DSN", "host=127.0.0.1 user=postgres password=postgres dbname=duka port=5432 sslmode=disable")
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("PESAPAL_ENVIRONMENT", pesapal.EnvSandbox)
	viper.AutomaticEnv() // Load environment variables

	// --- Database ---
	var dialector gorm.Dialector
	dsn := viper.GetString("DATABASE_DSN")
	switch driver := viper.GetString("DATABASE_DRIVER"); driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, &services.ValidationError{Message: "DATABASE_DRIVER must be postgres or sqlite, got " + driver}
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&models.Product{}, &models.User{},
		&models.Order{}, &models.OrderItem{}, &models.DeliveryZone{},
	); err != nil {
		return nil, err
	}

	// --- Payment gateway client ---
	var gateway *pesapal.Client
	if key := viper.GetString("PESAPAL_CONSUMER_KEY"); key != "" {
		gateway, err = pesapal.NewClient(pesapal.Config{
			ConsumerKey:    key,
			ConsumerSecret: viper.GetString("PESAPAL_CONSUMER_SECRET"),
			Environment:    viper.GetString("PESAPAL_ENVIRONMENT"),
			IPNID:          viper.GetString("PESAPAL_IPN_ID"),
			Timeout:        30 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	} else {
		log.Println("PESAPAL_CONSUMER_KEY not set; order creation will be rejected until the gateway is configured")
	}

	// --- RabbitMQ (optional) ---
	var mqClient *rabbitmq.Client
	if mqURL := viper.GetString("RABBITMQ_URL"); mqURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: mqURL})
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, order events disabled: %v", err)
			mqClient = nil
		}
	}

	// --- Repositories ---
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	zoneRepo := repositories.NewGORMDeliveryZoneRepository(db)

	seedDeliveryZones(zoneRepo)

	// --- Services ---
	inventoryService := services.NewInventoryService(productRepo)
	productService := services.NewProductService(productRepo)
	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))

	var publisher services.EventPublisher
	if mqClient != nil {
		publisher = mqClient
	}
	var paymentGateway services.PaymentGateway
	if gateway != nil {
		paymentGateway = gateway
	}
	orderService := services.NewOrderService(
		orderRepo, productRepo, zoneRepo, userRepo,
		inventoryService, paymentGateway, publisher,
		viper.GetString("PESAPAL_CALLBACK_URL"),
	)

	// --- Handlers ---
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	authHandler := handlers.NewAuthHandler(authService)
	paymentHandler := handlers.NewPaymentHandler(orderService, gateway)

	// --- Fiber app and routes ---
	app := fiber.New()
	app.Use(logger.New()) // Request logger

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	apiV1 := app.Group("/api/v1")

	// Public routes: auth, and the IPN callback the processor calls.
	authHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)

	// Protected routes
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	paymentHandler.RegisterAdminRoutes(protected)

	return &App{Fiber: app, Auth: authService, MQ: mqClient}, nil
}

func main() {
	application, err := NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	if application.MQ != nil {
		defer application.MQ.Close()
	}

	// --- Notification worker ---
	// Consumes the order lifecycle events the order service publishes.
	// Stands in for the confirmation/status email sender.
	if application.MQ != nil {
		go func() {
			log.Println("Starting order events consumer...")
			messageHandler := func(msg amqp.Delivery) error {
				log.Printf("Order event [%s]: %s", msg.RoutingKey, string(msg.Body))
				return nil
			}
			if consumerErr := application.MQ.ConsumeOrderEvents(messageHandler); consumerErr != nil {
				log.Printf("Failed to start order events consumer: %v", consumerErr)
			}
		}()
	}

	appPort := viper.GetString("APP_PORT")
	log.Printf("Starting server on port %s", appPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := application.Fiber.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Fiber.ShutdownWithContext(ctx); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// seedDeliveryZones inserts the default zone table on first run.
func seedDeliveryZones(repo repositories.DeliveryZoneRepository) {
	existing, err := repo.GetAll()
	if err != nil || len(existing) > 0 {
		return
	}
	zones := []models.DeliveryZone{
		{City: "Nairobi", Fee: 200, DeliveryDays: 2},
		{City: "Mombasa", Fee: 350, DeliveryDays: 3},
		{City: "Kisumu", Fee: 350, DeliveryDays: 4},
		{City: "Nakuru", Fee: 300, DeliveryDays: 3},
	}
	for i := range zones {
		if err := repo.Create(&zones[i]); err != nil {
			log.Printf("Error seeding delivery zone %s: %v", zones[i].City, err)
		}
	}
}
