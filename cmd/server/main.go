package main

import (
	"errors"
	"strings"

	"supplychain-backend/internal/config"
	"supplychain-backend/internal/database"
	"supplychain-backend/internal/logging"
	"supplychain-backend/internal/notify"
	"supplychain-backend/internal/orders"
	"supplychain-backend/internal/realtime"
	"supplychain-backend/internal/stock"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	database.Init(cfg)
	db := database.DB

	hub := realtime.NewHub(log)
	go hub.Run()

	stockStore := stock.NewStore(db)
	orderStore := orders.NewStore(db)
	notifier := notify.New(cfg, db, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	origins := strings.Split(cfg.CORSOrigins, ",")
	app.Get("/ws", realtime.UpgradeMiddleware(origins), realtime.Handler(hub))

	api := app.Group("/api")

	api.Get("/stock", stock.GetStockHandler(stockStore))
	api.Get("/stock/history", stock.GetStockHistoryHandler(stockStore))
	api.Post("/stock", stock.AddStockHandler(stockStore, hub))
	api.Put("/stock", stock.SetStockHandler(stockStore, hub))
	api.Delete("/stock", stock.DeleteSubtypeHandler(stockStore, hub))
	api.Delete("/stock/:productType", stock.DeleteTypeHandler(stockStore, hub))

	api.Get("/orders", orders.ListOrdersHandler(orderStore))
	api.Post("/orders", orders.CreateOrderHandler(orderStore, hub, notifier))
	api.Delete("/orders/:id", orders.DeleteOrderHandler(orderStore, hub))
	api.Patch("/orders/:id/delivery", orders.UpdateDeliveryHandler(orderStore, hub))
	api.Patch("/orders/:id/payment", orders.UpdatePaymentHandler(orderStore, hub))
	api.Patch("/orders/:id/priority", orders.UpdatePriorityHandler(orderStore, hub))
	api.Patch("/orders/:id/worker-notes", orders.WorkerNotesHandler(orderStore, hub))
	api.Patch("/orders/:id/return", orders.ReturnOrderHandler(orderStore, hub))
	api.Patch("/orders/:id/cancel", orders.CancelOrderHandler(orderStore, hub))

	api.Post("/subscriptions", notify.SubscribeHandler(db))

	log.WithField("port", cfg.HTTPPort).Info("server starting")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// Expected failures arrive as *fiber.Error and go back to the client as-is.
// Anything else is an internal fault: log it, answer 500.
func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		log.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).WithError(err).Error("unhandled error")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
