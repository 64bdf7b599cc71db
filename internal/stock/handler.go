package stock

import (
	"errors"

	"supplychain-backend/internal/realtime"
	"supplychain-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type AddStockRequest struct {
	ProductType    string `json:"productType" validate:"required"`
	ProductSubtype string `json:"productSubtype" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
}

type SetStockRequest struct {
	ProductType    string `json:"productType" validate:"required"`
	ProductSubtype string `json:"productSubtype" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gte=0"`
}

type DeleteStockRequest struct {
	ProductType    string `json:"productType" validate:"required"`
	ProductSubtype string `json:"productSubtype" validate:"required"`
}

// POST /api/stock
func AddStockHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AddStockRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		newStock, err := store.Add(body.ProductType, body.ProductSubtype, body.Quantity)
		if err != nil {
			return err
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventStockUpdated, Payload: realtime.StockUpdate{
			ProductType:    body.ProductType,
			ProductSubtype: body.ProductSubtype,
			NewStock:       &newStock,
		}})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":        "Stock updated successfully",
			"productType":    body.ProductType,
			"productSubtype": body.ProductSubtype,
			"quantity":       body.Quantity,
			"newStock":       newStock,
		})
	}
}

// PUT /api/stock
func SetStockHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SetStockRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := store.Set(body.ProductType, body.ProductSubtype, body.Quantity); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Stock not found")
			}
			return err
		}

		newStock := body.Quantity
		hub.Broadcast(realtime.Event{Name: realtime.EventStockUpdated, Payload: realtime.StockUpdate{
			ProductType:    body.ProductType,
			ProductSubtype: body.ProductSubtype,
			NewStock:       &newStock,
		}})

		return c.JSON(fiber.Map{
			"message":        "Stock updated successfully",
			"productType":    body.ProductType,
			"productSubtype": body.ProductSubtype,
			"quantity":       body.Quantity,
		})
	}
}

// DELETE /api/stock
func DeleteSubtypeHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DeleteStockRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := store.DeleteSubtype(body.ProductType, body.ProductSubtype); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Stock not found")
			}
			return err
		}

		// NewStock nil tells clients to drop the subtype entry.
		hub.Broadcast(realtime.Event{Name: realtime.EventStockUpdated, Payload: realtime.StockUpdate{
			ProductType:    body.ProductType,
			ProductSubtype: body.ProductSubtype,
			NewStock:       nil,
		}})

		return c.JSON(fiber.Map{
			"message":        "Stock subtype deleted successfully",
			"productType":    body.ProductType,
			"productSubtype": body.ProductSubtype,
		})
	}
}

// DELETE /api/stock/:productType
func DeleteTypeHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productType := c.Params("productType")
		if productType == "" {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product type")
		}

		if err := store.DeleteType(productType); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Stock type not found")
			}
			return err
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventStockDeleted, Payload: realtime.StockDelete{
			ProductType: productType,
		}})

		return c.JSON(fiber.Map{
			"message":     "Product type deleted successfully",
			"productType": productType,
		})
	}
}

// GET /api/stock
func GetStockHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		all, err := store.All()
		if err != nil {
			return err
		}
		return c.JSON(all)
	}
}

// GET /api/stock/history
func GetStockHistoryHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := store.HistoryToday()
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}
