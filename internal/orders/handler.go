package orders

import (
	"errors"
	"fmt"

	"supplychain-backend/internal/models"
	"supplychain-backend/internal/notify"
	"supplychain-backend/internal/realtime"
	"supplychain-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type CreateOrderRequest struct {
	OrderID          string               `json:"orderId"`
	CustomerName     string               `json:"customerName" validate:"required"`
	CustomerPhone    string               `json:"customerPhone" validate:"required"`
	ProductType      string               `json:"productType" validate:"required"`
	ProductSubtype   string               `json:"productSubtype" validate:"required"`
	Quantity         int                  `json:"quantity" validate:"required,gt=0"`
	TotalAmount      float64              `json:"totalAmount" validate:"required,gt=0"`
	AmountPaid       float64              `json:"amountPaid" validate:"gte=0,ltefield=TotalAmount"`
	PaymentStatus    models.PaymentStatus `json:"paymentStatus"`
	DeliveryLocation string               `json:"deliveryLocation" validate:"required"`
	Notes            string               `json:"notes"`
	Priority         models.Priority      `json:"priority"`
}

type UpdateDeliveryRequest struct {
	DeliveryStatus models.DeliveryStatus `json:"deliveryStatus" validate:"required"`
	DeliveredBy    *string               `json:"deliveredBy"`
}

type UpdatePaymentRequest struct {
	PaymentStatus *models.PaymentStatus `json:"paymentStatus"`
	AmountPaid    *float64              `json:"amountPaid"`
}

type UpdatePriorityRequest struct {
	Priority models.Priority `json:"priority" validate:"required"`
}

type WorkerNotesRequest struct {
	WorkerNotes string  `json:"workerNotes" validate:"required"`
	WorkerName  *string `json:"workerName"`
}

type ReturnOrderRequest struct {
	Quantity   int               `json:"quantity" validate:"required,gt=0"`
	ReturnType models.ReturnType `json:"returnType" validate:"required"`
}

// POST /api/orders
func CreateOrderHandler(store *Store, hub *realtime.Hub, notifier *notify.Notifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		order, newStock, err := store.Create(CreateOrderInput{
			OrderID:          body.OrderID,
			CustomerName:     body.CustomerName,
			CustomerPhone:    body.CustomerPhone,
			ProductType:      body.ProductType,
			ProductSubtype:   body.ProductSubtype,
			Quantity:         body.Quantity,
			TotalAmount:      body.TotalAmount,
			AmountPaid:       body.AmountPaid,
			PaymentStatus:    body.PaymentStatus,
			DeliveryLocation: body.DeliveryLocation,
			Notes:            body.Notes,
			Priority:         body.Priority,
		})
		if err != nil {
			var stockErr *InsufficientStockError
			if errors.As(err, &stockErr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":     "Insufficient stock",
					"available": stockErr.Available,
					"requested": stockErr.Requested,
				})
			}
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderCreated, Payload: order})
		hub.Broadcast(realtime.Event{Name: realtime.EventStockUpdated, Payload: realtime.StockUpdate{
			ProductType:    order.ProductType,
			ProductSubtype: order.ProductSubtype,
			NewStock:       &newStock,
		}})

		notifier.OrderCreated("New Order Created",
			fmt.Sprintf("Order %s - %d units of %s", order.OrderID, order.Quantity, order.ProductSubtype))

		return c.Status(fiber.StatusCreated).JSON(order)
	}
}

// GET /api/orders
func ListOrdersHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orders, err := store.List()
		if err != nil {
			return err
		}
		return c.JSON(orders)
	}
}

// DELETE /api/orders/:id
func DeleteOrderHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		order, change, err := store.Delete(id)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderDeleted, Payload: realtime.OrderDelete{ID: order.ID}})
		broadcastStockChange(hub, change)

		return c.JSON(fiber.Map{"message": "Order deleted successfully"})
	}
}

// PATCH /api/orders/:id/delivery
func UpdateDeliveryHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdateDeliveryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		order, err := store.UpdateDelivery(id, body.DeliveryStatus, body.DeliveredBy)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		return c.JSON(order)
	}
}

// PATCH /api/orders/:id/payment
func UpdatePaymentHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdatePaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		order, err := store.UpdatePayment(id, body.PaymentStatus, body.AmountPaid)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		return c.JSON(order)
	}
}

// PATCH /api/orders/:id/priority
func UpdatePriorityHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdatePriorityRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		order, err := store.UpdatePriority(id, body.Priority)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		return c.JSON(order)
	}
}

// PATCH /api/orders/:id/worker-notes
func WorkerNotesHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body WorkerNotesRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		order, err := store.AddWorkerNotes(id, body.WorkerNotes, body.WorkerName)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		return c.JSON(order)
	}
}

// PATCH /api/orders/:id/return
func ReturnOrderHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body ReturnOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		order, change, err := store.Return(id, body.Quantity, body.ReturnType)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		broadcastStockChange(hub, change)

		return c.JSON(order)
	}
}

// PATCH /api/orders/:id/cancel
func CancelOrderHandler(store *Store, hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		order, change, err := store.Cancel(id)
		if err != nil {
			return mapStoreError(err)
		}

		hub.Broadcast(realtime.Event{Name: realtime.EventOrderUpdated, Payload: order})
		broadcastStockChange(hub, change)

		return c.JSON(order)
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return uint(id), nil
}

func broadcastStockChange(hub *realtime.Hub, change *StockChange) {
	if change == nil {
		return
	}
	newStock := change.NewStock
	hub.Broadcast(realtime.Event{Name: realtime.EventStockUpdated, Payload: realtime.StockUpdate{
		ProductType:    change.ProductType,
		ProductSubtype: change.ProductSubtype,
		NewStock:       &newStock,
	}})
}

func mapStoreError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Order not found")
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	}
	return err
}
