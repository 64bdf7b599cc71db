package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"supplychain-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("order not found")

// ValidationError: the request was well-formed but violates a lifecycle or
// range rule. Maps to 400.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// InsufficientStockError: requested more units than the stock key holds.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available, %d requested", e.Available, e.Requested)
}

// StockChange reports a stock restoration performed as part of an order
// transition, so the handler can emit the matching stock-updated event.
type StockChange struct {
	ProductType    string
	ProductSubtype string
	NewStock       int
}

// Store owns order rows and every transition of the order lifecycle. All
// operations that touch both an order and its stock key run inside one
// transaction: either both writes commit or neither does.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

type CreateOrderInput struct {
	OrderID          string
	CustomerName     string
	CustomerPhone    string
	ProductType      string
	ProductSubtype   string
	Quantity         int
	TotalAmount      float64
	AmountPaid       float64
	PaymentStatus    models.PaymentStatus
	DeliveryLocation string
	Notes            string
	Priority         models.Priority
}

// Create reserves stock and inserts the order atomically. The decrement is a
// single conditional UPDATE guarded by quantity >= requested, so two
// concurrent creates against the same key can never both succeed past the
// remaining stock.
func (s *Store) Create(in CreateOrderInput) (*models.Order, int, error) {
	if in.PaymentStatus == "" {
		in.PaymentStatus = models.PaymentUnpaid
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.PaymentStatus.Valid() {
		return nil, 0, ValidationError("invalid payment status")
	}
	if !in.Priority.Valid() {
		return nil, 0, ValidationError("invalid priority")
	}
	if in.AmountPaid < 0 || in.AmountPaid > in.TotalAmount {
		return nil, 0, ValidationError("amountPaid must be between 0 and totalAmount")
	}

	generated := in.OrderID == ""

	order, newStock, err := s.create(in)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if !generated {
			return nil, 0, ValidationError("orderId already exists")
		}
		// Time+random collision. One fresh ID is plenty at this volume.
		order, newStock, err = s.create(in)
	}
	return order, newStock, err
}

func (s *Store) create(in CreateOrderInput) (*models.Order, int, error) {
	var (
		order    models.Order
		newStock int
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Stock{}).
			Where("product_type = ? AND product_subtype = ? AND quantity >= ?",
				in.ProductType, in.ProductSubtype, in.Quantity).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", in.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			available := 0
			var row models.Stock
			err := tx.Where("product_type = ? AND product_subtype = ?", in.ProductType, in.ProductSubtype).
				First(&row).Error
			if err == nil {
				available = row.Quantity
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return &InsufficientStockError{Available: available, Requested: in.Quantity}
		}

		orderID := in.OrderID
		if orderID == "" {
			orderID = generateOrderID()
		}

		order = models.Order{
			OrderID:          orderID,
			CustomerName:     in.CustomerName,
			CustomerPhone:    in.CustomerPhone,
			ProductType:      in.ProductType,
			ProductSubtype:   in.ProductSubtype,
			Quantity:         in.Quantity,
			TotalAmount:      in.TotalAmount,
			AmountPaid:       in.AmountPaid,
			PaymentStatus:    in.PaymentStatus,
			DeliveryLocation: in.DeliveryLocation,
			DeliveryStatus:   models.DeliveryPending,
			Priority:         in.Priority,
			Notes:            in.Notes,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		var row models.Stock
		if err := tx.Where("product_type = ? AND product_subtype = ?", in.ProductType, in.ProductSubtype).
			First(&row).Error; err != nil {
			return err
		}
		newStock = row.Quantity
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &order, newStock, nil
}

// List returns all orders, newest first.
func (s *Store) List() ([]models.Order, error) {
	var rows []models.Order
	err := s.db.Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

// Delivery-endpoint statuses. cancelled/returned go through their own
// operations because they move stock.
var deliveryTransitions = map[models.DeliveryStatus]bool{
	models.DeliveryPending:   true,
	models.DeliveryInTransit: true,
	models.DeliveryDelivered: true,
}

// UpdateDelivery moves an order along pending -> in_transit -> delivered.
// Stock is untouched: it was reserved at creation and delivery only confirms
// the goods left the business. Cancelled and returned orders are terminal
// here, and delivered orders cannot move backwards: reopening either would
// let a later cancel credit stock a second time.
func (s *Store) UpdateDelivery(id uint, status models.DeliveryStatus, deliveredBy *string) (*models.Order, error) {
	if !deliveryTransitions[status] {
		return nil, ValidationError("invalid delivery status")
	}

	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}

		switch order.DeliveryStatus {
		case models.DeliveryCancelled, models.DeliveryReturned:
			return ValidationError("cancelled or returned orders cannot change delivery status")
		case models.DeliveryDelivered:
			if status != models.DeliveryDelivered {
				return ValidationError("delivered orders cannot be reopened")
			}
		}

		updates := map[string]any{"delivery_status": status}
		if status == models.DeliveryDelivered {
			now := time.Now()
			updates["delivered_at"] = &now
			updates["delivered_by"] = deliveredBy
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}
		return loadOrder(tx, id, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdatePayment records a payment amount and/or status. When amountPaid is
// supplied the status is derived from it and any explicit status is ignored.
func (s *Store) UpdatePayment(id uint, paymentStatus *models.PaymentStatus, amountPaid *float64) (*models.Order, error) {
	if paymentStatus == nil && amountPaid == nil {
		return nil, ValidationError("paymentStatus or amountPaid is required")
	}
	if paymentStatus != nil && !paymentStatus.Valid() {
		return nil, ValidationError("invalid payment status")
	}

	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}

		updates := map[string]any{}
		if amountPaid != nil {
			if *amountPaid < 0 || *amountPaid > order.TotalAmount {
				return ValidationError("amountPaid must be between 0 and totalAmount")
			}
			updates["amount_paid"] = *amountPaid
			switch {
			case *amountPaid == 0:
				updates["payment_status"] = models.PaymentUnpaid
			case *amountPaid >= order.TotalAmount:
				updates["payment_status"] = models.PaymentPaid
			default:
				updates["payment_status"] = models.PaymentPartiallyPaid
			}
		} else {
			updates["payment_status"] = *paymentStatus
		}

		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}
		return loadOrder(tx, id, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) UpdatePriority(id uint, priority models.Priority) (*models.Order, error) {
	if !priority.Valid() {
		return nil, ValidationError("invalid priority")
	}

	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}
		if err := tx.Model(&order).Update("priority", priority).Error; err != nil {
			return err
		}
		return loadOrder(tx, id, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) AddWorkerNotes(id uint, workerNotes string, workerName *string) (*models.Order, error) {
	if strings.TrimSpace(workerNotes) == "" {
		return nil, ValidationError("workerNotes is required")
	}

	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}
		now := time.Now()
		updates := map[string]any{
			"worker_notes":     workerNotes,
			"notes_updated_at": &now,
		}
		if workerName != nil {
			updates["worker_name"] = workerName
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}
		return loadOrder(tx, id, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Return restores quantity units to the stock key and accumulates the
// order's returnedQuantity. Only delivered orders can be returned, and never
// past the outstanding amount. When the cumulative return consumes the whole
// order its status flips to returned.
func (s *Store) Return(id uint, quantity int, returnType models.ReturnType) (*models.Order, *StockChange, error) {
	if quantity <= 0 {
		return nil, nil, ValidationError("return quantity must be positive")
	}
	if returnType != models.ReturnFull && returnType != models.ReturnPartial {
		return nil, nil, ValidationError("invalid return type")
	}

	var (
		order  models.Order
		change StockChange
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}
		if order.DeliveryStatus != models.DeliveryDelivered {
			return ValidationError("only delivered orders can be returned")
		}
		if quantity > order.Outstanding() {
			return ValidationError("return quantity exceeds remaining quantity")
		}

		now := time.Now()
		// The predicate re-checks status and remainder so a concurrent
		// return cannot over-credit stock.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND delivery_status = ? AND quantity - returned_quantity >= ?",
				id, models.DeliveryDelivered, quantity).
			Updates(map[string]any{
				"returned_quantity": gorm.Expr("returned_quantity + ?", quantity),
				"return_type":       returnType,
				"returned_at":       &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ValidationError("order changed concurrently, retry the return")
		}

		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}
		if order.ReturnedQuantity >= order.Quantity {
			if err := tx.Model(&order).Update("delivery_status", models.DeliveryReturned).Error; err != nil {
				return err
			}
			order.DeliveryStatus = models.DeliveryReturned
		}

		newStock, err := restoreStock(tx, order.ProductType, order.ProductSubtype, quantity)
		if err != nil {
			return err
		}
		change = StockChange{
			ProductType:    order.ProductType,
			ProductSubtype: order.ProductSubtype,
			NewStock:       newStock,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, &change, nil
}

// Cancel rejects delivered, returned and already-cancelled orders, and
// restores the full outstanding quantity exactly once.
func (s *Store) Cancel(id uint) (*models.Order, *StockChange, error) {
	var (
		order  models.Order
		change *StockChange
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}
		switch order.DeliveryStatus {
		case models.DeliveryCancelled:
			return ValidationError("order is already cancelled")
		case models.DeliveryDelivered, models.DeliveryReturned:
			return ValidationError("delivered or returned orders cannot be cancelled")
		}

		now := time.Now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND delivery_status IN ?", id,
				[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryInTransit}).
			Updates(map[string]any{
				"delivery_status": models.DeliveryCancelled,
				"cancelled_at":    &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ValidationError("order changed concurrently, retry the cancel")
		}

		newStock, err := restoreStock(tx, order.ProductType, order.ProductSubtype, order.Outstanding())
		if err != nil {
			return err
		}
		change = &StockChange{
			ProductType:    order.ProductType,
			ProductSubtype: order.ProductSubtype,
			NewStock:       newStock,
		}
		return loadOrder(tx, id, &order)
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, change, nil
}

// Delete removes the order row. Stock is restored only for orders still
// holding a reservation (pending/in_transit): delivered goods are gone,
// returned goods were credited by the return, and cancelled orders were
// credited at cancellation.
func (s *Store) Delete(id uint) (*models.Order, *StockChange, error) {
	var (
		order  models.Order
		change *StockChange
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrder(tx, id, &order); err != nil {
			return err
		}

		if order.DeliveryStatus == models.DeliveryPending || order.DeliveryStatus == models.DeliveryInTransit {
			newStock, err := restoreStock(tx, order.ProductType, order.ProductSubtype, order.Outstanding())
			if err != nil {
				return err
			}
			change = &StockChange{
				ProductType:    order.ProductType,
				ProductSubtype: order.ProductSubtype,
				NewStock:       newStock,
			}
		}

		return tx.Delete(&models.Order{}, order.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, change, nil
}

func loadOrder(tx *gorm.DB, id uint, out *models.Order) error {
	err := tx.First(out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// restoreStock credits quantity units back to a stock key, recreating the
// row if the key was deleted while the order was in flight.
func restoreStock(tx *gorm.DB, productType, productSubtype string, quantity int) (int, error) {
	if quantity <= 0 {
		var row models.Stock
		err := tx.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return row.Quantity, err
	}

	res := tx.Model(&models.Stock{}).
		Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		row := models.Stock{
			ProductType:    productType,
			ProductSubtype: productSubtype,
			Quantity:       quantity,
		}
		if err := tx.Create(&row).Error; err != nil {
			return 0, err
		}
		return quantity, nil
	}

	var row models.Stock
	if err := tx.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
		First(&row).Error; err != nil {
		return 0, err
	}
	return row.Quantity, nil
}

// Order IDs look like ORD-1712345678901-9FK2A: a millisecond timestamp plus
// a short random suffix. Collisions are handled by a single retry in Create.
func generateOrderID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:5]
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}
