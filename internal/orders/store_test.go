package orders

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"supplychain-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// The busy timeout lets concurrent transactions queue instead of failing.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "orders.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Stock{}, &models.StockHistory{}, &models.Order{}))
	return db
}

func seedStock(t *testing.T, db *gorm.DB, productType, productSubtype string, quantity int) {
	t.Helper()
	require.NoError(t, db.Create(&models.Stock{
		ProductType:    productType,
		ProductSubtype: productSubtype,
		Quantity:       quantity,
	}).Error)
}

func stockQuantity(t *testing.T, db *gorm.DB, productType, productSubtype string) int {
	t.Helper()
	var row models.Stock
	require.NoError(t, db.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
		First(&row).Error)
	return row.Quantity
}

func testInput(quantity int) CreateOrderInput {
	return CreateOrderInput{
		CustomerName:     "Ama Mensah",
		CustomerPhone:    "+233201234567",
		ProductType:      "Wig",
		ProductSubtype:   "Straight",
		Quantity:         quantity,
		TotalAmount:      300,
		DeliveryLocation: "Accra",
	}
}

func TestCreateDeductsStock(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, newStock, err := store.Create(testInput(3))
	require.NoError(t, err)

	assert.Equal(t, 7, newStock)
	assert.Equal(t, 7, stockQuantity(t, db, "Wig", "Straight"))
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, models.DeliveryPending, order.DeliveryStatus)
	assert.Equal(t, models.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, models.PriorityNormal, order.Priority)
	assert.True(t, strings.HasPrefix(order.OrderID, "ORD-"))
}

func TestCreateInsufficientStockLeavesStockUnchanged(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 2)
	store := NewStore(db)

	_, _, err := store.Create(testInput(5))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 2, stockQuantity(t, db, "Wig", "Straight"))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateUnknownStockKey(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, _, err := store.Create(testInput(1))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
}

func TestCreateRejectsDuplicateSuppliedOrderID(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	in := testInput(1)
	in.OrderID = "ORD-FIXED"
	_, _, err := store.Create(in)
	require.NoError(t, err)

	_, _, err = store.Create(in)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	// The failed attempt must not leak its stock deduction.
	assert.Equal(t, 9, stockQuantity(t, db, "Wig", "Straight"))
}

func TestCreateRejectsAmountPaidOverTotal(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	in := testInput(2) // totalAmount 300
	in.AmountPaid = 400
	_, _, err := store.Create(in)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 10, stockQuantity(t, db, "Wig", "Straight"))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSequentialCreatesCannotOversell(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	_, _, err := store.Create(testInput(6))
	require.NoError(t, err)

	_, _, err = store.Create(testInput(6))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Available)

	_, newStock, err := store.Create(testInput(4))
	require.NoError(t, err)
	assert.Equal(t, 0, newStock)
}

func TestConcurrentCreatesCannotOversell(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	const workers = 5
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Create(testInput(3))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
	}

	// Only three 3-unit orders fit into 10; the losers must not have
	// deducted anything.
	assert.Equal(t, 3, created)
	assert.Equal(t, 1, stockQuantity(t, db, "Wig", "Straight"))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestUpdateDelivery(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(2))
	require.NoError(t, err)

	order, err = store.UpdateDelivery(order.ID, models.DeliveryInTransit, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryInTransit, order.DeliveryStatus)
	assert.Nil(t, order.DeliveredAt)

	courier := "Kofi"
	order, err = store.UpdateDelivery(order.ID, models.DeliveryDelivered, &courier)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, order.DeliveryStatus)
	require.NotNil(t, order.DeliveredAt)
	require.NotNil(t, order.DeliveredBy)
	assert.Equal(t, "Kofi", *order.DeliveredBy)

	// Delivery never moves stock.
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))

	// cancelled/returned go through their own operations.
	_, err = store.UpdateDelivery(order.ID, models.DeliveryCancelled, nil)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateDeliveryCannotReopenClosedOrders(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	var verr ValidationError

	// Cancelled order: flipping it back to pending would let a second cancel
	// credit its stock again.
	cancelled, _, err := store.Create(testInput(4))
	require.NoError(t, err)
	_, _, err = store.Cancel(cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stockQuantity(t, db, "Wig", "Straight"))

	_, err = store.UpdateDelivery(cancelled.ID, models.DeliveryPending, nil)
	require.ErrorAs(t, err, &verr)
	_, _, err = store.Cancel(cancelled.ID)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 10, stockQuantity(t, db, "Wig", "Straight"))

	// Delivered order: the goods left, it cannot move backwards to a status
	// that cancel/delete would restore from.
	delivered, _, err := store.Create(testInput(2))
	require.NoError(t, err)
	_, err = store.UpdateDelivery(delivered.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)
	_, err = store.UpdateDelivery(delivered.ID, models.DeliveryPending, nil)
	require.ErrorAs(t, err, &verr)
	_, err = store.UpdateDelivery(delivered.ID, models.DeliveryInTransit, nil)
	require.ErrorAs(t, err, &verr)

	// Fully returned order is terminal too.
	returned, _, err := store.Create(testInput(2))
	require.NoError(t, err)
	_, err = store.UpdateDelivery(returned.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)
	_, _, err = store.Return(returned.ID, 2, models.ReturnFull)
	require.NoError(t, err)
	_, err = store.UpdateDelivery(returned.ID, models.DeliveryPending, nil)
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))
}

func TestUpdateDeliveryUnknownOrder(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, err := store.UpdateDelivery(999, models.DeliveryInTransit, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePaymentDerivesStatusFromAmount(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(2)) // totalAmount 300
	require.NoError(t, err)

	paid := 120.0
	order, err = store.UpdatePayment(order.ID, nil, &paid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartiallyPaid, order.PaymentStatus)
	assert.Equal(t, 120.0, order.AmountPaid)

	paid = 300
	order, err = store.UpdatePayment(order.ID, nil, &paid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)

	paid = 0
	order, err = store.UpdatePayment(order.ID, nil, &paid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, order.PaymentStatus)

	// amountPaid wins over an explicitly supplied status.
	explicit := models.PaymentUnpaid
	paid = 300
	order, err = store.UpdatePayment(order.ID, &explicit, &paid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
}

func TestUpdatePaymentRejectsOutOfRange(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(2))
	require.NoError(t, err)

	over := 301.0
	_, err = store.UpdatePayment(order.ID, nil, &over)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = store.UpdatePayment(order.ID, nil, nil)
	assert.ErrorAs(t, err, &verr)
}

func TestAddWorkerNotes(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(1))
	require.NoError(t, err)

	name := "Efua"
	order, err = store.AddWorkerNotes(order.ID, "ready for pickup", &name)
	require.NoError(t, err)
	require.NotNil(t, order.WorkerNotes)
	assert.Equal(t, "ready for pickup", *order.WorkerNotes)
	assert.NotNil(t, order.NotesUpdatedAt)

	_, err = store.AddWorkerNotes(order.ID, "   ", nil)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReturnLifecycle(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(3))
	require.NoError(t, err)
	assert.Equal(t, 7, stockQuantity(t, db, "Wig", "Straight"))

	_, err = store.UpdateDelivery(order.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)

	order, change, err := store.Return(order.ID, 1, models.ReturnPartial)
	require.NoError(t, err)
	assert.Equal(t, 1, order.ReturnedQuantity)
	assert.Equal(t, 2, order.Outstanding())
	assert.Equal(t, models.DeliveryDelivered, order.DeliveryStatus)
	require.NotNil(t, change)
	assert.Equal(t, 8, change.NewStock)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))

	// Returning the rest flips the order to returned.
	order, change, err = store.Return(order.ID, 2, models.ReturnFull)
	require.NoError(t, err)
	assert.Equal(t, 3, order.ReturnedQuantity)
	assert.Equal(t, models.DeliveryReturned, order.DeliveryStatus)
	assert.Equal(t, 10, change.NewStock)

	// A fully returned order can no longer be cancelled.
	_, _, err = store.Cancel(order.ID)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 10, stockQuantity(t, db, "Wig", "Straight"))
}

func TestReturnRejectsNonDelivered(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(2))
	require.NoError(t, err)

	_, _, err = store.Return(order.ID, 1, models.ReturnPartial)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))
}

func TestReturnRejectsOverQuantity(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(3))
	require.NoError(t, err)
	_, err = store.UpdateDelivery(order.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)

	_, _, err = store.Return(order.ID, 4, models.ReturnFull)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)

	// Neither stock nor order changed.
	assert.Equal(t, 7, stockQuantity(t, db, "Wig", "Straight"))
	var row models.Order
	require.NoError(t, db.First(&row, order.ID).Error)
	assert.Zero(t, row.ReturnedQuantity)
}

func TestCancelRestoresStockExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(4))
	require.NoError(t, err)
	assert.Equal(t, 6, stockQuantity(t, db, "Wig", "Straight"))

	order, change, err := store.Cancel(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCancelled, order.DeliveryStatus)
	assert.NotNil(t, order.CancelledAt)
	require.NotNil(t, change)
	assert.Equal(t, 10, change.NewStock)

	_, _, err = store.Cancel(order.ID)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 10, stockQuantity(t, db, "Wig", "Straight"))
}

func TestCancelRejectsDelivered(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	order, _, err := store.Create(testInput(2))
	require.NoError(t, err)
	_, err = store.UpdateDelivery(order.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)

	_, _, err = store.Cancel(order.ID)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))
}

func TestDeleteRestoresOnlyHeldReservations(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	// Pending order: deletion releases its reservation.
	pending, _, err := store.Create(testInput(3))
	require.NoError(t, err)
	_, change, err := store.Delete(pending.ID)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, 10, change.NewStock)

	// Delivered order: the goods are gone, nothing to restore.
	delivered, _, err := store.Create(testInput(2))
	require.NoError(t, err)
	_, err = store.UpdateDelivery(delivered.ID, models.DeliveryDelivered, nil)
	require.NoError(t, err)
	_, change, err = store.Delete(delivered.ID)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))

	// Cancelled order: stock came back at cancellation, deletion must not
	// credit it a second time.
	cancelled, _, err := store.Create(testInput(2))
	require.NoError(t, err)
	_, _, err = store.Cancel(cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))
	_, change, err = store.Delete(cancelled.ID)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, 8, stockQuantity(t, db, "Wig", "Straight"))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteUnknownOrder(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, _, err := store.Delete(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "Wig", "Straight", 10)
	store := NewStore(db)

	first, _, err := store.Create(testInput(1))
	require.NoError(t, err)
	second, _, err := store.Create(testInput(1))
	require.NoError(t, err)

	orders, err := store.List()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}
