package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
	DeliveryReturned  DeliveryStatus = "returned"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryInTransit, DeliveryDelivered, DeliveryCancelled, DeliveryReturned:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPartiallyPaid, PaymentPaid:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ReturnType string

const (
	ReturnFull    ReturnType = "full"
	ReturnPartial ReturnType = "partial"
)

// Order references a Stock key by (ProductType, ProductSubtype). No foreign
// key: the stock row may be deleted and recreated independently of the
// orders pointing at it.
//
// Quantity is the amount reserved at creation and stays fixed afterwards;
// ReturnedQuantity accumulates across partial returns. The outstanding
// amount (Quantity - ReturnedQuantity) is what cancel/delete restore.
type Order struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrderID        string `gorm:"size:40;not null;uniqueIndex" json:"orderId"`
	CustomerName   string `gorm:"size:100;not null" json:"customerName"`
	CustomerPhone  string `gorm:"size:30;not null" json:"customerPhone"`
	ProductType    string `gorm:"size:100;not null;index:idx_orders_stock_key" json:"productType"`
	ProductSubtype string `gorm:"size:100;not null;index:idx_orders_stock_key" json:"productSubtype"`
	Quantity       int    `gorm:"not null" json:"quantity"`

	TotalAmount   float64       `gorm:"not null" json:"totalAmount"`
	AmountPaid    float64       `gorm:"not null;default:0" json:"amountPaid"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:unpaid" json:"paymentStatus"`

	DeliveryLocation string         `gorm:"size:255;not null" json:"deliveryLocation"`
	DeliveryStatus   DeliveryStatus `gorm:"size:20;not null;default:pending;index" json:"deliveryStatus"`
	DeliveredBy      *string        `gorm:"size:100" json:"deliveredBy,omitempty"`
	DeliveredAt      *time.Time     `json:"deliveredAt,omitempty"`

	Priority Priority `gorm:"size:10;not null;default:normal" json:"priority"`
	Notes    string   `gorm:"size:500" json:"notes"`

	WorkerNotes    *string    `gorm:"size:500" json:"workerNotes,omitempty"`
	WorkerName     *string    `gorm:"size:100" json:"workerName,omitempty"`
	NotesUpdatedAt *time.Time `json:"notesUpdatedAt,omitempty"`

	ReturnedQuantity int         `gorm:"not null;default:0" json:"returnedQuantity"`
	ReturnType       *ReturnType `gorm:"size:10" json:"returnType,omitempty"`
	ReturnedAt       *time.Time  `json:"returnedAt,omitempty"`
	CancelledAt      *time.Time  `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Outstanding: units still held against inventory for this order.
func (o *Order) Outstanding() int {
	return o.Quantity - o.ReturnedQuantity
}
