package realtime

// Event names match what the web clients subscribe to.
const (
	EventOrderCreated = "order-created"
	EventOrderUpdated = "order-updated"
	EventOrderDeleted = "order-deleted"
	EventStockUpdated = "stock-updated"
	EventStockDeleted = "stock-deleted"
)

// Event is one broadcast frame: a named event with a JSON-serializable
// payload. It is sent to every connected client as
// {"event": "...", "payload": ...}.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// StockUpdate is the payload of stock-updated. NewStock nil means the
// subtype entry was removed.
type StockUpdate struct {
	ProductType    string `json:"productType"`
	ProductSubtype string `json:"productSubtype"`
	NewStock       *int   `json:"newStock"`
}

// StockDelete is the payload of stock-deleted (whole product type removed).
type StockDelete struct {
	ProductType string `json:"productType"`
}

// OrderDelete is the payload of order-deleted.
type OrderDelete struct {
	ID uint `json:"id"`
}
