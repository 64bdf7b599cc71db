package models

import "time"

// Stock: current on-hand quantity for one (productType, productSubtype) key.
// The key pair is unique; quantity never goes below zero (guarded by the
// conditional UPDATEs in the stock and orders stores).
type Stock struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ProductType    string    `gorm:"size:100;not null;uniqueIndex:idx_stock_key" json:"productType"`
	ProductSubtype string    `gorm:"size:100;not null;uniqueIndex:idx_stock_key" json:"productSubtype"`
	Quantity       int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type StockAction string

const (
	StockActionAdded   StockAction = "added"
	StockActionEdited  StockAction = "edited"
	StockActionDeleted StockAction = "deleted"
)

// StockHistory: append-only record of every stock mutation. Rows are never
// updated or deleted by the application.
type StockHistory struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ProductType    string      `gorm:"size:100;not null;index" json:"productType"`
	ProductSubtype string      `gorm:"size:100;not null" json:"productSubtype"`
	Action         StockAction `gorm:"size:20;not null" json:"action"`
	Quantity       *int        `json:"quantity,omitempty"`    // amount added (action=added) or removed (action=deleted)
	OldQuantity    *int        `json:"oldQuantity,omitempty"` // action=edited
	NewQuantity    *int        `json:"newQuantity,omitempty"` // action=edited
	CreatedAt      time.Time   `gorm:"index" json:"timestamp"`
}
