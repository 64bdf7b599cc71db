package stock

import (
	"errors"
	"time"

	"supplychain-backend/internal/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("stock not found")

// Store owns the stock table and its append-only history. Every mutation
// writes the stock row and its history record in one transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Add increments the quantity for a key, creating the row on first add.
// Returns the new total.
func (s *Store) Add(productType, productSubtype string, quantity int) (int, error) {
	newTotal, err := s.add(productType, productSubtype, quantity)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Two first-adds for the same key raced; the row exists now, so the
		// increment path will succeed.
		newTotal, err = s.add(productType, productSubtype, quantity)
	}
	return newTotal, err
}

func (s *Store) add(productType, productSubtype string, quantity int) (int, error) {
	var newTotal int

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Stock{}).
			Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			row := models.Stock{
				ProductType:    productType,
				ProductSubtype: productSubtype,
				Quantity:       quantity,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		var row models.Stock
		if err := tx.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
			First(&row).Error; err != nil {
			return err
		}
		newTotal = row.Quantity

		added := quantity
		return tx.Create(&models.StockHistory{
			ProductType:    productType,
			ProductSubtype: productSubtype,
			Action:         models.StockActionAdded,
			Quantity:       &added,
		}).Error
	})

	return newTotal, err
}

// Set overwrites an existing key's quantity with an exact value and records
// the old and new amounts. Fails with ErrNotFound for unknown keys.
func (s *Store) Set(productType, productSubtype string, quantity int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row models.Stock
		err := tx.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		oldQuantity := row.Quantity
		if err := tx.Model(&row).UpdateColumn("quantity", quantity).Error; err != nil {
			return err
		}

		newQuantity := quantity
		return tx.Create(&models.StockHistory{
			ProductType:    productType,
			ProductSubtype: productSubtype,
			Action:         models.StockActionEdited,
			OldQuantity:    &oldQuantity,
			NewQuantity:    &newQuantity,
		}).Error
	})
}

// DeleteSubtype removes one stock row. Fails with ErrNotFound if absent.
func (s *Store) DeleteSubtype(productType, productSubtype string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row models.Stock
		err := tx.Where("product_type = ? AND product_subtype = ?", productType, productSubtype).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&row).Error; err != nil {
			return err
		}

		removed := row.Quantity
		return tx.Create(&models.StockHistory{
			ProductType:    productType,
			ProductSubtype: productSubtype,
			Action:         models.StockActionDeleted,
			Quantity:       &removed,
		}).Error
	})
}

// DeleteType removes every subtype under a product type. Fails with
// ErrNotFound when the type has no rows.
func (s *Store) DeleteType(productType string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.Stock
		if err := tx.Where("product_type = ?", productType).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNotFound
		}

		if err := tx.Where("product_type = ?", productType).Delete(&models.Stock{}).Error; err != nil {
			return err
		}

		for _, row := range rows {
			removed := row.Quantity
			if err := tx.Create(&models.StockHistory{
				ProductType:    row.ProductType,
				ProductSubtype: row.ProductSubtype,
				Action:         models.StockActionDeleted,
				Quantity:       &removed,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// All returns the full ledger as productType -> productSubtype -> quantity.
func (s *Store) All() (map[string]map[string]int, error) {
	var rows []models.Stock
	if err := s.db.Order("product_type, product_subtype").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]map[string]int)
	for _, row := range rows {
		if out[row.ProductType] == nil {
			out[row.ProductType] = make(map[string]int)
		}
		out[row.ProductType][row.ProductSubtype] = row.Quantity
	}
	return out, nil
}

// HistoryToday returns today's history records, most recent first.
func (s *Store) HistoryToday() ([]models.StockHistory, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var rows []models.StockHistory
	err := s.db.Where("created_at >= ?", startOfDay).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}
