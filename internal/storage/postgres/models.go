package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB is a json.RawMessage that implements the driver.Valuer and
// sql.Scanner interfaces for GORM JSON columns. SQLite stores it as text.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "[]", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", src)
	}
	return nil
}

// ProductModel maps to the "products" table.
type ProductModel struct {
	ID        string  `gorm:"primaryKey"`
	Title     string  `gorm:"not null"`
	Price     float64 `gorm:"type:numeric(12,2);not null"`
	Sizes     JSONB   `gorm:"type:jsonb;not null;default:'[]'"`
	Tags      JSONB   `gorm:"type:jsonb;not null;default:'[]'"`
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProductModel) TableName() string { return "products" }

// OrderModel maps to the "orders" table. Status is the only mutable column.
type OrderModel struct {
	ID        string           `gorm:"primaryKey"`
	Email     string           `gorm:"not null;index"`
	Status    string           `gorm:"not null;default:'open';index"`
	Items     []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"not null"`
	UpdatedAt time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel maps to the "order_items" table.
type OrderItemModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"not null;index"`
	ProductID string `gorm:"not null"`
	Size      string
}

func (OrderItemModel) TableName() string { return "order_items" }
