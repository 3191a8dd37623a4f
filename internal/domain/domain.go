// Package domain defines the commerce entities shared by the pipeline, the
// tools and the storage backends.
package domain

import (
	"slices"
	"strings"
	"time"
)

// Product is an immutable catalog entry.
type Product struct {
	ID    string   `json:"id" yaml:"id" validate:"required"`
	Title string   `json:"title" yaml:"title" validate:"required"`
	Price float64  `json:"price" yaml:"price" validate:"gte=0"`
	Sizes []string `json:"sizes" yaml:"sizes"`
	Tags  []string `json:"tags" yaml:"tags"`
	Color string   `json:"color,omitempty" yaml:"color"`
}

// HasTag reports whether the product carries tag (case-insensitive).
func (p *Product) HasTag(tag string) bool {
	return slices.ContainsFunc(p.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

// HasSize reports whether size is one of the product's declared sizes.
func (p *Product) HasSize(size string) bool {
	return slices.ContainsFunc(p.Sizes, func(s string) bool { return strings.EqualFold(s, size) })
}

// Clone returns a deep copy so callers can never mutate cached catalog data.
func (p *Product) Clone() *Product {
	c := *p
	c.Sizes = slices.Clone(p.Sizes)
	c.Tags = slices.Clone(p.Tags)
	return &c
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderCancelled OrderStatus = "cancelled"
	OrderFulfilled OrderStatus = "fulfilled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderCancelled, OrderFulfilled:
		return true
	}
	return false
}

// LineItem references a product and the size that was ordered.
type LineItem struct {
	ProductID string `json:"product_id" yaml:"product_id"`
	Size      string `json:"size" yaml:"size"`
}

// Order is a customer order. Only Status ever changes after creation, and
// only from OrderOpen to OrderCancelled.
type Order struct {
	ID        string      `json:"id" yaml:"id" validate:"required"`
	Email     string      `json:"email" yaml:"email" validate:"required,email"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
	Status    OrderStatus `json:"status" yaml:"status"`
	Items     []LineItem  `json:"items" yaml:"items"`
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}

// OwnedBy reports whether email matches the order's email. The comparison
// ignores case and surrounding whitespace.
func (o *Order) OwnedBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(o.Email), strings.TrimSpace(email))
}
