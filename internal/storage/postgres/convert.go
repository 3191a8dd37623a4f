package postgres

import (
	"encoding/json"

	"github.com/jkaninda/duka/internal/domain"
)

// --- Product ---

func toProductModel(p *domain.Product) ProductModel {
	return ProductModel{
		ID:    p.ID,
		Title: p.Title,
		Price: p.Price,
		Sizes: marshalStrings(p.Sizes),
		Tags:  marshalStrings(p.Tags),
		Color: p.Color,
	}
}

func toProductDomain(m *ProductModel) domain.Product {
	return domain.Product{
		ID:    m.ID,
		Title: m.Title,
		Price: m.Price,
		Sizes: unmarshalStrings(m.Sizes),
		Tags:  unmarshalStrings(m.Tags),
		Color: m.Color,
	}
}

// --- Order ---

func toOrderModel(o *domain.Order) OrderModel {
	items := make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemModel{OrderID: o.ID, ProductID: it.ProductID, Size: it.Size}
	}
	return OrderModel{
		ID:        o.ID,
		Email:     o.Email,
		Status:    string(o.Status),
		Items:     items,
		CreatedAt: o.CreatedAt.UTC(),
	}
}

func toOrderDomain(m *OrderModel) *domain.Order {
	items := make([]domain.LineItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = domain.LineItem{ProductID: it.ProductID, Size: it.Size}
	}
	return &domain.Order{
		ID:        m.ID,
		Email:     m.Email,
		CreatedAt: m.CreatedAt.UTC(),
		Status:    domain.OrderStatus(m.Status),
		Items:     items,
	}
}

func marshalStrings(ss []string) JSONB {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return JSONB(b)
}

func unmarshalStrings(j JSONB) []string {
	var ss []string
	if len(j) == 0 {
		return ss
	}
	_ = json.Unmarshal(j, &ss)
	return ss
}
