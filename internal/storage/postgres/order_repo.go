package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/jkaninda/duka/internal/domain"
)

// OrderRepository reads orders and performs the single permitted mutation.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Get returns the order with its line items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(r.db.WithContext(ctx), strings.ToUpper(id))
}

func (r *OrderRepository) get(tx *gorm.DB, id string) (*domain.Order, error) {
	var model OrderModel
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return toOrderDomain(&model), nil
}

// Cancel transitions an open order to cancelled with a conditional UPDATE.
// Exactly one of several concurrent callers sees RowsAffected == 1.
func (r *OrderRepository) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	id = strings.ToUpper(id)
	var cancelled *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OrderModel{}).
			Where("id = ? AND status = ?", id, string(domain.OrderOpen)).
			Update("status", string(domain.OrderCancelled))
		if res.Error != nil {
			return fmt.Errorf("cancelling order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&OrderModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("checking order: %w", err)
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrOrderNotOpen
		}
		o, err := r.get(tx, id)
		if err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Insert creates orders that do not exist yet and returns how many were
// added. Existing orders keep their current status.
func (r *OrderRepository) Insert(ctx context.Context, orders []domain.Order) (int, error) {
	added := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range orders {
			var count int64
			if err := tx.Model(&OrderModel{}).Where("id = ?", orders[i].ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			model := toOrderModel(&orders[i])
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("creating order %s: %w", orders[i].ID, err)
			}
			added++
		}
		return nil
	})
	return added, err
}
