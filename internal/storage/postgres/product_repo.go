package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/jkaninda/duka/internal/domain"
)

// ProductRepository reads the product catalog.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns every product ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	var models []ProductModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	out := make([]domain.Product, len(models))
	for i := range models {
		out[i] = toProductDomain(&models[i])
	}
	return out, nil
}

// Get returns the product with the given id.
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", strings.ToUpper(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}
	p := toProductDomain(&model)
	return &p, nil
}

// Insert creates products that do not exist yet and returns how many were
// added.
func (r *ProductRepository) Insert(ctx context.Context, products []domain.Product) (int, error) {
	added := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range products {
			var count int64
			if err := tx.Model(&ProductModel{}).Where("id = ?", products[i].ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			model := toProductModel(&products[i])
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("creating product %s: %w", products[i].ID, err)
			}
			added++
		}
		return nil
	})
	return added, err
}
