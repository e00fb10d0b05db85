package store

import (
	"context"

	"marketplace-service/internal/domain"
)

// ListProductsParams holds the base listing predicate plus optional id narrowing.
type ListProductsParams struct {
	Limit      int
	Offset     int
	Status     domain.ProductStatus // Empty means ACTIVE
	CategoryID *string
	UserID     *string
	Search     *string // Case-insensitive substring match on title
	// RestrictIDs limits results to ProductIDs. An empty ProductIDs then yields no rows.
	RestrictIDs bool
	ProductIDs  []string
	// OrderByIDs orders results by their position in ProductIDs instead of the default
	// promoted-then-newest order. Only meaningful with RestrictIDs.
	OrderByIDs bool
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // Returns products and total count
	ListProductIDs(ctx context.Context, params ListProductsParams) ([]string, error)         // Ignores Limit/Offset
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// FieldStorer defines the database operations for field definitions.
type FieldStorer interface {
	CreateField(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error)
	GetFieldByID(ctx context.Context, id string) (*domain.FieldDefinition, error)
	ListFieldsByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error) // Ordered by order, then created_at
	UpdateField(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error)
	DeleteField(ctx context.Context, id string) error
}

// Transactor runs fn inside a database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
