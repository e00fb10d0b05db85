// Package catalog composes product listings out of the base product query and
// the per-type field handlers, and writes products together with their
// attribute values.
package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrForbidden is returned when the actor may not modify a product.
	ErrForbidden = errors.New("not allowed to modify this product")
)

// Definitions resolves field definitions. *fields.DefinitionService implements it.
type Definitions interface {
	Get(ctx context.Context, id string) (*domain.FieldDefinition, error)
	ListByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error)
}

// Handlers resolves a field type to its handler. *fields.Registry implements it.
type Handlers interface {
	Resolve(t domain.FieldType) fields.Handler
}

// Options tunes fan-out.
type Options struct {
	FilterWorkers    int
	HydrationWorkers int
}

// Service is the product query composer and product writer.
type Service struct {
	products store.ProductStorer
	tx       store.Transactor
	defs     Definitions
	handlers Handlers
	opts     Options
}

// NewService creates a Service.
func NewService(products store.ProductStorer, tx store.Transactor, defs Definitions, handlers Handlers, opts Options) *Service {
	if opts.FilterWorkers <= 0 {
		opts.FilterWorkers = 4
	}
	if opts.HydrationWorkers <= 0 {
		opts.HydrationWorkers = 8
	}
	return &Service{products: products, tx: tx, defs: defs, handlers: handlers, opts: opts}
}

// Filter is one filters[fieldId] entry.
type Filter struct {
	FieldID string
	Payload json.RawMessage
}

// Sort is one sorting[fieldId] entry.
type Sort struct {
	FieldID   string
	Direction fields.Direction
}

// ListQuery is a product listing request. Filters and Sorting keep the order
// in which the client sent them; only the first Sorting entry is applied.
type ListQuery struct {
	Page       int
	Limit      int
	Search     *string
	Status     domain.ProductStatus
	CategoryID *string
	UserID     *string
	Filters    []Filter
	Sorting    []Sort
}

// ListResult is one page of hydrated products.
type ListResult struct {
	Items      []domain.ProductWithFields `json:"items"`
	TotalCount int                        `json:"totalCount"`
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
}

// FieldValue is one element of a product's fields array. ID is set when an
// existing value is being updated. Raw keeps the whole element for the
// field's handler.
type FieldValue struct {
	ID      string
	FieldID string
	Raw     json.RawMessage
}

func (v *FieldValue) UnmarshalJSON(b []byte) error {
	var head struct {
		ID      string `json:"id"`
		FieldID string `json:"field_id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	v.ID, v.FieldID = head.ID, head.FieldID
	v.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Actor is the caller on whose behalf a product is written.
type Actor struct {
	UserID string
	Admin  bool
}

// CreateProductInput carries a new product and its attribute values.
type CreateProductInput struct {
	Title       string               `json:"title" validate:"required,max=255"`
	Description *string              `json:"description" validate:"omitnil,max=5000"`
	CategoryID  *string              `json:"category_id" validate:"omitnil,uuid"`
	ModelID     string               `json:"model_id" validate:"required,uuid"`
	Status      domain.ProductStatus `json:"status" validate:"omitempty,oneof=ACTIVE DRAFT INACTIVE BLOCKED"`
	Fields      []FieldValue         `json:"fields"`
}

// UpdateProductInput carries a partial product update. Nil pointers leave the
// column unchanged.
type UpdateProductInput struct {
	Title       *string               `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string               `json:"description" validate:"omitnil,max=5000"`
	CategoryID  *string               `json:"category_id" validate:"omitnil,uuid"`
	Status      *domain.ProductStatus `json:"status" validate:"omitnil,oneof=ACTIVE DRAFT INACTIVE BLOCKED"`
	Fields      []FieldValue          `json:"fields"`
}
