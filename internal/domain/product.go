package domain

import (
	"time"
)

// ProductStatus is the lifecycle state of an advert.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusInactive ProductStatus = "INACTIVE"
	ProductStatusBlocked  ProductStatus = "BLOCKED"
)

// Valid reports whether s is one of the known statuses.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusDraft, ProductStatusInactive, ProductStatusBlocked:
		return true
	}
	return false
}

// Product represents an advert posted by a user.
// The json tags correspond to the fields expected in API responses/requests.
type Product struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   *string       `json:"description,omitempty"` // Pointer for nullable fields
	Status        ProductStatus `json:"status"`
	CategoryID    *string       `json:"category_id,omitempty"`
	ModelID       string        `json:"model_id"`
	UserID        string        `json:"user_id"`
	PromotedUntil *time.Time    `json:"promoted_until,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// HydratedField is a field definition of the product's model together with
// the product's stored value for it (nil when the product has none).
type HydratedField struct {
	FieldDefinition
	Data *AttributeValue `json:"data"`
}

// ProductWithFields is a product plus its attribute set in field order.
type ProductWithFields struct {
	Product
	Fields []HydratedField `json:"fields"`
}
