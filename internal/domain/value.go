package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttributeValue is one product's stored value for one field definition.
// Data holds the type-specific payload (one of the *Value types below).
type AttributeValue struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	FieldID   string    `json:"field_id"`
	Type      FieldType `json:"type"`
	Data      any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringValue backs text, textarea and radio fields.
type StringValue struct {
	Value string `json:"value"`
}

// StringListValue backs checkbox and photo fields.
type StringListValue struct {
	Value []string `json:"value"`
}

// PriceValue backs price fields.
type PriceValue struct {
	Value decimal.Decimal `json:"value"`
}

// LocationValue backs location fields.
type LocationValue struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Title string  `json:"title"`
}

// CalendarValue backs calendar fields. Date2 is set for range definitions.
type CalendarValue struct {
	Date1 time.Time  `json:"date1"`
	Date2 *time.Time `json:"date2,omitempty"`
}
