package domain

import (
	"encoding/json"
	"time"
)

// FieldType identifies the handler responsible for a field definition.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypePrice    FieldType = "price"
	FieldTypeLocation FieldType = "location"
	FieldTypeCalendar FieldType = "calendar"
	FieldTypePhoto    FieldType = "photo"
	// FieldTypeInfo is a display-only block. It has no value storage.
	FieldTypeInfo FieldType = "info"
)

// FieldDefinition is one admin-authored attribute bound to a product model.
type FieldDefinition struct {
	ID         string          `json:"id"`
	ModelID    string          `json:"model_id"`
	Title      string          `json:"title"`
	Type       FieldType       `json:"type"`
	Section    string          `json:"section"`
	Params     json.RawMessage `json:"params"`
	Filterable bool            `json:"filterable"`
	Order      int             `json:"order"`
	Required   bool            `json:"required"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
