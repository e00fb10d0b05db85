package fields

import (
	"context"
	"encoding/json"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/validation"
)

type infoParams struct {
	Text string `json:"text" validate:"required,max=1000" jsonschema:"minLength=1,maxLength=1000"`
}

// infoHandler is a display-only block. It stores nothing and rejects values.
type infoHandler struct {
	base
}

// NewInfoHandler builds the info block handler.
func NewInfoHandler() Handler {
	return &infoHandler{base: base{fieldType: domain.FieldTypeInfo, params: &infoParams{}}}
}

func rejectValue() []validation.Node {
	return []validation.Node{validation.Field("value", "info fields do not accept values")}
}

func (h *infoHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &infoParams{})
}

func (h *infoHandler) ValidateBeforeCreate(context.Context, ValueInput) []validation.Node {
	return rejectValue()
}

func (h *infoHandler) ValidateAndCreate(context.Context, ValueInput) (*domain.AttributeValue, error) {
	return nil, validation.NewError(rejectValue())
}

func (h *infoHandler) ValidateBeforeUpdate(context.Context, ValueInput) []validation.Node {
	return rejectValue()
}

func (h *infoHandler) ValidateAndUpdate(context.Context, ValueInput) (*domain.AttributeValue, error) {
	return nil, validation.NewError(rejectValue())
}

func (h *infoHandler) Repository() Repository { return nil }
