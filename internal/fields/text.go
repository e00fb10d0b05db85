package fields

import (
	"encoding/json"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

type textParams struct {
	Placeholder string `json:"placeholder,omitempty" validate:"max=255" jsonschema:"maxLength=255"`
}

type textInput struct {
	Value string `json:"value" validate:"required,max=255" jsonschema:"minLength=1,maxLength=255"`
}

type textareaInput struct {
	Value string `json:"value" validate:"required,max=1000" jsonschema:"minLength=1,maxLength=1000"`
}

// textHandler serves text and textarea. Neither filters nor sorts.
type textHandler struct {
	base
	*values[domain.StringValue]
}

func newStringValues[I any](t domain.FieldType, table valueStore[domain.StringValue], value func(*I) string) *values[domain.StringValue] {
	return &values[domain.StringValue]{
		fieldType: t,
		table:     table,
		parse: func(in ValueInput) (domain.StringValue, []validation.Node) {
			var input I
			if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
				return domain.StringValue{}, nodes
			}
			return domain.StringValue{Value: value(&input)}, nil
		},
	}
}

// NewTextHandler builds the single-line text handler.
func NewTextHandler(table *store.ValueTable[domain.StringValue]) Handler {
	return &textHandler{
		base:   base{fieldType: domain.FieldTypeText, params: &textParams{}, value: &textInput{}},
		values: newStringValues(domain.FieldTypeText, table, func(i *textInput) string { return i.Value }),
	}
}

// NewTextareaHandler builds the multi-line text handler.
func NewTextareaHandler(table *store.ValueTable[domain.StringValue]) Handler {
	return &textHandler{
		base:   base{fieldType: domain.FieldTypeTextarea, params: &textParams{}, value: &textareaInput{}},
		values: newStringValues(domain.FieldTypeTextarea, table, func(i *textareaInput) string { return i.Value }),
	}
}

func (h *textHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &textParams{})
}
