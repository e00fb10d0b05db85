package fields

import (
	"context"
	"encoding/json"

	"github.com/lib/pq"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

type option struct {
	Label string `json:"label" validate:"required,max=255" jsonschema:"minLength=1,maxLength=255"`
	Value string `json:"value" validate:"required,max=255" jsonschema:"minLength=1,maxLength=255"`
}

type radioParams struct {
	Radios []option `json:"radios" validate:"required,min=1,dive" jsonschema:"minItems=1"`
}

type checkboxParams struct {
	Options []option `json:"options" validate:"required,min=1,dive" jsonschema:"minItems=1"`
}

type radioInput struct {
	Value string `json:"value" validate:"required,max=255" jsonschema:"minLength=1,maxLength=255"`
}

type checkboxInput struct {
	Value []string `json:"value" validate:"required,dive,required,max=255"`
}

// choiceFilter is a set of accepted values: ["a","b"] or "a".
type choiceFilter = stringList

// radioHandler matches products whose value is in the requested set and
// sorts by value.
type radioHandler struct {
	base
	*values[domain.StringValue]
}

// NewRadioHandler builds the single-select handler.
func NewRadioHandler(table *store.ValueTable[domain.StringValue]) Handler {
	var filter choiceFilter
	return &radioHandler{
		base: base{
			fieldType: domain.FieldTypeRadio,
			params:    &radioParams{},
			value:     &radioInput{},
			filter:    &filter,
			sortable:  true,
		},
		values: newStringValues(domain.FieldTypeRadio, table, func(i *radioInput) string { return i.Value }),
	}
}

func (h *radioHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &radioParams{})
}

func (h *radioHandler) ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, raw json.RawMessage) ([]string, bool, error) {
	var accepted choiceFilter
	if err := decodeFilter(raw, &accepted); err != nil {
		return nil, false, err
	}
	if len(accepted) == 0 {
		return nil, false, nil
	}
	ids, err := h.table.ProductIDsWhere(ctx, field.ID, "value = ANY($2::text[])", pq.Array([]string(accepted)))
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (h *radioHandler) SortedProductIDs(ctx context.Context, field *domain.FieldDefinition, candidates []string, dir Direction) ([]string, error) {
	return h.sorted(ctx, field, candidates, "value", dir)
}

// checkboxHandler stores a string set and matches on overlap. Submitted
// values are not checked against params.options.
type checkboxHandler struct {
	base
	*values[domain.StringListValue]
}

// NewCheckboxHandler builds the multi-select handler.
func NewCheckboxHandler(table *store.ValueTable[domain.StringListValue]) Handler {
	var filter choiceFilter
	return &checkboxHandler{
		base: base{
			fieldType: domain.FieldTypeCheckbox,
			params:    &checkboxParams{},
			value:     &checkboxInput{},
			filter:    &filter,
		},
		values: &values[domain.StringListValue]{
			fieldType: domain.FieldTypeCheckbox,
			table:     table,
			parse: func(in ValueInput) (domain.StringListValue, []validation.Node) {
				var input checkboxInput
				if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
					return domain.StringListValue{}, nodes
				}
				return domain.StringListValue{Value: input.Value}, nil
			},
		},
	}
}

func (h *checkboxHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &checkboxParams{})
}

func (h *checkboxHandler) ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, raw json.RawMessage) ([]string, bool, error) {
	var wanted choiceFilter
	if err := decodeFilter(raw, &wanted); err != nil {
		return nil, false, err
	}
	if len(wanted) == 0 {
		return nil, false, nil
	}
	ids, err := h.table.ProductIDsWhere(ctx, field.ID, "value && $2::text[]", pq.Array([]string(wanted)))
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}
