package fields

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

type priceParams struct {
	Currency string `json:"currency" validate:"required,len=3,alpha,uppercase" jsonschema:"pattern=^[A-Z]{3}$"`
}

// priceScale matches the NUMERIC(14, 2) column; lt on priceInput keeps the
// integer part within its 12 digits.
const priceScale = 2

type priceInput struct {
	Value decimal.Decimal `json:"value" validate:"required,gt=0,lt=1000000000000"`
}

// priceFilter matches from <= value < to. A missing from means 0, a missing
// to leaves the range open.
type priceFilter struct {
	From *decimal.Decimal `json:"from,omitempty"`
	To   *decimal.Decimal `json:"to,omitempty"`
}

type priceHandler struct {
	base
	*values[domain.PriceValue]
}

// NewPriceHandler builds the price handler.
func NewPriceHandler(table *store.ValueTable[domain.PriceValue]) Handler {
	return &priceHandler{
		base: base{
			fieldType: domain.FieldTypePrice,
			params:    &priceParams{},
			value:     &priceInput{},
			filter:    &priceFilter{},
			sortable:  true,
		},
		values: &values[domain.PriceValue]{
			fieldType: domain.FieldTypePrice,
			table:     table,
			parse: func(in ValueInput) (domain.PriceValue, []validation.Node) {
				var input priceInput
				if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
					return domain.PriceValue{}, nodes
				}
				if !input.Value.Equal(input.Value.Round(priceScale)) {
					return domain.PriceValue{}, []validation.Node{
						validation.Field("value", fmt.Sprintf("value must have at most %d decimal places", priceScale)),
					}
				}
				return domain.PriceValue{Value: input.Value}, nil
			},
		},
	}
}

func (h *priceHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &priceParams{})
}

func (h *priceHandler) ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, raw json.RawMessage) ([]string, bool, error) {
	var f priceFilter
	if err := decodeFilter(raw, &f); err != nil {
		return nil, false, err
	}
	from := decimal.Zero
	if f.From != nil {
		from = *f.From
	}
	predicate := "value >= $2"
	args := []any{from}
	if f.To != nil {
		predicate += " AND value < $3"
		args = append(args, *f.To)
	}
	ids, err := h.table.ProductIDsWhere(ctx, field.ID, predicate, args...)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (h *priceHandler) SortedProductIDs(ctx context.Context, field *domain.FieldDefinition, candidates []string, dir Direction) ([]string, error) {
	return h.sorted(ctx, field, candidates, "value", dir)
}
