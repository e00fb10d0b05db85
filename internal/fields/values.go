package fields

import (
	"context"
	"errors"
	"fmt"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// valueStore is the slice of *store.ValueTable[T] the handlers use.
type valueStore[T any] interface {
	Create(ctx context.Context, productID, fieldID string, payload T) (*store.ValueRow[T], error)
	Update(ctx context.Context, id, productID, fieldID string, payload T) (*store.ValueRow[T], error)
	GetByFieldAndProduct(ctx context.Context, fieldID, productID string) (*store.ValueRow[T], error)
	ListByField(ctx context.Context, fieldID string) ([]store.ValueRow[T], error)
	ProductIDsWhere(ctx context.Context, fieldID, predicate string, args ...any) ([]string, error)
	OrderedProductIDs(ctx context.Context, fieldID string, candidates []string, orderExpr string, desc bool) ([]string, error)
}

// values implements the create/update/read half of Handler on top of one
// value table. parse decodes and validates a fields[] element.
type values[T any] struct {
	fieldType domain.FieldType
	table     valueStore[T]
	parse     func(in ValueInput) (T, []validation.Node)
}

func (v *values[T]) ValidateBeforeCreate(_ context.Context, in ValueInput) []validation.Node {
	_, nodes := v.parse(in)
	return nodes
}

func (v *values[T]) ValidateBeforeUpdate(_ context.Context, in ValueInput) []validation.Node {
	var nodes []validation.Node
	if in.ID == "" {
		nodes = append(nodes, validation.Field("id", "id should not be empty"))
	}
	_, parsed := v.parse(in)
	return append(nodes, parsed...)
}

func (v *values[T]) ValidateAndCreate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error) {
	payload, nodes := v.parse(in)
	if err := validation.NewError(nodes); err != nil {
		return nil, err
	}
	row, err := v.table.Create(ctx, in.ProductID, in.Field.ID, payload)
	if err != nil {
		return nil, translate(err)
	}
	return v.attribute(row), nil
}

func (v *values[T]) ValidateAndUpdate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error) {
	if err := validation.NewError(v.ValidateBeforeUpdate(ctx, in)); err != nil {
		return nil, err
	}
	payload, _ := v.parse(in)
	row, err := v.table.Update(ctx, in.ID, in.ProductID, in.Field.ID, payload)
	if err != nil {
		return nil, translate(err)
	}
	return v.attribute(row), nil
}

func (v *values[T]) Repository() Repository { return v }

func (v *values[T]) FindByFieldAndProduct(ctx context.Context, fieldID, productID string) (*domain.AttributeValue, error) {
	row, err := v.table.GetByFieldAndProduct(ctx, fieldID, productID)
	if err != nil {
		return nil, translate(err)
	}
	return v.attribute(row), nil
}

// sorted orders candidates by orderExpr. Candidates without a stored value
// follow the sorted ones in their original order.
func (v *values[T]) sorted(ctx context.Context, field *domain.FieldDefinition, candidates []string, orderExpr string, dir Direction) ([]string, error) {
	ordered, err := v.table.OrderedProductIDs(ctx, field.ID, candidates, orderExpr, dir == Desc)
	if err != nil {
		return nil, err
	}
	return appendMissing(ordered, candidates), nil
}

func (v *values[T]) attribute(row *store.ValueRow[T]) *domain.AttributeValue {
	return &domain.AttributeValue{
		ID:        row.ID,
		ProductID: row.ProductID,
		FieldID:   row.FieldID,
		Type:      v.fieldType,
		Data:      row.Payload,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func appendMissing(ordered, candidates []string) []string {
	seen := make(map[string]struct{}, len(ordered))
	for _, id := range ordered {
		seen[id] = struct{}{}
	}
	out := append(make([]string, 0, len(candidates)), ordered...)
	for _, id := range candidates {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// translate maps store sentinels onto this package's errors.
func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrValueNotFound):
		return ErrValueNotFound
	case errors.Is(err, store.ErrValueExists):
		return ErrValueExists
	}
	return fmt.Errorf("fields: %w", err)
}
