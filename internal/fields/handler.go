// Package fields holds the dynamic attribute system: one Handler per field
// type, the Registry that resolves them, and the service managing field
// definitions.
package fields

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/validation"
)

var (
	ErrFieldNotFound    = errors.New("field definition not found")
	ErrValueNotFound    = errors.New("attribute value not found")
	ErrValueExists      = errors.New("attribute value already exists for product and field")
	ErrUnknownFieldType = errors.New("unknown field type")
	// ErrObjectStorage marks failures of the object store. They are transient.
	ErrObjectStorage = errors.New("object storage unavailable")
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts asc/desc in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return Asc, true
	case "DESC":
		return Desc, true
	}
	return "", false
}

// ValueInput is one element of a product's fields array.
type ValueInput struct {
	ID        string // existing value id, required for updates
	ProductID string
	Field     *domain.FieldDefinition
	Raw       json.RawMessage // the whole element, type-specific keys included
}

// Repository reads stored values back for display.
type Repository interface {
	FindByFieldAndProduct(ctx context.Context, fieldID, productID string) (*domain.AttributeValue, error)
}

// Handler owns validation, persistence and query predicates for one field type.
type Handler interface {
	Type() domain.FieldType

	ValidateBeforeCreate(ctx context.Context, in ValueInput) []validation.Node
	ValidateAndCreate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error)
	ValidateBeforeUpdate(ctx context.Context, in ValueInput) []validation.Node
	ValidateAndUpdate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error)

	// ValidateParams checks the params stored on a field definition.
	ValidateParams(params json.RawMessage) []validation.Node

	// ProductIDsByFilter returns the products whose value for field matches
	// filter. ok is false when the type does not filter; callers must not
	// narrow on it.
	ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, filter json.RawMessage) (ids []string, ok bool, err error)

	// SortedProductIDs reorders candidates by the stored value. Types that do
	// not sort return candidates unchanged.
	SortedProductIDs(ctx context.Context, field *domain.FieldDefinition, candidates []string, dir Direction) ([]string, error)

	// Repository is nil for types without value storage.
	Repository() Repository

	Describe() TypeInfo
}

// Preparer is implemented by handlers whose values need work outside the
// database before they are written. Prepare receives a validated input and
// returns the one to persist; running it again on its own output is a no-op.
type Preparer interface {
	Prepare(ctx context.Context, in ValueInput) (ValueInput, error)
}

// TypeInfo describes a registered field type for clients building forms.
type TypeInfo struct {
	Type       domain.FieldType   `json:"type"`
	Filterable bool               `json:"filterable"`
	Sortable   bool               `json:"sortable"`
	Params     *jsonschema.Schema `json:"params"`
	Value      *jsonschema.Schema `json:"value,omitempty"`
	Filter     *jsonschema.Schema `json:"filter,omitempty"`
}

// base supplies the optional parts of Handler: no filtering, identity
// sorting, free-form params.
type base struct {
	fieldType domain.FieldType
	params    any // prototypes for Describe
	value     any
	filter    any
	sortable  bool
}

func (b base) Type() domain.FieldType { return b.fieldType }

func (base) ProductIDsByFilter(context.Context, *domain.FieldDefinition, json.RawMessage) ([]string, bool, error) {
	return nil, false, nil
}

func (base) SortedProductIDs(_ context.Context, _ *domain.FieldDefinition, candidates []string, _ Direction) ([]string, error) {
	return candidates, nil
}

func (base) ValidateParams(params json.RawMessage) []validation.Node {
	var obj map[string]json.RawMessage
	return decodeParams(params, &obj)
}

func (b base) Describe() TypeInfo {
	return TypeInfo{
		Type:       b.fieldType,
		Filterable: b.filter != nil,
		Sortable:   b.sortable,
		Params:     schemaOf(b.params),
		Value:      schemaOf(b.value),
		Filter:     schemaOf(b.filter),
	}
}
