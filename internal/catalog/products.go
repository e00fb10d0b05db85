package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// boundValue is a submitted field value resolved to its definition and handler.
type boundValue struct {
	input   fields.ValueInput
	handler fields.Handler
	update  bool
}

// bind resolves every submitted value against modelID. Unknown fields fail
// with fields.ErrFieldNotFound and unregistered types with
// fields.ErrUnknownFieldType; shape problems come back as nodes.
func (s *Service) bind(ctx context.Context, modelID string, values []FieldValue, allowUpdate bool) ([]boundValue, []validation.Node, error) {
	bound := make([]boundValue, 0, len(values))
	var nodes []validation.Node
	seen := make(map[string]struct{}, len(values))

	for i, v := range values {
		idx := strconv.Itoa(i)
		if v.FieldID == "" {
			nodes = append(nodes, validation.Node{Field: idx, Children: []validation.Node{
				validation.Field("field_id", "field_id should not be empty"),
			}})
			continue
		}
		if _, dup := seen[v.FieldID]; dup {
			nodes = append(nodes, validation.Node{Field: idx, Children: []validation.Node{
				validation.Field("field_id", fmt.Sprintf("field %s is submitted more than once", v.FieldID)),
			}})
			continue
		}
		seen[v.FieldID] = struct{}{}

		def, err := s.defs.Get(ctx, v.FieldID)
		if err != nil {
			if errors.Is(err, fields.ErrFieldNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", fields.ErrFieldNotFound, v.FieldID)
			}
			return nil, nil, err
		}
		if def.ModelID != modelID {
			nodes = append(nodes, validation.Node{Field: idx, Children: []validation.Node{
				validation.Field("field_id", fmt.Sprintf("field %s does not belong to the product model", v.FieldID)),
			}})
			continue
		}
		h := s.handlers.Resolve(def.Type)
		if h == nil {
			return nil, nil, fmt.Errorf("%w: %q", fields.ErrUnknownFieldType, def.Type)
		}

		in := fields.ValueInput{ID: v.ID, Field: def, Raw: v.Raw}
		update := allowUpdate && v.ID != ""
		var found []validation.Node
		if update {
			found = h.ValidateBeforeUpdate(ctx, in)
		} else {
			found = h.ValidateBeforeCreate(ctx, in)
		}
		if len(found) > 0 {
			nodes = append(nodes, validation.Node{Field: idx, Children: found})
			continue
		}
		bound = append(bound, boundValue{input: in, handler: h, update: update})
	}
	if len(nodes) > 0 {
		return nil, []validation.Node{{Field: "fields", Children: nodes}}, nil
	}
	return bound, nil, nil
}

// missingRequired reports required definitions of modelID without a submitted
// value. Display-only fields are never required.
func (s *Service) missingRequired(ctx context.Context, modelID string, values []FieldValue) ([]validation.Node, error) {
	defs, err := s.defs.ListByModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load model fields: %w", err)
	}
	submitted := make(map[string]struct{}, len(values))
	for _, v := range values {
		submitted[v.FieldID] = struct{}{}
	}
	var msgs []string
	for _, def := range defs {
		if !def.Required || def.Type == domain.FieldTypeInfo {
			continue
		}
		if _, ok := submitted[def.ID]; !ok {
			msgs = append(msgs, fmt.Sprintf("%s is required", def.Title))
		}
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return []validation.Node{validation.Field("fields", msgs...)}, nil
}

// prepare runs the side effects of handlers implementing fields.Preparer,
// such as photo relocation, ahead of the transaction.
func prepare(ctx context.Context, bound []boundValue) error {
	for i := range bound {
		p, ok := bound[i].handler.(fields.Preparer)
		if !ok {
			continue
		}
		in, err := p.Prepare(ctx, bound[i].input)
		if err != nil {
			return err
		}
		bound[i].input = in
	}
	return nil
}

// checkModeration allows only administrators to set or lift a block.
func checkModeration(actor Actor, from, to domain.ProductStatus) error {
	if actor.Admin || from == to {
		return nil
	}
	if from == domain.ProductStatusBlocked || to == domain.ProductStatusBlocked {
		return fmt.Errorf("%w: only administrators may block or unblock a product", ErrForbidden)
	}
	return nil
}

// writeValues persists bound values for productID. It must run inside the
// product's transaction, after prepare.
func writeValues(ctx context.Context, productID string, bound []boundValue) error {
	for _, b := range bound {
		in := b.input
		in.ProductID = productID
		var err error
		if b.update {
			_, err = b.handler.ValidateAndUpdate(ctx, in)
		} else {
			_, err = b.handler.ValidateAndCreate(ctx, in)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateProduct stores a product and its attribute values in one transaction
// and returns it hydrated.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, in CreateProductInput) (*domain.ProductWithFields, error) {
	if err := validation.Validate(&in); err != nil {
		return nil, err
	}
	bound, nodes, err := s.bind(ctx, in.ModelID, in.Fields, false)
	if err != nil {
		return nil, err
	}
	missing, err := s.missingRequired(ctx, in.ModelID, in.Fields)
	if err != nil {
		return nil, err
	}
	if err := validation.NewError(append(nodes, missing...)); err != nil {
		return nil, err
	}
	if err := checkModeration(actor, "", in.Status); err != nil {
		return nil, err
	}
	if err := prepare(ctx, bound); err != nil {
		return nil, err
	}

	var productID string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.products.CreateProduct(ctx, &domain.Product{
			Title:       in.Title,
			Description: in.Description,
			Status:      in.Status,
			CategoryID:  in.CategoryID,
			ModelID:     in.ModelID,
			UserID:      actor.UserID,
		})
		if err != nil {
			return fmt.Errorf("catalog: create product: %w", err)
		}
		productID = created.ID
		return writeValues(ctx, productID, bound)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "product created", "product_id", productID, "user_id", actor.UserID, "fields", len(bound))
	return s.GetProduct(ctx, productID)
}

// GetProduct returns one product with its attribute set.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.ProductWithFields, error) {
	p, err := s.loadProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.hydrate(ctx, []domain.Product{*p})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *Service) loadProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

// owned loads a product the actor may modify.
func (s *Service) owned(ctx context.Context, actor Actor, id string) (*domain.Product, error) {
	p, err := s.loadProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && p.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return p, nil
}

// UpdateProduct applies a partial update. Field values carrying an id are
// updated; the rest are created.
func (s *Service) UpdateProduct(ctx context.Context, actor Actor, id string, in UpdateProductInput) (*domain.ProductWithFields, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	nodes := validation.Struct(&in)
	bound, fieldNodes, err := s.bind(ctx, p.ModelID, in.Fields, true)
	if err != nil {
		return nil, err
	}
	if err := validation.NewError(append(nodes, fieldNodes...)); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if err := checkModeration(actor, p.Status, *in.Status); err != nil {
			return nil, err
		}
	}
	if err := prepare(ctx, bound); err != nil {
		return nil, err
	}

	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	if in.CategoryID != nil {
		p.CategoryID = in.CategoryID
	}
	if in.Status != nil {
		p.Status = *in.Status
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.UpdateProduct(ctx, p); err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("catalog: update product: %w", err)
		}
		return writeValues(ctx, p.ID, bound)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

// DeleteProduct removes a product. Its values are removed by the database.
func (s *Service) DeleteProduct(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	slog.InfoContext(ctx, "product deleted", "product_id", id, "user_id", actor.UserID)
	return nil
}
