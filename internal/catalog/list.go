package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/store"
)

// List runs a listing query:
//  1. the base predicate (status, category, owner, title search);
//  2. every filter the field's handler supports, intersected;
//  3. the first sort key, applied to every matching id before pagination;
//  4. pagination and attribute hydration.
//
// Filters and sort keys naming unknown fields or types are skipped.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	params := store.ListProductsParams{
		Limit:      q.Limit,
		Offset:     (q.Page - 1) * q.Limit,
		Status:     q.Status,
		CategoryID: q.CategoryID,
		UserID:     q.UserID,
		Search:     q.Search,
	}

	candidates, narrowed, err := s.filterProductIDs(ctx, q.Filters)
	if err != nil {
		return nil, err
	}
	if narrowed {
		params.RestrictIDs = true
		params.ProductIDs = candidates
	}

	if len(q.Sorting) > 0 {
		if err := s.applySort(ctx, q.Sorting[0], &params); err != nil {
			return nil, err
		}
	}

	products, total, err := s.products.ListProducts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	items, err := s.hydrate(ctx, products)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, TotalCount: total, Page: q.Page, Limit: q.Limit}, nil
}

// resolve returns the definition and handler for fieldID, or nils when either
// is unknown.
func (s *Service) resolve(ctx context.Context, fieldID string) (*domain.FieldDefinition, fields.Handler, error) {
	def, err := s.defs.Get(ctx, fieldID)
	if err != nil {
		if errors.Is(err, fields.ErrFieldNotFound) {
			slog.DebugContext(ctx, "skipping unknown field", "field_id", fieldID)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	h := s.handlers.Resolve(def.Type)
	if h == nil {
		slog.DebugContext(ctx, "skipping field with unregistered type", "field_id", fieldID, "type", def.Type)
		return nil, nil, nil
	}
	return def, h, nil
}

// filterProductIDs fans the filters out to their handlers and intersects the
// results. narrowed is false when no handler produced a result.
func (s *Service) filterProductIDs(ctx context.Context, filters []Filter) ([]string, bool, error) {
	if len(filters) == 0 {
		return nil, false, nil
	}
	results := make([][]string, len(filters))
	applied := make([]bool, len(filters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FilterWorkers)
	for i, f := range filters {
		g.Go(func() error {
			def, h, err := s.resolve(gctx, f.FieldID)
			if err != nil || h == nil {
				return err
			}
			ids, ok, err := h.ProductIDsByFilter(gctx, def, f.Payload)
			if err != nil {
				return err
			}
			results[i], applied[i] = ids, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	var sets [][]string
	for i := range results {
		if applied[i] {
			sets = append(sets, results[i])
		}
	}
	if len(sets) == 0 {
		return nil, false, nil
	}
	return intersect(sets), true, nil
}

// applySort restricts params to every matching id in the handler's order.
func (s *Service) applySort(ctx context.Context, key Sort, params *store.ListProductsParams) error {
	def, h, err := s.resolve(ctx, key.FieldID)
	if err != nil || h == nil {
		return err
	}
	ids, err := s.products.ListProductIDs(ctx, *params)
	if err != nil {
		return fmt.Errorf("catalog: list product ids: %w", err)
	}
	sorted, err := h.SortedProductIDs(ctx, def, ids, key.Direction)
	if err != nil {
		return err
	}
	params.RestrictIDs = true
	params.ProductIDs = sorted
	params.OrderByIDs = true
	return nil
}

// intersect keeps the ids present in every set, in the first set's order.
func intersect(sets [][]string) []string {
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]struct{}, len(set))
		for _, id := range set {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			counts[id]++
		}
	}
	out := []string{}
	emitted := make(map[string]struct{})
	for _, id := range sets[0] {
		if _, done := emitted[id]; done {
			continue
		}
		if counts[id] == len(sets) {
			out = append(out, id)
			emitted[id] = struct{}{}
		}
	}
	return out
}

// hydrate attaches every field of each product's model together with the
// product's stored value. Lookups run concurrently; field order is kept.
func (s *Service) hydrate(ctx context.Context, products []domain.Product) ([]domain.ProductWithFields, error) {
	out := make([]domain.ProductWithFields, len(products))
	if len(products) == 0 {
		return out, nil
	}

	models := make(map[string][]domain.FieldDefinition)
	for _, p := range products {
		if _, ok := models[p.ModelID]; ok {
			continue
		}
		defs, err := s.defs.ListByModel(ctx, p.ModelID)
		if err != nil {
			return nil, fmt.Errorf("catalog: load model fields: %w", err)
		}
		models[p.ModelID] = defs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.HydrationWorkers)
	for i, p := range products {
		defs := models[p.ModelID]
		out[i] = domain.ProductWithFields{Product: p, Fields: make([]domain.HydratedField, len(defs))}
		for j, def := range defs {
			out[i].Fields[j] = domain.HydratedField{FieldDefinition: def}
			h := s.handlers.Resolve(def.Type)
			if h == nil || h.Repository() == nil {
				continue
			}
			repo := h.Repository()
			slot := &out[i].Fields[j]
			g.Go(func() error {
				value, err := repo.FindByFieldAndProduct(gctx, slot.ID, p.ID)
				if err != nil {
					if errors.Is(err, fields.ErrValueNotFound) {
						return nil
					}
					return fmt.Errorf("catalog: hydrate field %s of product %s: %w", slot.ID, p.ID, err)
				}
				slot.Data = value
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
