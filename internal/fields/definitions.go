package fields

import (
	"context"
	"errors"
	"fmt"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// DefinitionCache is a read-through cache for field definitions. Misses and
// cache failures both report ok=false.
type DefinitionCache interface {
	GetField(ctx context.Context, id string) (*domain.FieldDefinition, bool)
	SetField(ctx context.Context, field *domain.FieldDefinition)
	DeleteField(ctx context.Context, id string)
	GetModelFields(ctx context.Context, modelID string) ([]domain.FieldDefinition, bool)
	SetModelFields(ctx context.Context, modelID string, fields []domain.FieldDefinition)
	DeleteModelFields(ctx context.Context, modelID string)
}

// DefinitionService manages field definitions. Params are checked by the
// type's handler before anything is written.
type DefinitionService struct {
	store    store.FieldStorer
	registry *Registry
	cache    DefinitionCache // optional
}

// NewDefinitionService creates a DefinitionService. cache may be nil.
func NewDefinitionService(fs store.FieldStorer, registry *Registry, cache DefinitionCache) *DefinitionService {
	return &DefinitionService{store: fs, registry: registry, cache: cache}
}

// Registry exposes the handler registry the service validates against.
func (s *DefinitionService) Registry() *Registry {
	return s.registry
}

func (s *DefinitionService) handlerFor(t domain.FieldType) (Handler, error) {
	h := s.registry.Resolve(t)
	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, t)
	}
	return h, nil
}

// Create validates field.Params against its type and stores the definition.
func (s *DefinitionService) Create(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	h, err := s.handlerFor(field.Type)
	if err != nil {
		return nil, err
	}
	if err := validation.NewError(h.ValidateParams(field.Params)); err != nil {
		return nil, err
	}
	created, err := s.store.CreateField(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("fields: create definition: %w", err)
	}
	s.invalidate(ctx, created)
	return created, nil
}

// Get loads one definition, from cache when possible.
func (s *DefinitionService) Get(ctx context.Context, id string) (*domain.FieldDefinition, error) {
	if s.cache != nil {
		if f, ok := s.cache.GetField(ctx, id); ok {
			return f, nil
		}
	}
	f, err := s.store.GetFieldByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFieldNotFound) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("fields: get definition: %w", err)
	}
	if s.cache != nil {
		s.cache.SetField(ctx, f)
	}
	return f, nil
}

// ListByModel returns a model's definitions ordered for display.
func (s *DefinitionService) ListByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error) {
	if s.cache != nil {
		if fields, ok := s.cache.GetModelFields(ctx, modelID); ok {
			return fields, nil
		}
	}
	fields, err := s.store.ListFieldsByModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("fields: list definitions: %w", err)
	}
	if s.cache != nil {
		s.cache.SetModelFields(ctx, modelID, fields)
	}
	return fields, nil
}

// Update rewrites a definition. The type cannot change: stored values would
// be orphaned. Params are validated against the existing type first.
func (s *DefinitionService) Update(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	existing, err := s.Get(ctx, field.ID)
	if err != nil {
		return nil, err
	}
	if field.Type != "" && field.Type != existing.Type {
		return nil, validation.NewError([]validation.Node{validation.Field("type", "type cannot be changed")})
	}
	h, err := s.handlerFor(existing.Type)
	if err != nil {
		return nil, err
	}
	if err := validation.NewError(h.ValidateParams(field.Params)); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateField(ctx, field)
	if err != nil {
		if errors.Is(err, store.ErrFieldNotFound) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("fields: update definition: %w", err)
	}
	s.invalidate(ctx, updated)
	return updated, nil
}

// Delete removes a definition. Its stored values go with it.
func (s *DefinitionService) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteField(ctx, id); err != nil {
		if errors.Is(err, store.ErrFieldNotFound) {
			return ErrFieldNotFound
		}
		return fmt.Errorf("fields: delete definition: %w", err)
	}
	s.invalidate(ctx, existing)
	return nil
}

func (s *DefinitionService) invalidate(ctx context.Context, f *domain.FieldDefinition) {
	if s.cache == nil {
		return
	}
	s.cache.DeleteField(ctx, f.ID)
	s.cache.DeleteModelFields(ctx, f.ModelID)
}
