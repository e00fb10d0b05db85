package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/time/rate"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// UploadResult identifies an object written to the temporary area.
type UploadResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ObjectStorage is the blob store behind photo fields.
type ObjectStorage interface {
	// Move relocates key from the temporary area to the public one.
	Move(ctx context.Context, key string) error
	// Upload writes r into the temporary area.
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (UploadResult, error)
}

// PhotoOptions configures the photo handler.
type PhotoOptions struct {
	Storage         ObjectStorage
	TempURLPrefix   string
	PublicURLPrefix string
	Limiter         *rate.Limiter // nil means unthrottled
}

type photoParams struct {
	Min int `json:"min" validate:"gte=0" jsonschema:"minimum=0"`
	Max int `json:"max" validate:"required,gtefield=Min,lte=50" jsonschema:"minimum=1,maximum=50"`
}

type photoInput struct {
	Value []string `json:"value" validate:"required,dive,required,max=1000,image_url"`
}

// photoHandler relocates freshly uploaded images before persisting them.
type photoHandler struct {
	base
	*values[domain.StringListValue]
	opts PhotoOptions
}

// NewPhotoHandler builds the photo set handler.
func NewPhotoHandler(table *store.ValueTable[domain.StringListValue], opts PhotoOptions) Handler {
	return &photoHandler{
		base: base{fieldType: domain.FieldTypePhoto, params: &photoParams{}, value: &photoInput{}},
		values: &values[domain.StringListValue]{
			fieldType: domain.FieldTypePhoto,
			table:     table,
			parse:     parsePhotos,
		},
		opts: opts,
	}
}

func parsePhotos(in ValueInput) (domain.StringListValue, []validation.Node) {
	var input photoInput
	if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
		return domain.StringListValue{}, nodes
	}
	if in.Field != nil {
		var p photoParams
		_ = json.Unmarshal(in.Field.Params, &p)
		n := len(input.Value)
		if n < p.Min {
			return domain.StringListValue{}, []validation.Node{
				validation.Field("value", fmt.Sprintf("value must contain at least %d elements", p.Min)),
			}
		}
		if p.Max > 0 && n > p.Max {
			return domain.StringListValue{}, []validation.Node{
				validation.Field("value", fmt.Sprintf("value must contain no more than %d elements", p.Max)),
			}
		}
	}
	return domain.StringListValue{Value: input.Value}, nil
}

func (h *photoHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &photoParams{})
}

func (h *photoHandler) ValidateAndCreate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error) {
	if err := validation.NewError(h.ValidateBeforeCreate(ctx, in)); err != nil {
		return nil, err
	}
	relocated, err := h.relocate(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.values.ValidateAndCreate(ctx, relocated)
}

func (h *photoHandler) ValidateAndUpdate(ctx context.Context, in ValueInput) (*domain.AttributeValue, error) {
	if err := validation.NewError(h.ValidateBeforeUpdate(ctx, in)); err != nil {
		return nil, err
	}
	relocated, err := h.relocate(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.values.ValidateAndUpdate(ctx, relocated)
}

// Prepare relocates temporary uploads so the product transaction only has to
// store public URLs.
func (h *photoHandler) Prepare(ctx context.Context, in ValueInput) (ValueInput, error) {
	return h.relocate(ctx, in)
}

// relocate moves every URL still under the temporary prefix to the public
// area and rewrites in.Raw to point at the public copies. in must already be
// valid. URLs already public are left untouched, so resubmitting a stored
// value moves nothing.
func (h *photoHandler) relocate(ctx context.Context, in ValueInput) (ValueInput, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(in.Raw, &payload); err != nil {
		return in, err
	}
	var urls []string
	if err := json.Unmarshal(payload["value"], &urls); err != nil {
		return in, err
	}

	changed := false
	for i, u := range urls {
		if h.opts.TempURLPrefix == "" || !strings.HasPrefix(u, h.opts.TempURLPrefix) {
			continue
		}
		key := strings.TrimPrefix(u, h.opts.TempURLPrefix)
		if h.opts.Limiter != nil {
			if err := h.opts.Limiter.Wait(ctx); err != nil {
				return in, fmt.Errorf("%w: %w", ErrObjectStorage, err)
			}
		}
		if err := h.opts.Storage.Move(ctx, key); err != nil {
			return in, fmt.Errorf("%w: move %s: %w", ErrObjectStorage, key, err)
		}
		urls[i] = h.opts.PublicURLPrefix + key
		changed = true
	}
	if !changed {
		return in, nil
	}

	encoded, err := json.Marshal(urls)
	if err != nil {
		return in, err
	}
	payload["value"] = encoded
	raw, err := json.Marshal(payload)
	if err != nil {
		return in, err
	}
	in.Raw = raw
	return in, nil
}
