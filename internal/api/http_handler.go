package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"marketplace-service/internal/catalog"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/metrics"
	"marketplace-service/internal/objectstore"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// ProductService lists and writes products. *catalog.Service implements it.
type ProductService interface {
	List(ctx context.Context, q catalog.ListQuery) (*catalog.ListResult, error)
	GetProduct(ctx context.Context, id string) (*domain.ProductWithFields, error)
	CreateProduct(ctx context.Context, actor catalog.Actor, in catalog.CreateProductInput) (*domain.ProductWithFields, error)
	UpdateProduct(ctx context.Context, actor catalog.Actor, id string, in catalog.UpdateProductInput) (*domain.ProductWithFields, error)
	DeleteProduct(ctx context.Context, actor catalog.Actor, id string) error
}

// FieldService manages field definitions. *fields.DefinitionService implements it.
type FieldService interface {
	Create(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error)
	Get(ctx context.Context, id string) (*domain.FieldDefinition, error)
	ListByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error)
	Update(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error)
	Delete(ctx context.Context, id string) error
}

// TypeCatalog describes the registered field types. *fields.Registry implements it.
type TypeCatalog interface {
	Describe() []fields.TypeInfo
}

// MediaStore stores uploads and serves published objects. *objectstore.Store implements it.
type MediaStore interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (fields.UploadResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Options configures an HTTPHandler. Metrics is optional.
type Options struct {
	Listing        ListingLimits
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	products ProductService
	fields   FieldService
	types    TypeCatalog
	media    MediaStore
	auth     *Authenticator
	opts     Options
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(ps ProductService, fs FieldService, types TypeCatalog, media MediaStore, auth *Authenticator, opts Options) *HTTPHandler {
	if opts.Listing.DefaultLimit <= 0 {
		opts.Listing.DefaultLimit = 20
	}
	if opts.Listing.MaxLimit < opts.Listing.DefaultLimit {
		opts.Listing.MaxLimit = opts.Listing.DefaultLimit
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &HTTPHandler{
		products: ps,
		fields:   fs,
		types:    types,
		media:    media,
		auth:     auth,
		opts:     opts,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses. Messages
// lists every validation failure.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string, messages ...string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Messages: messages})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "err", err)
		}
	}
}

// mapError writes the response for err. Unclassified errors are logged and
// reported as failed.
func mapError(ctx context.Context, w http.ResponseWriter, err error, failed string) {
	if ve, ok := validation.AsError(err); ok {
		respondWithError(w, http.StatusBadRequest, "Validation failed", ve.Messages()...)
		return
	}
	switch {
	case errors.Is(err, fields.ErrFieldNotFound),
		errors.Is(err, fields.ErrValueNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, objectstore.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fields.ErrValueExists):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, fields.ErrUnknownFieldType), errors.Is(err, store.ErrInvalidID):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fields.ErrObjectStorage):
		slog.WarnContext(ctx, failed, "err", err)
		respondWithError(w, http.StatusBadGateway, fields.ErrObjectStorage.Error())
	default:
		slog.ErrorContext(ctx, failed, "err", err)
		respondWithError(w, http.StatusInternalServerError, failed)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// uuidParam returns the URL parameter name if it is a UUID.
func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid "+label+" ID format")
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (catalog.Actor, bool) {
	actor, ok := h.auth.actor(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization required")
	}
	return actor, ok
}

// --- Product Handlers ---

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.RawQuery, h.opts.Listing)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to list products")
		return
	}

	start := time.Now()
	result, err := h.products.List(r.Context(), q)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to list products")
		return
	}
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveListing(len(q.Filters) > 0, len(q.Sorting) > 0, time.Since(start))
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "productId", "product")
	if !ok {
		return
	}
	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to retrieve product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input catalog.CreateProductInput
	if !decodeJSON(w, r, &input) {
		return
	}
	product, err := h.products.CreateProduct(r.Context(), actor, input)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to create product")
		return
	}
	respondWithJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "productId", "product")
	if !ok {
		return
	}
	var input catalog.UpdateProductInput
	if !decodeJSON(w, r, &input) {
		return
	}
	product, err := h.products.UpdateProduct(r.Context(), actor, id, input)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to update product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "productId", "product")
	if !ok {
		return
	}
	if err := h.products.DeleteProduct(r.Context(), actor, id); err != nil {
		mapError(r.Context(), w, err, "Failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{productId}", h.GetProductByID)
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)
			r.Post("/", h.CreateProduct)
			r.Put("/{productId}", h.UpdateProduct)
			r.Delete("/{productId}", h.DeleteProduct)
		})
	})

	r.Route("/api/v1/fields", func(r chi.Router) {
		r.Get("/", h.ListFields)
		r.Get("/{fieldId}", h.GetField)
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware, h.auth.RequireAdmin)
			r.Post("/", h.CreateField)
			r.Put("/{fieldId}", h.UpdateField)
			r.Delete("/{fieldId}", h.DeleteField)
		})
	})
	r.Get("/api/v1/field-types", h.ListFieldTypes)

	r.With(h.auth.Middleware).Post("/api/v1/uploads", h.Upload)
	r.Get("/files/public/{key}", h.ServeFile)
}
