package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/validation"
)

// --- Field Definition Handlers ---

// FieldCreateInput defines the expected input for creating a field definition.
type FieldCreateInput struct {
	ModelID    string           `json:"model_id" validate:"required,uuid"`
	Title      string           `json:"title" validate:"required,max=255"`
	Type       domain.FieldType `json:"type" validate:"required"`
	Section    string           `json:"section" validate:"max=255"`
	Params     json.RawMessage  `json:"params"`
	Filterable bool             `json:"filterable"`
	Order      int              `json:"order" validate:"gte=0"`
	Required   bool             `json:"required"`
}

// FieldUpdateInput defines a partial field definition update. The type may
// be sent but must match the stored one.
type FieldUpdateInput struct {
	Title      *string          `json:"title" validate:"omitnil,min=1,max=255"`
	Type       domain.FieldType `json:"type"`
	Section    *string          `json:"section" validate:"omitnil,max=255"`
	Params     json.RawMessage  `json:"params"`
	Filterable *bool            `json:"filterable"`
	Order      *int             `json:"order" validate:"omitnil,gte=0"`
	Required   *bool            `json:"required"`
}

func (h *HTTPHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model_id")
	if modelID == "" {
		respondWithError(w, http.StatusBadRequest, "model_id query parameter is required")
		return
	}
	list, err := h.fields.ListByModel(r.Context(), modelID)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to retrieve fields")
		return
	}
	if list == nil {
		list = []domain.FieldDefinition{}
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) GetField(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "fieldId", "field")
	if !ok {
		return
	}
	field, err := h.fields.Get(r.Context(), id)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to retrieve field")
		return
	}
	respondWithJSON(w, http.StatusOK, field)
}

func (h *HTTPHandler) CreateField(w http.ResponseWriter, r *http.Request) {
	var input FieldCreateInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if err := validation.Validate(&input); err != nil {
		mapError(r.Context(), w, err, "Failed to create field")
		return
	}
	created, err := h.fields.Create(r.Context(), &domain.FieldDefinition{
		ModelID:    input.ModelID,
		Title:      input.Title,
		Type:       input.Type,
		Section:    input.Section,
		Params:     input.Params,
		Filterable: input.Filterable,
		Order:      input.Order,
		Required:   input.Required,
	})
	if err != nil {
		mapError(r.Context(), w, err, "Failed to create field")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "fieldId", "field")
	if !ok {
		return
	}
	var input FieldUpdateInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if err := validation.Validate(&input); err != nil {
		mapError(r.Context(), w, err, "Failed to update field")
		return
	}

	existing, err := h.fields.Get(r.Context(), id)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to update field")
		return
	}
	next := *existing
	if input.Title != nil {
		next.Title = *input.Title
	}
	if input.Type != "" {
		next.Type = input.Type
	}
	if input.Section != nil {
		next.Section = *input.Section
	}
	if input.Params != nil {
		next.Params = input.Params
	}
	if input.Filterable != nil {
		next.Filterable = *input.Filterable
	}
	if input.Order != nil {
		next.Order = *input.Order
	}
	if input.Required != nil {
		next.Required = *input.Required
	}

	updated, err := h.fields.Update(r.Context(), &next)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to update field")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "fieldId", "field")
	if !ok {
		return
	}
	if err := h.fields.Delete(r.Context(), id); err != nil {
		mapError(r.Context(), w, err, "Failed to delete field")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ListFieldTypes(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.types.Describe())
}

// --- Upload Handlers ---

func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.opts.MaxUploadBytes))
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "file form field is required")
		return
	}
	defer file.Close()

	if !validation.IsImageURL(header.Filename) {
		respondWithError(w, http.StatusBadRequest, "Validation failed", "file must be an image")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.media.Upload(r.Context(), path.Base(header.Filename), contentType, file)
	if err != nil {
		mapError(r.Context(), w, fmt.Errorf("%w: %w", fields.ErrObjectStorage, err), "Failed to store upload")
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *HTTPHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, contentType, err := h.media.Open(r.Context(), key)
	if err != nil {
		mapError(r.Context(), w, err, "Failed to read file")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, body); err != nil {
		slog.WarnContext(r.Context(), "Failed to stream file", "key", key, "err", err)
	}
}
