package fields

import (
	"context"
	"encoding/json"
	"math"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

const (
	earthRadiusKm = 6371
	// unboundedRadiusKm is the radius used when a filter omits one.
	unboundedRadiusKm = 1_000_000
)

type locationInput struct {
	Lat   *float64 `json:"lat" validate:"required,gte=-90,lte=90" jsonschema:"minimum=-90,maximum=90"`
	Lng   *float64 `json:"lng" validate:"required,gte=-180,lte=180" jsonschema:"minimum=-180,maximum=180"`
	Title string   `json:"title" validate:"max=255" jsonschema:"maxLength=255"`
}

type locationFilter struct {
	Lat    *flexFloat `json:"lat" validate:"required"`
	Lng    *flexFloat `json:"lng" validate:"required"`
	Radius *flexFloat `json:"radius,omitempty" validate:"omitempty,gte=0"`
}

type locationHandler struct {
	base
	*values[domain.LocationValue]
}

// NewLocationHandler builds the geo point handler. Filtering is by great-circle
// distance from a query point.
func NewLocationHandler(table *store.ValueTable[domain.LocationValue]) Handler {
	return &locationHandler{
		base: base{
			fieldType: domain.FieldTypeLocation,
			params:    &struct{}{},
			value:     &locationInput{},
			filter:    &locationFilter{},
		},
		values: &values[domain.LocationValue]{
			fieldType: domain.FieldTypeLocation,
			table:     table,
			parse: func(in ValueInput) (domain.LocationValue, []validation.Node) {
				var input locationInput
				if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
					return domain.LocationValue{}, nodes
				}
				return domain.LocationValue{Lat: *input.Lat, Lng: *input.Lng, Title: input.Title}, nil
			},
		},
	}
}

func (h *locationHandler) ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, raw json.RawMessage) ([]string, bool, error) {
	var f locationFilter
	if err := decodeFilter(raw, &f); err != nil {
		return nil, false, err
	}
	radius := float64(unboundedRadiusKm)
	if f.Radius != nil {
		radius = float64(*f.Radius)
	}
	rows, err := h.table.ListByField(ctx, field.ID)
	if err != nil {
		return nil, false, err
	}
	ids := []string{}
	for _, row := range rows {
		if haversineKm(float64(*f.Lat), float64(*f.Lng), row.Payload.Lat, row.Payload.Lng) <= radius {
			ids = append(ids, row.ProductID)
		}
	}
	return ids, true, nil
}

// haversineKm is the great-circle distance between two points in kilometres.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Pow(math.Sin(dLng/2), 2)
	return earthRadiusKm * 2 * math.Asin(math.Min(1, math.Sqrt(a)))
}
