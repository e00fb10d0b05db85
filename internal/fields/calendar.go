package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

type calendarParams struct {
	Range bool `json:"range"`
}

type calendarInput struct {
	Date1 string  `json:"date1" validate:"required" jsonschema:"format=date-time"`
	Date2 *string `json:"date2,omitempty" jsonschema:"format=date-time"`
}

// calendarFilter matches from <= date1 < to; for range fields date2 must
// satisfy the same bounds.
type calendarFilter struct {
	From *string `json:"from,omitempty" jsonschema:"format=date-time"`
	To   *string `json:"to,omitempty" jsonschema:"format=date-time"`
}

type calendarHandler struct {
	base
	*values[domain.CalendarValue]
}

// NewCalendarHandler builds the date / date range handler.
func NewCalendarHandler(table *store.ValueTable[domain.CalendarValue]) Handler {
	return &calendarHandler{
		base: base{
			fieldType: domain.FieldTypeCalendar,
			params:    &calendarParams{},
			value:     &calendarInput{},
			filter:    &calendarFilter{},
			sortable:  true,
		},
		values: &values[domain.CalendarValue]{
			fieldType: domain.FieldTypeCalendar,
			table:     table,
			parse:     parseCalendar,
		},
	}
}

func isRange(field *domain.FieldDefinition) bool {
	if field == nil {
		return false
	}
	var p calendarParams
	_ = json.Unmarshal(field.Params, &p)
	return p.Range
}

func parseCalendar(in ValueInput) (domain.CalendarValue, []validation.Node) {
	var input calendarInput
	if nodes := decodeValue(in.Raw, &input); len(nodes) > 0 {
		return domain.CalendarValue{}, nodes
	}
	var out domain.CalendarValue
	var nodes []validation.Node
	d1, ok := parseDate(input.Date1)
	if !ok {
		nodes = append(nodes, validation.Field("date1", "date1 must be a valid ISO 8601 date string"))
	}
	out.Date1 = d1

	hasDate2 := input.Date2 != nil && strings.TrimSpace(*input.Date2) != ""
	switch {
	case hasDate2:
		d2, ok := parseDate(*input.Date2)
		if !ok {
			nodes = append(nodes, validation.Field("date2", "date2 must be a valid ISO 8601 date string"))
			break
		}
		if len(nodes) == 0 && d2.Before(d1) {
			nodes = append(nodes, validation.Field("date2", "date2 must not be earlier than date1"))
		}
		out.Date2 = &d2
	case isRange(in.Field):
		nodes = append(nodes, validation.Field("date2", "date2 should not be empty"))
	}
	return out, nodes
}

func (h *calendarHandler) ValidateParams(params json.RawMessage) []validation.Node {
	return decodeParams(params, &calendarParams{})
}

func (h *calendarHandler) ProductIDsByFilter(ctx context.Context, field *domain.FieldDefinition, raw json.RawMessage) ([]string, bool, error) {
	var f calendarFilter
	if err := decodeFilter(raw, &f); err != nil {
		return nil, false, err
	}
	columns := []string{"date1"}
	if isRange(field) {
		columns = append(columns, "date2")
	}

	var clauses []string
	var args []any
	bound := func(raw *string, name, op string) error {
		if raw == nil || *raw == "" {
			return nil
		}
		t, ok := parseDate(*raw)
		if !ok {
			return validation.NewError([]validation.Node{{Field: "filters", Children: []validation.Node{
				validation.Field(name, name+" must be a valid ISO 8601 date string"),
			}}})
		}
		args = append(args, t)
		for _, c := range columns {
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", c, op, len(args)+1))
		}
		return nil
	}
	if err := bound(f.From, "from", ">="); err != nil {
		return nil, false, err
	}
	if err := bound(f.To, "to", "<"); err != nil {
		return nil, false, err
	}

	predicate := "TRUE"
	if len(clauses) > 0 {
		predicate = strings.Join(clauses, " AND ")
	}
	ids, err := h.table.ProductIDsWhere(ctx, field.ID, predicate, args...)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (h *calendarHandler) SortedProductIDs(ctx context.Context, field *domain.FieldDefinition, candidates []string, dir Direction) ([]string, error) {
	return h.sorted(ctx, field, candidates, "date1", dir)
}
