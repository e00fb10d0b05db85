package fields

import (
	"database/sql"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
)

// Registry maps field types to their handlers. It is built once at startup
// and read concurrently afterwards.
type Registry struct {
	handlers map[domain.FieldType]Handler
	order    []domain.FieldType
}

// NewRegistry registers handlers by their Type. A later handler for the same
// type replaces an earlier one.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[domain.FieldType]Handler, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Type()]; !dup {
			r.order = append(r.order, h.Type())
		}
		r.handlers[h.Type()] = h
	}
	return r
}

// NewDefaultRegistry wires every built-in field type to its PostgreSQL value table.
func NewDefaultRegistry(db *sql.DB, photos PhotoOptions) *Registry {
	return NewRegistry(
		NewTextHandler(store.NewTextValues(db)),
		NewTextareaHandler(store.NewTextareaValues(db)),
		NewRadioHandler(store.NewRadioValues(db)),
		NewCheckboxHandler(store.NewCheckboxValues(db)),
		NewPriceHandler(store.NewPriceValues(db)),
		NewLocationHandler(store.NewLocationValues(db)),
		NewCalendarHandler(store.NewCalendarValues(db)),
		NewPhotoHandler(store.NewPhotoValues(db), photos),
		NewInfoHandler(),
	)
}

// Resolve returns the handler for t, or nil when t is not registered.
func (r *Registry) Resolve(t domain.FieldType) Handler {
	return r.handlers[t]
}

// Describe lists every registered type in registration order.
func (r *Registry) Describe() []TypeInfo {
	out := make([]TypeInfo, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.handlers[t].Describe())
	}
	return out
}
