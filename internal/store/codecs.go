package store

import (
	"database/sql"

	"github.com/lib/pq"

	"marketplace-service/internal/domain"
)

func stringCodec(table string) ValueCodec[domain.StringValue] {
	return ValueCodec[domain.StringValue]{
		Table:   table,
		Columns: []string{"value"},
		Args:    func(v *domain.StringValue) []any { return []any{v.Value} },
		Scan:    func(v *domain.StringValue) []any { return []any{&v.Value} },
	}
}

func stringListCodec(table string) ValueCodec[domain.StringListValue] {
	return ValueCodec[domain.StringListValue]{
		Table:   table,
		Columns: []string{"value"},
		Args:    func(v *domain.StringListValue) []any { return []any{pq.Array(v.Value)} },
		Scan:    func(v *domain.StringListValue) []any { return []any{pq.Array(&v.Value)} },
	}
}

// NewTextValues binds marketplace.text_values.
func NewTextValues(db *sql.DB) *ValueTable[domain.StringValue] {
	return NewValueTable(db, stringCodec("marketplace.text_values"))
}

// NewTextareaValues binds marketplace.textarea_values.
func NewTextareaValues(db *sql.DB) *ValueTable[domain.StringValue] {
	return NewValueTable(db, stringCodec("marketplace.textarea_values"))
}

// NewRadioValues binds marketplace.radio_values.
func NewRadioValues(db *sql.DB) *ValueTable[domain.StringValue] {
	return NewValueTable(db, stringCodec("marketplace.radio_values"))
}

// NewCheckboxValues binds marketplace.checkbox_values (value TEXT[]).
func NewCheckboxValues(db *sql.DB) *ValueTable[domain.StringListValue] {
	return NewValueTable(db, stringListCodec("marketplace.checkbox_values"))
}

// NewPhotoValues binds marketplace.photo_values (value TEXT[]).
func NewPhotoValues(db *sql.DB) *ValueTable[domain.StringListValue] {
	return NewValueTable(db, stringListCodec("marketplace.photo_values"))
}

// NewPriceValues binds marketplace.price_values (value NUMERIC).
func NewPriceValues(db *sql.DB) *ValueTable[domain.PriceValue] {
	return NewValueTable(db, ValueCodec[domain.PriceValue]{
		Table:   "marketplace.price_values",
		Columns: []string{"value"},
		Args:    func(v *domain.PriceValue) []any { return []any{v.Value} },
		Scan:    func(v *domain.PriceValue) []any { return []any{&v.Value} },
	})
}

// NewLocationValues binds marketplace.location_values.
func NewLocationValues(db *sql.DB) *ValueTable[domain.LocationValue] {
	return NewValueTable(db, ValueCodec[domain.LocationValue]{
		Table:   "marketplace.location_values",
		Columns: []string{"lat", "lng", "title"},
		Args:    func(v *domain.LocationValue) []any { return []any{v.Lat, v.Lng, v.Title} },
		Scan:    func(v *domain.LocationValue) []any { return []any{&v.Lat, &v.Lng, &v.Title} },
	})
}

// NewCalendarValues binds marketplace.calendar_values. date2 is NULL for single dates.
func NewCalendarValues(db *sql.DB) *ValueTable[domain.CalendarValue] {
	return NewValueTable(db, ValueCodec[domain.CalendarValue]{
		Table:   "marketplace.calendar_values",
		Columns: []string{"date1", "date2"},
		Args:    func(v *domain.CalendarValue) []any { return []any{v.Date1, v.Date2} },
		Scan:    func(v *domain.CalendarValue) []any { return []any{&v.Date1, &v.Date2} },
	})
}
