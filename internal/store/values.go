package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ValueCodec describes how one field type's payload maps onto its table.
// Columns, Args and Scan must agree on column order.
type ValueCodec[T any] struct {
	Table   string   // e.g. "marketplace.price_values"
	Columns []string // payload columns only
	Args    func(v *T) []any
	Scan    func(v *T) []any
}

// ValueRow is one stored attribute value.
type ValueRow[T any] struct {
	ID        string
	ProductID string
	FieldID   string
	Payload   T
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValueTable stores the values of a single field type. Every table has the
// shape (id, product_id, field_id, <payload columns>, created_at, updated_at)
// with a unique index on (product_id, field_id).
type ValueTable[T any] struct {
	db    *sql.DB
	codec ValueCodec[T]
}

// NewValueTable binds codec to db.
func NewValueTable[T any](db *sql.DB, codec ValueCodec[T]) *ValueTable[T] {
	return &ValueTable[T]{db: db, codec: codec}
}

func (t *ValueTable[T]) selectColumns() string {
	return "id, product_id, field_id, " + strings.Join(t.codec.Columns, ", ") + ", created_at, updated_at"
}

func (t *ValueTable[T]) scan(row rowScanner) (*ValueRow[T], error) {
	var r ValueRow[T]
	dest := []any{&r.ID, &r.ProductID, &r.FieldID}
	dest = append(dest, t.codec.Scan(&r.Payload)...)
	dest = append(dest, &r.CreatedAt, &r.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &r, nil
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

// Create inserts a value for (productID, fieldID).
func (t *ValueTable[T]) Create(ctx context.Context, productID, fieldID string, payload T) (*ValueRow[T], error) {
	query := fmt.Sprintf(`INSERT INTO %s (product_id, field_id, %s) VALUES ($1, $2, %s) RETURNING %s;`,
		t.codec.Table, strings.Join(t.codec.Columns, ", "), placeholders(3, len(t.codec.Columns)), t.selectColumns())
	args := append([]any{productID, fieldID}, t.codec.Args(&payload)...)

	row, err := t.scan(conn(ctx, t.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return nil, ErrValueExists
		}
		return nil, fmt.Errorf("store: create value in %s failed: %w", t.codec.Table, err)
	}
	return row, nil
}

// Update overwrites the payload of value id. The row must belong to productID
// and fieldID, otherwise ErrValueNotFound is returned.
func (t *ValueTable[T]) Update(ctx context.Context, id, productID, fieldID string, payload T) (*ValueRow[T], error) {
	sets := make([]string, len(t.codec.Columns))
	for i, c := range t.codec.Columns {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	n := len(t.codec.Columns)
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = $%d AND product_id = $%d AND field_id = $%d RETURNING %s;`,
		t.codec.Table, strings.Join(sets, ", "), n+1, n+2, n+3, t.selectColumns())
	args := append(t.codec.Args(&payload), id, productID, fieldID)

	row, err := t.scan(conn(ctx, t.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrValueNotFound
		}
		return nil, fmt.Errorf("store: update value in %s failed: %w", t.codec.Table, err)
	}
	return row, nil
}

// GetByFieldAndProduct loads the value a product stores for a field.
func (t *ValueTable[T]) GetByFieldAndProduct(ctx context.Context, fieldID, productID string) (*ValueRow[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE field_id = $1 AND product_id = $2;`, t.selectColumns(), t.codec.Table)
	row, err := t.scan(conn(ctx, t.db).QueryRowContext(ctx, query, fieldID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrValueNotFound
		}
		return nil, fmt.Errorf("store: get value from %s failed: %w", t.codec.Table, err)
	}
	return row, nil
}

// ListByField loads every value stored for a field.
func (t *ValueTable[T]) ListByField(ctx context.Context, fieldID string) ([]ValueRow[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE field_id = $1;`, t.selectColumns(), t.codec.Table)
	rows, err := conn(ctx, t.db).QueryContext(ctx, query, fieldID)
	if err != nil {
		return nil, fmt.Errorf("store: list values from %s failed: %w", t.codec.Table, err)
	}
	defer rows.Close()

	var out []ValueRow[T]
	for rows.Next() {
		r, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan value from %s failed: %w", t.codec.Table, err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list values from %s iteration error: %w", t.codec.Table, err)
	}
	return out, nil
}

// ProductIDsWhere returns the distinct product ids whose value for fieldID
// satisfies predicate. predicate is a constant SQL fragment supplied by a field
// handler; its placeholders start at $2.
func (t *ValueTable[T]) ProductIDsWhere(ctx context.Context, fieldID, predicate string, args ...any) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT product_id FROM %s WHERE field_id = $1 AND (%s);`, t.codec.Table, predicate)
	return t.queryIDs(ctx, query, append([]any{fieldID}, args...)...)
}

// OrderedProductIDs returns the candidates that have a value for fieldID,
// ordered by orderExpr (a constant SQL expression over the payload columns).
func (t *ValueTable[T]) OrderedProductIDs(ctx context.Context, fieldID string, candidates []string, orderExpr string, desc bool) ([]string, error) {
	if len(candidates) == 0 {
		return []string{}, nil
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT product_id FROM %s WHERE field_id = $1 AND product_id = ANY($2::uuid[]) ORDER BY %s %s, product_id;`,
		t.codec.Table, orderExpr, dir)
	return t.queryIDs(ctx, query, fieldID, pq.Array(candidates))
}

func (t *ValueTable[T]) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := conn(ctx, t.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query product ids from %s failed: %w", t.codec.Table, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan product id from %s failed: %w", t.codec.Table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: product ids from %s iteration error: %w", t.codec.Table, err)
	}
	return ids, nil
}
