package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"marketplace-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound = errors.New("store: product not found")
	ErrFieldNotFound   = errors.New("store: field definition not found")
	ErrValueNotFound   = errors.New("store: attribute value not found")
	ErrValueExists     = errors.New("store: attribute value already exists for product and field")
	ErrInvalidID       = errors.New("store: malformed identifier")
)

const (
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
)

// PostgresStore implements ProductStorer, FieldStorer and Transactor using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the pool so value tables can share it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// pqCode returns the SQLSTATE of a lib/pq error, or "" for anything else.
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

const productColumns = `id, title, description, status, category_id, model_id, user_id, promoted_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *domain.Product) error {
	return row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Status, &p.CategoryID, &p.ModelID, &p.UserID,
		&p.PromotedUntil, &p.CreatedAt, &p.UpdatedAt,
	)
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO marketplace.products (title, description, status, category_id, model_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + productColumns + `;
	`
	status := product.Status
	if status == "" {
		status = domain.ProductStatusActive
	}
	row := conn(ctx, s.db).QueryRowContext(ctx, query,
		product.Title, product.Description, status, product.CategoryID, product.ModelID, product.UserID,
	)

	var created domain.Product
	if err := scanProduct(row, &created); err != nil {
		if pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM marketplace.products
		WHERE id = $1;
	`
	var product domain.Product
	if err := scanProduct(conn(ctx, s.db).QueryRowContext(ctx, query, id), &product); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return &product, nil
}

// buildProductWhere renders the base predicate. argID is the next free placeholder.
func buildProductWhere(params ListProductsParams) (string, []any, int) {
	var queryArgs []any
	var whereClauses []string
	argID := 1

	status := params.Status
	if status == "" {
		status = domain.ProductStatusActive
	}
	whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", argID))
	queryArgs = append(queryArgs, status)
	argID++

	if params.CategoryID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("category_id = $%d", argID))
		queryArgs = append(queryArgs, *params.CategoryID)
		argID++
	}
	if params.UserID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("user_id = $%d", argID))
		queryArgs = append(queryArgs, *params.UserID)
		argID++
	}
	if params.Search != nil && *params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("title ILIKE $%d", argID))
		queryArgs = append(queryArgs, "%"+escapeLike(*params.Search)+"%")
		argID++
	}
	if params.RestrictIDs {
		whereClauses = append(whereClauses, fmt.Sprintf("id = ANY($%d::uuid[])", argID))
		queryArgs = append(queryArgs, pq.Array(params.ProductIDs))
		argID++
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), queryArgs, argID
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// defaultProductOrder puts currently promoted products first, then newest.
const defaultProductOrder = "(promoted_until IS NOT NULL AND promoted_until > NOW()) DESC, created_at DESC, id"

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	if params.RestrictIDs && len(params.ProductIDs) == 0 {
		return []domain.Product{}, 0, nil
	}
	whereCondition, queryArgs, argID := buildProductWhere(params)

	countQuery := "SELECT COUNT(*) FROM marketplace.products" + whereCondition
	var totalCount int
	if err := conn(ctx, s.db).QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		if pqCode(err) == pqInvalidTextRepresentation {
			return nil, 0, ErrInvalidID
		}
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}
	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	orderBy := defaultProductOrder
	if params.RestrictIDs && params.OrderByIDs {
		orderBy = fmt.Sprintf("array_position($%d::uuid[], id)", argID)
		queryArgs = append(queryArgs, pq.Array(params.ProductIDs))
		argID++
	}

	dataQuery := fmt.Sprintf("SELECT %s FROM marketplace.products%s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, whereCondition, orderBy, argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := conn(ctx, s.db).QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}
	return products, totalCount, nil
}

func (s *PostgresStore) ListProductIDs(ctx context.Context, params ListProductsParams) ([]string, error) {
	if params.RestrictIDs && len(params.ProductIDs) == 0 {
		return []string{}, nil
	}
	whereCondition, queryArgs, _ := buildProductWhere(params)
	query := "SELECT id FROM marketplace.products" + whereCondition + " ORDER BY " + defaultProductOrder

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, queryArgs...)
	if err != nil {
		if pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("store: ListProductIDs failed to query products: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: ListProductIDs failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProductIDs iteration error: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE marketplace.products
		SET title = $1, description = $2, status = $3, category_id = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
		RETURNING ` + productColumns + `;
	`
	var updated domain.Product
	row := conn(ctx, s.db).QueryRowContext(ctx, query,
		product.Title, product.Description, product.Status, product.CategoryID, product.ID,
	)
	if err := scanProduct(row, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}
	return &updated, nil
}

// DeleteProduct removes the product. Attribute values go with it (ON DELETE CASCADE).
func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	query := `DELETE FROM marketplace.products WHERE id = $1;`
	result, err := conn(ctx, s.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		slog.Info("Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			slog.Error("Failed to close database connection pool", "err", err)
			return err
		}
		slog.Info("Database connection pool closed successfully.")
	}
	return nil
}
