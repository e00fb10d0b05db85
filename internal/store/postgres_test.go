package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/domain"
)

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

// PtrTo returns a pointer to v (useful for optional fields in domain structs).
func PtrTo[T any](v T) *T {
	return &v
}

var productRowColumns = []string{"id", "title", "description", "status", "category_id", "model_id", "user_id", "promoted_until", "created_at", "updated_at"}

const (
	productA = "11111111-1111-1111-1111-111111111111"
	productB = "22222222-2222-2222-2222-222222222222"
	productC = "33333333-3333-3333-3333-333333333333"
	modelID  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	userID   = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func TestPostgresStore_CreateProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	toCreate := &domain.Product{
		Title:       "Bike",
		Description: PtrTo("Almost new"),
		ModelID:     modelID,
		UserID:      userID,
	}

	query := regexp.QuoteMeta(`
		INSERT INTO marketplace.products (title, description, status, category_id, model_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + productColumns + `;
	`)
	rows := sqlmock.NewRows(productRowColumns).
		AddRow(productA, toCreate.Title, toCreate.Description, "ACTIVE", nil, modelID, userID, nil, now, now)

	mock.ExpectQuery(query).
		WithArgs(toCreate.Title, toCreate.Description, domain.ProductStatusActive, nil, modelID, userID).
		WillReturnRows(rows)

	created, err := store.CreateProduct(context.Background(), toCreate)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, productA, created.ID)
	assert.Equal(t, domain.ProductStatusActive, created.Status, "empty status defaults to ACTIVE")
	assert.Nil(t, created.CategoryID)
	assert.Nil(t, created.PromotedUntil)
	assert.WithinDuration(t, now, created.CreatedAt, time.Second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProduct_InvalidModelID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO marketplace.products`)).
		WillReturnError(&pq.Error{Code: "22P02"})

	created, err := store.CreateProduct(context.Background(), &domain.Product{Title: "x", ModelID: "nope", UserID: userID})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidID))
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	promoted := now.Add(24 * time.Hour)
	query := regexp.QuoteMeta(`
		SELECT ` + productColumns + `
		FROM marketplace.products
		WHERE id = $1;
	`)
	rows := sqlmock.NewRows(productRowColumns).
		AddRow(productA, "Bike", nil, "DRAFT", "cat-1", modelID, userID, promoted, now, now)
	mock.ExpectQuery(query).WithArgs(productA).WillReturnRows(rows)

	p, err := store.GetProductByID(context.Background(), productA)

	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusDraft, p.Status)
	require.NotNil(t, p.CategoryID)
	assert.Equal(t, "cat-1", *p.CategoryID)
	require.NotNil(t, p.PromotedUntil)
	assert.Equal(t, promoted.Unix(), p.PromotedUntil.Unix())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByID_NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no rows", sql.ErrNoRows},
		{"malformed uuid", &pq.Error{Code: "22P02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := newMockDBAndStore(t)
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta(`FROM marketplace.products`)).WillReturnError(tt.err)

			p, err := store.GetProductByID(context.Background(), "whatever")

			assert.True(t, errors.Is(err, ErrProductNotFound))
			assert.Nil(t, p)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBuildProductWhere(t *testing.T) {
	where, args, next := buildProductWhere(ListProductsParams{
		CategoryID:  PtrTo("cat-1"),
		UserID:      PtrTo(userID),
		Search:      PtrTo("50%_off"),
		RestrictIDs: true,
		ProductIDs:  []string{productA},
	})

	assert.Equal(t, " WHERE status = $1 AND category_id = $2 AND user_id = $3 AND title ILIKE $4 AND id = ANY($5::uuid[])", where)
	require.Len(t, args, 5)
	assert.Equal(t, domain.ProductStatusActive, args[0])
	assert.Equal(t, `%50\%\_off%`, args[3])
	assert.Equal(t, 6, next)
}

func TestBuildProductWhere_ExplicitStatusAndEmptySearch(t *testing.T) {
	where, args, next := buildProductWhere(ListProductsParams{
		Status: domain.ProductStatusBlocked,
		Search: PtrTo(""),
	})

	assert.Equal(t, " WHERE status = $1", where)
	assert.Equal(t, []any{domain.ProductStatusBlocked}, args)
	assert.Equal(t, 2, next)
}

func TestPostgresStore_ListProducts_DefaultOrder(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	params := ListProductsParams{Limit: 2, Offset: 2, CategoryID: PtrTo("cat-1")}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM marketplace.products WHERE status = $1 AND category_id = $2`)
	dataQuery := regexp.QuoteMeta(`SELECT ` + productColumns + ` FROM marketplace.products WHERE status = $1 AND category_id = $2 ORDER BY ` +
		defaultProductOrder + ` LIMIT $3 OFFSET $4`)

	mock.ExpectQuery(countQuery).WithArgs(domain.ProductStatusActive, "cat-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(dataQuery).WithArgs(domain.ProductStatusActive, "cat-1", 2, 2).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(productA, "A", nil, "ACTIVE", "cat-1", modelID, userID, nil, now, now).
			AddRow(productB, "B", nil, "ACTIVE", "cat-1", modelID, userID, nil, now, now))

	products, total, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, products, 2)
	assert.Equal(t, productA, products[0].ID)
	assert.Equal(t, productB, products[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_OrderByIDs(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	ids := []string{productC, productA}
	params := ListProductsParams{Limit: 10, RestrictIDs: true, ProductIDs: ids, OrderByIDs: true}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM marketplace.products WHERE status = $1 AND id = ANY($2::uuid[])`)).
		WithArgs(domain.ProductStatusActive, pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = $1 AND id = ANY($2::uuid[]) ORDER BY array_position($3::uuid[], id) LIMIT $4 OFFSET $5`)).
		WithArgs(domain.ProductStatusActive, pq.Array(ids), pq.Array(ids), 10, 0).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(productC, "C", nil, "ACTIVE", nil, modelID, userID, nil, now, now).
			AddRow(productA, "A", nil, "ACTIVE", nil, modelID, userID, nil, now, now))

	products, total, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, productC, products[0].ID)
	assert.Equal(t, productA, products[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_EmptyRestrictionSkipsQuery(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 10, RestrictIDs: true})

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, products)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_NoMatches(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM marketplace.products`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 10})

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, products)
	assert.Empty(t, products)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_MalformedCategoryID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM marketplace.products`)).
		WillReturnError(&pq.Error{Code: "22P02"})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM marketplace.products`)).
		WillReturnError(&pq.Error{Code: "22P02"})

	params := ListProductsParams{Limit: 10, CategoryID: PtrTo("not-a-uuid")}
	_, _, err := store.ListProducts(context.Background(), params)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = store.ListProductIDs(context.Background(), params)
	assert.ErrorIs(t, err, ErrInvalidID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProductIDs(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM marketplace.products WHERE status = $1 AND user_id = $2 ORDER BY ` + defaultProductOrder)).
		WithArgs(domain.ProductStatusActive, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(productB).AddRow(productA))

	ids, err := store.ListProductIDs(context.Background(), ListProductsParams{UserID: PtrTo(userID), Limit: 1})

	require.NoError(t, err)
	assert.Equal(t, []string{productB, productA}, ids, "pagination is ignored")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProduct_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	toUpdate := &domain.Product{ID: productA, Title: "New", Status: domain.ProductStatusInactive}
	query := regexp.QuoteMeta(`
		UPDATE marketplace.products
		SET title = $1, description = $2, status = $3, category_id = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`)
	mock.ExpectQuery(query).
		WithArgs(toUpdate.Title, nil, toUpdate.Status, nil, toUpdate.ID).
		WillReturnError(sql.ErrNoRows)

	updated, err := store.UpdateProduct(context.Background(), toUpdate)

	assert.True(t, errors.Is(err, ErrProductNotFound))
	assert.Nil(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`DELETE FROM marketplace.products WHERE id = $1;`)
	mock.ExpectExec(query).WithArgs(productA).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(productB).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteProduct(context.Background(), productA))
	err := store.DeleteProduct(context.Background(), productB)
	assert.True(t, errors.Is(err, ErrProductNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}
