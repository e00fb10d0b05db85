package fields

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

const (
	tempPrefix   = "https://cdn.test/tmp/"
	publicPrefix = "https://cdn.test/public/"
)

// MockObjectStorage is a mock implementation of ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Move(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockObjectStorage) Upload(ctx context.Context, filename, contentType string, r io.Reader) (UploadResult, error) {
	args := m.Called(ctx, filename, contentType, r)
	return args.Get(0).(UploadResult), args.Error(1)
}

var photoColumns = []string{"id", "product_id", "field_id", "value", "created_at", "updated_at"}

func newPhotoHandler(t *testing.T) (Handler, sqlmock.Sqlmock, *MockObjectStorage) {
	t.Helper()
	db, dbMock := newMockDB(t)
	storage := new(MockObjectStorage)
	h := NewPhotoHandler(store.NewPhotoValues(db), PhotoOptions{
		Storage:         storage,
		TempURLPrefix:   tempPrefix,
		PublicURLPrefix: publicPrefix,
		Limiter:         rate.NewLimiter(rate.Inf, 1),
	})
	return h, dbMock, storage
}

func TestPhotoHandler_CreateRelocatesTemporaryURLs(t *testing.T) {
	h, dbMock, storage := newPhotoHandler(t)
	now := time.Now()
	field := definition(domain.FieldTypePhoto, `{"min":1,"max":5}`)

	storage.On("Move", mock.Anything, "a.jpg").Return(nil).Once()
	dbMock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO marketplace.photo_values (product_id, field_id, value) VALUES ($1, $2, $3)`)).
		WithArgs(productA, fieldID, `{"https://cdn.test/public/a.jpg","https://cdn.test/public/b.png"}`).
		WillReturnRows(sqlmock.NewRows(photoColumns).
			AddRow(valueID, productA, fieldID, `{"https://cdn.test/public/a.jpg","https://cdn.test/public/b.png"}`, now, now))

	value, err := h.ValidateAndCreate(context.Background(), ValueInput{
		ProductID: productA,
		Field:     field,
		Raw:       json.RawMessage(`{"field_id":"x","value":["https://cdn.test/tmp/a.jpg","https://cdn.test/public/b.png"]}`),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{publicPrefix + "a.jpg", publicPrefix + "b.png"}, value.Data.(domain.StringListValue).Value)
	storage.AssertExpectations(t)
	require.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPhotoHandler_ResubmittingPublicURLsMovesNothing(t *testing.T) {
	h, dbMock, storage := newPhotoHandler(t)
	now := time.Now()
	field := definition(domain.FieldTypePhoto, `{"max":5}`)
	stored := `{"https://cdn.test/public/a.jpg"}`

	dbMock.ExpectQuery(regexp.QuoteMeta(`UPDATE marketplace.photo_values SET value = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND product_id = $3 AND field_id = $4`)).
		WithArgs(stored, valueID, productA, fieldID).
		WillReturnRows(sqlmock.NewRows(photoColumns).AddRow(valueID, productA, fieldID, stored, now, now))

	value, err := h.ValidateAndUpdate(context.Background(), ValueInput{
		ID:        valueID,
		ProductID: productA,
		Field:     field,
		Raw:       json.RawMessage(`{"id":"` + valueID + `","value":["https://cdn.test/public/a.jpg"]}`),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{publicPrefix + "a.jpg"}, value.Data.(domain.StringListValue).Value)
	storage.AssertNotCalled(t, "Move", mock.Anything, mock.Anything)
	require.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPhotoHandler_MoveFailureIsObjectStorageError(t *testing.T) {
	h, dbMock, storage := newPhotoHandler(t)
	storage.On("Move", mock.Anything, "a.jpg").Return(errors.New("nats: timeout")).Once()

	_, err := h.ValidateAndCreate(context.Background(), ValueInput{
		ProductID: productA,
		Field:     definition(domain.FieldTypePhoto, `{"max":5}`),
		Raw:       json.RawMessage(`{"value":["https://cdn.test/tmp/a.jpg"]}`),
	})

	assert.ErrorIs(t, err, ErrObjectStorage)
	assert.Contains(t, err.Error(), "nats: timeout")
	require.NoError(t, dbMock.ExpectationsWereMet(), "nothing is written when relocation fails")
}

func TestPhotoHandler_Validation(t *testing.T) {
	h, _, storage := newPhotoHandler(t)
	ctx := context.Background()
	field := definition(domain.FieldTypePhoto, `{"min":1,"max":2}`)

	assert.Empty(t, h.ValidateBeforeCreate(ctx, ValueInput{Field: field, Raw: json.RawMessage(`{"value":["https://cdn.test/tmp/a.JPG?v=2"]}`)}))
	assert.Equal(t, []string{"value must contain no more than 2 elements"},
		messages(h.ValidateBeforeCreate(ctx, ValueInput{Field: field, Raw: json.RawMessage(`{"value":["https://x/1.png","https://x/2.png","https://x/3.png"]}`)})))
	assert.Equal(t, []string{"value[0] must be an image URL"},
		messages(h.ValidateBeforeCreate(ctx, ValueInput{Field: field, Raw: json.RawMessage(`{"value":["https://x/readme.txt"]}`)})))

	// Invalid payloads are rejected before anything is moved.
	_, err := h.ValidateAndCreate(ctx, ValueInput{Field: field, Raw: json.RawMessage(`{"value":"https://cdn.test/tmp/a.jpg"}`)})
	_, isValidation := validation.AsError(err)
	assert.True(t, isValidation)
	storage.AssertNotCalled(t, "Move", mock.Anything, mock.Anything)
}

func TestPhotoHandler_ValidateParams(t *testing.T) {
	h, _, _ := newPhotoHandler(t)

	assert.Empty(t, h.ValidateParams(json.RawMessage(`{"min":0,"max":10}`)))
	assert.NotEmpty(t, h.ValidateParams(json.RawMessage(`{"min":3,"max":2}`)))
	assert.Equal(t, []string{"max must not be greater than 50"}, messages(h.ValidateParams(json.RawMessage(`{"max":51}`))))
}

func TestPhotoHandler_WithoutTempPrefixNothingIsTemporary(t *testing.T) {
	db, dbMock := newMockDB(t)
	storage := new(MockObjectStorage)
	h := NewPhotoHandler(store.NewPhotoValues(db), PhotoOptions{Storage: storage})
	now := time.Now()
	stored := `{"https://cdn.test/tmp/a.jpg"}`

	dbMock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO marketplace.photo_values`)).
		WithArgs(productA, fieldID, stored).
		WillReturnRows(sqlmock.NewRows(photoColumns).AddRow(valueID, productA, fieldID, stored, now, now))

	_, err := h.ValidateAndCreate(context.Background(), ValueInput{
		ProductID: productA,
		Field:     definition(domain.FieldTypePhoto, `{"max":1}`),
		Raw:       json.RawMessage(`{"value":["https://cdn.test/tmp/a.jpg"]}`),
	})

	require.NoError(t, err)
	storage.AssertNotCalled(t, "Move", mock.Anything, mock.Anything)
}

func TestPhotoHandler_PrepareRelocatesOnce(t *testing.T) {
	h, dbMock, storage := newPhotoHandler(t)
	now := time.Now()
	field := definition(domain.FieldTypePhoto, `{"max":5}`)
	preparer, ok := h.(Preparer)
	require.True(t, ok)

	storage.On("Move", mock.Anything, "a.jpg").Return(nil).Once()
	in, err := preparer.Prepare(context.Background(), ValueInput{
		ProductID: productA,
		Field:     field,
		Raw:       json.RawMessage(`{"field_id":"x","value":["https://cdn.test/tmp/a.jpg"]}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"field_id":"x","value":["https://cdn.test/public/a.jpg"]}`, string(in.Raw))

	dbMock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO marketplace.photo_values (product_id, field_id, value) VALUES ($1, $2, $3)`)).
		WithArgs(productA, fieldID, `{"https://cdn.test/public/a.jpg"}`).
		WillReturnRows(sqlmock.NewRows(photoColumns).AddRow(valueID, productA, fieldID, `{"https://cdn.test/public/a.jpg"}`, now, now))

	_, err = h.ValidateAndCreate(context.Background(), in)

	require.NoError(t, err)
	storage.AssertNumberOfCalls(t, "Move", 1)
	require.NoError(t, dbMock.ExpectationsWereMet())
}
