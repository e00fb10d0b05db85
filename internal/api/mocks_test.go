package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/catalog"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
)

const (
	testSecret = "test-secret"
	productID  = "11111111-1111-1111-1111-111111111111"
	modelID    = "44444444-4444-4444-4444-444444444444"
	fieldID    = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	categoryID = "55555555-5555-5555-5555-555555555555"
)

// MockProductService is a mock implementation of ProductService
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) List(ctx context.Context, q catalog.ListQuery) (*catalog.ListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.ListResult), args.Error(1)
}

func (m *MockProductService) GetProduct(ctx context.Context, id string) (*domain.ProductWithFields, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductWithFields), args.Error(1)
}

func (m *MockProductService) CreateProduct(ctx context.Context, actor catalog.Actor, in catalog.CreateProductInput) (*domain.ProductWithFields, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductWithFields), args.Error(1)
}

func (m *MockProductService) UpdateProduct(ctx context.Context, actor catalog.Actor, id string, in catalog.UpdateProductInput) (*domain.ProductWithFields, error) {
	args := m.Called(ctx, actor, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductWithFields), args.Error(1)
}

func (m *MockProductService) DeleteProduct(ctx context.Context, actor catalog.Actor, id string) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

// MockFieldService is a mock implementation of FieldService
type MockFieldService struct {
	mock.Mock
}

func (m *MockFieldService) Create(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	args := m.Called(ctx, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FieldDefinition), args.Error(1)
}

func (m *MockFieldService) Get(ctx context.Context, id string) (*domain.FieldDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FieldDefinition), args.Error(1)
}

func (m *MockFieldService) ListByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error) {
	args := m.Called(ctx, modelID)
	var list []domain.FieldDefinition
	if arg0 := args.Get(0); arg0 != nil {
		list = arg0.([]domain.FieldDefinition)
	}
	return list, args.Error(1)
}

func (m *MockFieldService) Update(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	args := m.Called(ctx, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FieldDefinition), args.Error(1)
}

func (m *MockFieldService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockMediaStore is a mock implementation of MediaStore
type MockMediaStore struct {
	mock.Mock
}

func (m *MockMediaStore) Upload(ctx context.Context, filename, contentType string, r io.Reader) (fields.UploadResult, error) {
	args := m.Called(ctx, filename, contentType, r)
	return args.Get(0).(fields.UploadResult), args.Error(1)
}

func (m *MockMediaStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.String(1), args.Error(2)
}

type staticTypes []fields.TypeInfo

func (s staticTypes) Describe() []fields.TypeInfo { return s }

type testDeps struct {
	products *MockProductService
	fields   *MockFieldService
	media    *MockMediaStore
	types    staticTypes
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T) (*httptest.Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		products: new(MockProductService),
		fields:   new(MockFieldService),
		media:    new(MockMediaStore),
		types:    staticTypes{{Type: domain.FieldTypePrice, Filterable: true, Sortable: true}},
	}
	handler := NewHTTPHandler(deps.products, deps.fields, deps.types, deps.media,
		NewAuthenticator(testSecret, "admin"),
		Options{Listing: ListingLimits{DefaultLimit: 20, MaxLimit: 100}, MaxUploadBytes: 1 << 20})
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, deps
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeError(t *testing.T, res *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

// PtrTo returns a pointer to v.
func PtrTo[T any](v T) *T {
	return &v
}
