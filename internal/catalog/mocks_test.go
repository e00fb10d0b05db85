package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

const (
	productA     = "11111111-1111-1111-1111-111111111111"
	productB     = "22222222-2222-2222-2222-222222222222"
	productC     = "33333333-3333-3333-3333-333333333333"
	modelID      = "44444444-4444-4444-4444-444444444444"
	otherModelID = "55555555-5555-5555-5555-555555555555"
	ownerID      = "user-1"

	priceFieldID    = "aaaaaaaa-0000-0000-0000-000000000001"
	calendarFieldID = "aaaaaaaa-0000-0000-0000-000000000002"
	textFieldID     = "aaaaaaaa-0000-0000-0000-000000000003"
	infoFieldID     = "aaaaaaaa-0000-0000-0000-000000000004"
	legacyFieldID   = "aaaaaaaa-0000-0000-0000-000000000005"
	locationFieldID = "aaaaaaaa-0000-0000-0000-000000000006"
	photoFieldID    = "aaaaaaaa-0000-0000-0000-000000000007"
)

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	args := m.Called(ctx, params)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Int(1), args.Error(2)
}

func (m *MockProductStorer) ListProductIDs(ctx context.Context, params store.ListProductsParams) ([]string, error) {
	args := m.Called(ctx, params)
	var ids []string
	if arg0 := args.Get(0); arg0 != nil {
		ids = arg0.([]string)
	}
	return ids, args.Error(1)
}

func (m *MockProductStorer) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) DeleteProduct(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// passTx runs fn directly and counts transactions.
type passTx struct {
	calls  int
	active bool
}

func (t *passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	t.active = true
	defer func() { t.active = false }()
	return fn(ctx)
}

// fakeDefs serves definitions from memory.
type fakeDefs map[string]domain.FieldDefinition

func (d fakeDefs) Get(_ context.Context, id string) (*domain.FieldDefinition, error) {
	def, ok := d[id]
	if !ok {
		return nil, fields.ErrFieldNotFound
	}
	return &def, nil
}

func (d fakeDefs) ListByModel(_ context.Context, model string) ([]domain.FieldDefinition, error) {
	out := []domain.FieldDefinition{}
	for _, def := range d {
		if def.ModelID == model {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// fakeHandlers resolves types from a map.
type fakeHandlers map[domain.FieldType]fields.Handler

func (h fakeHandlers) Resolve(t domain.FieldType) fields.Handler {
	return h[t]
}

// stubHandler records writes and answers filter, sort and read calls from
// canned data.
type stubHandler struct {
	fieldType domain.FieldType

	filterIDs []string
	filterOK  bool
	filterErr error

	sortFn func(candidates []string) []string

	stored map[string]*domain.AttributeValue // keyed by fieldID + "/" + productID
	noRepo bool

	beforeNodes []validation.Node
	writeErr    error

	mu        sync.Mutex
	sortCalls int
	created   []fields.ValueInput
	updated   []fields.ValueInput
}

func (h *stubHandler) Type() domain.FieldType { return h.fieldType }

func (h *stubHandler) ValidateBeforeCreate(context.Context, fields.ValueInput) []validation.Node {
	return h.beforeNodes
}

func (h *stubHandler) ValidateBeforeUpdate(context.Context, fields.ValueInput) []validation.Node {
	return h.beforeNodes
}

func (h *stubHandler) ValidateAndCreate(_ context.Context, in fields.ValueInput) (*domain.AttributeValue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return nil, h.writeErr
	}
	h.created = append(h.created, in)
	return &domain.AttributeValue{ProductID: in.ProductID, FieldID: in.Field.ID, Type: h.fieldType}, nil
}

func (h *stubHandler) ValidateAndUpdate(_ context.Context, in fields.ValueInput) (*domain.AttributeValue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return nil, h.writeErr
	}
	h.updated = append(h.updated, in)
	return &domain.AttributeValue{ID: in.ID, ProductID: in.ProductID, FieldID: in.Field.ID, Type: h.fieldType}, nil
}

func (h *stubHandler) ValidateParams(json.RawMessage) []validation.Node { return nil }

func (h *stubHandler) ProductIDsByFilter(context.Context, *domain.FieldDefinition, json.RawMessage) ([]string, bool, error) {
	return h.filterIDs, h.filterOK, h.filterErr
}

func (h *stubHandler) SortedProductIDs(_ context.Context, _ *domain.FieldDefinition, candidates []string, _ fields.Direction) ([]string, error) {
	h.mu.Lock()
	h.sortCalls++
	h.mu.Unlock()
	if h.sortFn == nil {
		return candidates, nil
	}
	return h.sortFn(candidates), nil
}

func (h *stubHandler) Repository() fields.Repository {
	if h.noRepo {
		return nil
	}
	return h
}

func (h *stubHandler) FindByFieldAndProduct(_ context.Context, fieldID, productID string) (*domain.AttributeValue, error) {
	if v, ok := h.stored[fieldID+"/"+productID]; ok {
		return v, nil
	}
	return nil, fields.ErrValueNotFound
}

func (h *stubHandler) Describe() fields.TypeInfo {
	return fields.TypeInfo{Type: h.fieldType}
}

// preparingHandler rewrites values in Prepare and records whether a
// transaction was open at the time.
type preparingHandler struct {
	*stubHandler
	tx         *passTx
	prepared   int
	insideTx   bool
	prepareErr error
}

func (h *preparingHandler) Prepare(_ context.Context, in fields.ValueInput) (fields.ValueInput, error) {
	h.prepared++
	h.insideTx = h.insideTx || h.tx.active
	if h.prepareErr != nil {
		return in, h.prepareErr
	}
	in.Raw = json.RawMessage(`{"value":["https://cdn.test/public/a.jpg"]}`)
	return in, nil
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func testProduct(id string) domain.Product {
	now := time.Now()
	return domain.Product{
		ID:        id,
		Title:     "Product " + id[:4],
		Status:    domain.ProductStatusActive,
		ModelID:   modelID,
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
