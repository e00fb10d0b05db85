package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"marketplace-service/internal/catalog"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

// ProductListingServer is the marketplace.v1.ProductListing service. Requests
// and responses are google.protobuf.Struct values shaped like the HTTP JSON.
type ProductListingServer interface {
	ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ProductListingServiceDesc describes ProductListingServer for grpc.Server.
var ProductListingServiceDesc = grpc.ServiceDesc{
	ServiceName: "marketplace.v1.ProductListing",
	HandlerType: (*ProductListingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProducts", Handler: listProductsHandler},
		{MethodName: "GetProduct", Handler: getProductHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/listing.proto",
}

// RegisterProductListingServer registers srv on s.
func RegisterProductListingServer(s grpc.ServiceRegistrar, srv ProductListingServer) {
	s.RegisterService(&ProductListingServiceDesc, srv)
}

func listProductsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProductListingServer).ListProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/marketplace.v1.ProductListing/ListProducts"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProductListingServer).ListProducts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getProductHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProductListingServer).GetProduct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/marketplace.v1.ProductListing/GetProduct"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProductListingServer).GetProduct(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCHandler implements ProductListingServer on top of the product service.
type GRPCHandler struct {
	products ProductService
	limits   ListingLimits
}

var _ ProductListingServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(ps ProductService, limits ListingLimits) *GRPCHandler {
	return &GRPCHandler{products: ps, limits: limits}
}

// --- Helper: Error Mapping ---

func mapErrorToGrpcStatus(ctx context.Context, err error) error {
	if ve, ok := validation.AsError(err); ok {
		return status.Error(codes.InvalidArgument, strings.Join(ve.Messages(), "; "))
	}
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, fields.ErrFieldNotFound), errors.Is(err, fields.ErrValueNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, fields.ErrUnknownFieldType):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, fields.ErrObjectStorage):
		return status.Error(codes.Unavailable, err.Error())
	default:
		slog.ErrorContext(ctx, "gRPC request failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// grpcListRequest mirrors the HTTP listing query. Sorting is a list because
// Struct fields carry no order.
type grpcListRequest struct {
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
	Search     *string                    `json:"search"`
	Status     string                     `json:"status"`
	CategoryID *string                    `json:"category_id"`
	User       *string                    `json:"user"`
	Filters    map[string]json.RawMessage `json:"filters"`
	Sorting    []struct {
		FieldID   string `json:"field_id"`
		Direction string `json:"direction"`
	} `json:"sorting"`
}

func (r *grpcListRequest) query(limits ListingLimits) (catalog.ListQuery, error) {
	q := catalog.ListQuery{
		Page:       r.Page,
		Limit:      r.Limit,
		Search:     r.Search,
		CategoryID: r.CategoryID,
		UserID:     r.User,
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.CategoryID != nil && *q.CategoryID == "" {
		q.CategoryID = nil
	}
	if q.Limit <= 0 {
		q.Limit = limits.DefaultLimit
	}
	if q.Limit > limits.MaxLimit {
		q.Limit = limits.MaxLimit
	}
	if err := checkCategoryID(q.CategoryID); err != nil {
		return q, status.Error(codes.InvalidArgument, "category_id must be a UUID")
	}
	if r.Status != "" {
		q.Status = domain.ProductStatus(strings.ToUpper(r.Status))
		if !q.Status.Valid() {
			return q, status.Error(codes.InvalidArgument, "status must be one of the following values: ACTIVE, DRAFT, INACTIVE, BLOCKED")
		}
	}

	ids := make([]string, 0, len(r.Filters))
	for id := range r.Filters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		q.Filters = append(q.Filters, catalog.Filter{FieldID: id, Payload: r.Filters[id]})
	}
	for _, s := range r.Sorting {
		dir, ok := fields.ParseDirection(s.Direction)
		if !ok {
			return q, status.Errorf(codes.InvalidArgument, "sorting[%s] must be ASC or DESC", s.FieldID)
		}
		q.Sorting = append(q.Sorting, catalog.Sort{FieldID: s.FieldID, Direction: dir})
	}
	return q, nil
}

// decodeStruct converts a Struct into dest through its JSON form.
func decodeStruct(in *structpb.Struct, dest any) error {
	b, err := in.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

// encodeStruct converts v into a Struct through its JSON form.
func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// --- Product gRPC Methods Implementation ---

func (s *GRPCHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcListRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	q, err := in.query(s.limits)
	if err != nil {
		return nil, err
	}
	result, err := s.products.List(ctx, q)
	if err != nil {
		return nil, mapErrorToGrpcStatus(ctx, err)
	}
	return encodeStruct(result)
}

func (s *GRPCHandler) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(in.ID); err != nil {
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	product, err := s.products.GetProduct(ctx, in.ID)
	if err != nil {
		return nil, mapErrorToGrpcStatus(ctx, err)
	}
	return encodeStruct(product)
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	slog.InfoContext(ctx, "gRPC request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
