package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
	"stratlab/internal/gather"
	"stratlab/internal/service"
	"stratlab/internal/store"
)

// BacktestServiceName is the fully qualified gRPC service name.
const BacktestServiceName = "stratlab.v1.Backtest"

// BacktestServer is the server API for the Backtest gRPC service. Payloads
// are google.protobuf.Struct so requests and responses share the JSON shape
// of the HTTP API.
type BacktestServer interface {
	// Run executes a backtest request and returns the stored run.
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListStrategies returns the registered strategy names.
	ListStrategies(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// BacktestServiceDesc describes the Backtest service for grpc.Server.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "ListStrategies", Handler: listStrategiesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stratlab/v1/backtest.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + BacktestServiceName + "/Run"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listStrategiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).ListStrategies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + BacktestServiceName + "/ListStrategies"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).ListStrategies(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ---------------------------------------------------------------------------
// Service implementation
// ---------------------------------------------------------------------------

var _ BacktestServer = (*BacktestService)(nil)

// BacktestService implements BacktestServer over the backtest service.
type BacktestService struct {
	svc *service.Backtests
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(svc *service.Backtests) *BacktestService {
	return &BacktestService{svc: svc}
}

// Run decodes the request struct, executes it and returns the stored run.
func (s *BacktestService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req engine.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	run, _, err := s.svc.Execute(ctx, req)
	if err != nil {
		return nil, statusFor(err)
	}
	out, err := toStruct(run)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding run: %v", err)
	}
	return out, nil
}

// ListStrategies returns the registered strategy names.
func (s *BacktestService) ListStrategies(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	names := s.svc.Strategies()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	return structpb.NewList(values)
}

// statusFor maps a service error to a gRPC status.
func statusFor(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrInvalidRisk),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, engine.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, gather.ErrNoData), errors.Is(err, store.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts v to a Struct through its JSON form, so custom
// MarshalJSON methods (null for non-finite metrics) apply.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return fmt.Errorf("empty request")
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// BacktestClient is the client API for the Backtest service.
type BacktestClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktestClient wraps a connection.
func NewBacktestClient(cc grpc.ClientConnInterface) *BacktestClient {
	return &BacktestClient{cc: cc}
}

// Run calls Backtest/Run.
func (c *BacktestClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BacktestServiceName+"/Run", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStrategies calls Backtest/ListStrategies.
func (c *BacktestClient) ListStrategies(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+BacktestServiceName+"/ListStrategies", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RunRequest encodes req for Run.
func RunRequest(req engine.Request) (*structpb.Struct, error) {
	return toStruct(req)
}
