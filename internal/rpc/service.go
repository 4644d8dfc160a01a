// Package rpc serves the views and the current state over gRPC. Messages are
// google.protobuf.Struct values so that no generated code is needed.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
)

// #region service-desc

// ServiceName is the full gRPC service name.
const ServiceName = "pomamo.reasonslots.v1.ReasonSlots"

const (
	methodRange   = "Range"
	methodAt      = "At"
	methodCurrent = "Current"
)

// Queries is what the service answers from; *orchestrator.Orchestrator
// implements it.
type Queries interface {
	Range(ctx context.Context, q orchestrator.RangeQuery) (orchestrator.RangeAnswer, error)
	At(ctx context.Context, q orchestrator.PointQuery) (orchestrator.PointAnswer, error)
	Current(ctx context.Context, machine model.MachineID, period resolver.PeriodFlags, notRunningOnly bool) (resolver.State, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Queries)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodRange, Handler: unary(methodRange, handleRange)},
		{MethodName: methodAt, Handler: unary(methodAt, handleAt)},
		{MethodName: methodCurrent, Handler: unary(methodCurrent, handleCurrent)},
	},
	Metadata: "reasonslots.proto",
}

type handler func(ctx context.Context, q Queries, req *structpb.Struct) (map[string]any, error)

func unary(method string, h handler) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			out, err := h(ctx, srv.(Queries), req.(*structpb.Struct))
			if err != nil {
				return nil, toStatus(err)
			}
			resp, err := structpb.NewStruct(out)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode response: %v", err)
			}
			return resp, nil
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, req, info, call)
	}
}

// #endregion

// #region server

// NewServer returns a gRPC server exposing q and the standard health service.
func NewServer(q Queries, log zerolog.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(logging(log)))
	srv.RegisterService(&serviceDesc, q)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func logging(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("rpc")
		return resp, err
	}
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func toStatus(err error) error {
	if errors.Is(err, errBadRequest) || errors.Is(err, orchestrator.ErrUnknownVariant) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion

// #region handlers

func handleRange(ctx context.Context, q Queries, req *structpb.Struct) (map[string]any, error) {
	rq, err := decodeRange(req)
	if err != nil {
		return nil, err
	}
	ans, err := q.Range(ctx, rq)
	if err != nil {
		return nil, err
	}
	slots := make([]any, len(ans.Slots))
	for i, s := range ans.Slots {
		slots[i] = map[string]any(s)
	}
	return map[string]any{
		"variant":             string(ans.Variant),
		"slots":               slots,
		"left_halted":         ans.LeftHalted,
		"right_halted":        ans.RightHalted,
		"lower_limit_reached": ans.LowerLimitReached,
		"upper_limit_reached": ans.UpperLimitReached,
	}, nil
}

func handleAt(ctx context.Context, q Queries, req *structpb.Struct) (map[string]any, error) {
	pq, err := decodePoint(req)
	if err != nil {
		return nil, err
	}
	ans, err := q.At(ctx, pq)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"variant":             string(ans.Variant),
		"lower_limit_reached": ans.LowerLimitReached,
		"upper_limit_reached": ans.UpperLimitReached,
	}
	if ans.Slot != nil {
		out["slot"] = map[string]any(ans.Slot)
	}
	return out, nil
}

func handleCurrent(ctx context.Context, q Queries, req *structpb.Struct) (map[string]any, error) {
	machine, err := machineOf(req)
	if err != nil {
		return nil, err
	}
	period := resolver.PeriodNone
	if raw := req.GetFields()["period"].GetStringValue(); raw != "" {
		var ok bool
		if period, ok = resolver.ParsePeriodFlags(raw); !ok {
			return nil, fmt.Errorf("%w: period %q", errBadRequest, raw)
		}
	}
	s, err := q.Current(ctx, machine, period, req.GetFields()["not_running_only"].GetBoolValue())
	if err != nil {
		return nil, err
	}
	return orchestrator.StateRecord(s), nil
}

// #endregion
