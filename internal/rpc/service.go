// Package rpc mirrors the HTTP operations as a gRPC service whose messages
// are google.protobuf.Struct, so no generated code is needed.
package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/afinia/internal/orchestrator"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/server"
	"github.com/danielpatrickdp/afinia/internal/state"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "afinia.v1.Afinia"

// #region service-desc
// AfiniaServer is the handler type registered under ServiceName.
type AfiniaServer interface {
	GetParameters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SaveParameters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Chat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(AfiniaServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AfiniaServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AfiniaServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the Afinia service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AfiniaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetParameters", Handler: unaryHandler("GetParameters", AfiniaServer.GetParameters)},
		{MethodName: "SaveParameters", Handler: unaryHandler("SaveParameters", AfiniaServer.SaveParameters)},
		{MethodName: "Chat", Handler: unaryHandler("Chat", AfiniaServer.Chat)},
	},
	Metadata: "afinia/v1/afinia.proto",
}

// #endregion service-desc

// #region server
// Server adapts a server.Service to AfiniaServer.
type Server struct {
	svc    server.Service
	logger *zap.Logger
}

// NewServer wraps svc.
func NewServer(svc server.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

// GetParameters expects {userId}.
func (s *Server) GetParameters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	set, err := s.svc.Parameters(ctx, stringField(in, "userId"))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"parameters": setToMap(set)})
}

// SaveParameters expects {userId, parameters:{...}}.
func (s *Server) SaveParameters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw := map[string]any{}
	if p := in.GetFields()["parameters"].GetStructValue(); p != nil {
		raw = p.AsMap()
	}
	set, err := s.svc.SaveParameters(ctx, stringField(in, "userId"), raw)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"parameters": setToMap(set)})
}

// Chat expects {userId, message}. A save failure after a successful model
// call still returns the reply, with an "error" field set.
func (s *Server) Chat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.svc.Turn(ctx, orchestrator.TurnRequest{
		UserID:  stringField(in, "userId"),
		Message: stringField(in, "message"),
	})
	if err != nil && res.Reply == "" {
		return nil, s.toStatus(err)
	}

	out := map[string]any{
		"reply":   res.Reply,
		"turnId":  res.TurnID,
		"changes": changesToList(res.Changes),
	}
	if res.Parameters != nil {
		out["parameters"] = setToMap(res.Parameters)
	}
	if err != nil {
		s.logger.Error("chat turn", zap.Error(err))
		out["error"] = "could not save parameters"
	}
	return structpb.NewStruct(out)
}

func (s *Server) toStatus(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage), errors.Is(err, state.ErrInvalidUser):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orchestrator.ErrModelUnavailable), errors.Is(err, orchestrator.ErrEmptyCompletion):
		s.logger.Error("model failure", zap.Error(err))
		return status.Error(codes.Unavailable, "error communicating with the model")
	case errors.Is(err, state.ErrSaveFailed):
		s.logger.Error("save failure", zap.Error(err))
		return status.Error(codes.Internal, "could not save parameters")
	default:
		s.logger.Error("rpc failure", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// #endregion server

// #region serve
// NewGRPCServer registers the Afinia service and standard health checking.
func NewGRPCServer(svc server.Service, logger *zap.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(logger)))
	gs.RegisterService(&ServiceDesc, NewServer(svc, logger))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

// Serve runs gs on ln until ctx is cancelled, then drains in-flight calls.
func Serve(ctx context.Context, gs *grpc.Server, hs *health.Server, ln net.Listener, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
		errc <- gs.Serve(ln)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		hs.Shutdown()
		gs.GracefulStop()
		<-errc
		return nil
	}
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}

// #endregion serve

// #region convert
func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func setToMap(set params.Set) map[string]any {
	out := make(map[string]any, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out
}

func changesToList(changes []update.Change) []any {
	out := make([]any, 0, len(changes))
	for _, c := range changes {
		m := map[string]any{
			"name":    c.Name,
			"from":    c.From,
			"to":      c.To,
			"target":  c.Target,
			"outcome": string(c.Outcome),
		}
		if c.Evidence != "" {
			m["evidence"] = c.Evidence
		}
		out = append(out, m)
	}
	return out
}

// #endregion convert
