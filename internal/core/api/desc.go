package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ruleset.v1.Evaluation"

// EvaluationServer is the server API for ruleset.v1.Evaluation.
type EvaluationServer interface {
	Satisfied(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SatisfiedDetailed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FirstMatching(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCatalogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reload(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(EvaluationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EvaluationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EvaluationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes ruleset.v1.Evaluation for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvaluationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Satisfied", Handler: methodHandler("Satisfied", EvaluationServer.Satisfied)},
		{MethodName: "SatisfiedDetailed", Handler: methodHandler("SatisfiedDetailed", EvaluationServer.SatisfiedDetailed)},
		{MethodName: "FirstMatching", Handler: methodHandler("FirstMatching", EvaluationServer.FirstMatching)},
		{MethodName: "EvaluateBatch", Handler: methodHandler("EvaluateBatch", EvaluationServer.EvaluateBatch)},
		{MethodName: "ListCatalogs", Handler: methodHandler("ListCatalogs", EvaluationServer.ListCatalogs)},
		{MethodName: "Reload", Handler: methodHandler("Reload", EvaluationServer.Reload)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ruleset/v1/evaluation.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv EvaluationServer) {
	s.RegisterService(&ServiceDesc, srv)
}
