package api

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ruleset/internal/types"
)

// toStatus maps domain and context errors onto gRPC codes.
// Auth errors are mapped by the auth interceptor.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, types.ErrCatalogNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := req.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Error(codes.InvalidArgument, fmt.Sprintf("%s is required", key))
	}
	return v, nil
}

func recordField(req *structpb.Struct, key string) (types.Record, error) {
	obj := req.GetFields()[key].GetStructValue()
	if obj == nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be an object", key))
	}
	return types.Record(obj.AsMap()), nil
}

func newResponse(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return s, nil
}

// stringList converts to the []any form structpb accepts; nil becomes an empty list.
func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
