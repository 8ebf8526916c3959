package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ruleset/internal/core/auth"
	"github.com/solatis/ruleset/internal/types"
)

// EvaluateBatch evaluates many items against one catalog from a single
// snapshot. Request: {catalog, items: [...], detailed?}. Items that are not
// objects get a per-item error; the rest of the batch still runs.
// Response: {results: [{index, satisfied, codes?, error?}], satisfied_count, version}.
func (s *Service) EvaluateBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, cat, err := s.target(req)
	if err != nil {
		return nil, err
	}

	itemsVal, ok := req.GetFields()["items"]
	if !ok || itemsVal.GetListValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "items must be a list")
	}
	items := itemsVal.GetListValue().GetValues()
	if len(items) > s.maxBatch {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("batch size exceeds maximum of %d items", s.maxBatch))
	}
	detailed := req.GetFields()["detailed"].GetBoolValue()

	results := make([]any, len(items))
	satisfiedCount := 0
	for i, v := range items {
		if err := ctx.Err(); err != nil {
			return nil, toStatus(err)
		}

		result := map[string]any{"index": i}
		obj := v.GetStructValue()
		if obj == nil {
			result["satisfied"] = false
			result["error"] = "item must be an object"
			results[i] = result
			continue
		}

		item := types.Record(obj.AsMap())
		if detailed {
			out := cat.SatisfiedDetailed(item)
			result["satisfied"] = out.Satisfied
			result["codes"] = stringList(out.Codes)
		} else {
			result["satisfied"] = cat.Satisfied(item)
		}
		if result["satisfied"] == true {
			satisfiedCount++
		}
		results[i] = result
	}

	s.logger.Debug().
		Str("operation", "evaluate_batch").
		Str("catalog", cat.Name()).
		Str("caller", auth.LabelFromContext(ctx)).
		Int("items", len(items)).
		Int("satisfied", satisfiedCount).
		Msg("evaluate")

	return newResponse(map[string]any{
		"results":         results,
		"satisfied_count": satisfiedCount,
		"version":         string(snap.Version),
	})
}
