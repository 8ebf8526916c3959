// Package api implements the ruleset.v1.Evaluation gRPC service.
//
// Messages are google.protobuf.Struct values so items of any shape can be
// evaluated against the schema-driven record descriptor without generated
// per-domain message types.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ruleset/internal/core/auth"
	"github.com/solatis/ruleset/internal/core/config"
	"github.com/solatis/ruleset/internal/rules"
	"github.com/solatis/ruleset/internal/types"
)

// Service implements EvaluationServer over a record engine.
type Service struct {
	engine   *rules.Engine[types.Record]
	source   rules.Source
	maxBatch int
	logger   zerolog.Logger
}

// NewService wires the engine. source may be nil, in which case Reload
// reports FailedPrecondition.
func NewService(engine *rules.Engine[types.Record], source rules.Source, cfg config.ServerConfig, logger zerolog.Logger) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", cfg.MaxBatchSize)
	}
	return &Service{
		engine:   engine,
		source:   source,
		maxBatch: cfg.MaxBatchSize,
		logger:   logger.With().Str("component", "api").Logger(),
	}, nil
}

// target resolves the request's catalog in the current snapshot.
func (s *Service) target(req *structpb.Struct) (*rules.Snapshot[types.Record], *rules.CompiledCatalog[types.Record], error) {
	name, err := requiredString(req, "catalog")
	if err != nil {
		return nil, nil, err
	}
	snap := s.engine.Snapshot()
	cat, err := snap.Catalog(name)
	if err != nil {
		return nil, nil, toStatus(err)
	}
	return snap, cat, nil
}

func (s *Service) logCall(ctx context.Context, op, catalog string) {
	s.logger.Debug().
		Str("operation", op).
		Str("catalog", catalog).
		Str("caller", auth.LabelFromContext(ctx)).
		Msg("evaluate")
}

// Satisfied answers {catalog, item} with {satisfied, version}.
func (s *Service) Satisfied(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, cat, err := s.target(req)
	if err != nil {
		return nil, err
	}
	item, err := recordField(req, "item")
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, "satisfied", cat.Name())

	return newResponse(map[string]any{
		"satisfied": cat.Satisfied(item),
		"version":   string(snap.Version),
	})
}

// SatisfiedDetailed answers {catalog, item} with {satisfied, codes, version}.
func (s *Service) SatisfiedDetailed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, cat, err := s.target(req)
	if err != nil {
		return nil, err
	}
	item, err := recordField(req, "item")
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, "satisfied_detailed", cat.Name())

	out := cat.SatisfiedDetailed(item)
	return newResponse(map[string]any{
		"satisfied": out.Satisfied,
		"codes":     stringList(out.Codes),
		"version":   string(snap.Version),
	})
}

// FirstMatching answers {catalog, item} with {matched, label, version};
// label is omitted when no group matched.
func (s *Service) FirstMatching(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, cat, err := s.target(req)
	if err != nil {
		return nil, err
	}
	item, err := recordField(req, "item")
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, "first_matching", cat.Name())

	label, ok := cat.FirstMatching(item)
	resp := map[string]any{
		"matched": ok,
		"version": string(snap.Version),
	}
	if ok {
		resp["label"] = label
	}
	return newResponse(resp)
}

// Reload recompiles catalogs from the configured source. Compile
// diagnostics are returned alongside the new version, not as an error.
func (s *Service) Reload(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.FailedPrecondition, "no catalog source configured")
	}

	snap, err := s.engine.Reload(ctx, s.source)
	if snap == nil {
		s.logger.Error().Err(err).Str("operation", "reload").Msg("catalog reload failed")
		return nil, toStatus(err)
	}

	s.logger.Info().
		Str("operation", "reload").
		Str("caller", auth.LabelFromContext(ctx)).
		Str("version", string(snap.Version)).
		Msg("catalogs reloaded")

	return newResponse(map[string]any{
		"version":     string(snap.Version),
		"catalogs":    len(snap.Names()),
		"diagnostics": stringList(diagnostics(err)),
	})
}

// diagnostics flattens a compile error into one message per problem.
func diagnostics(err error) []string {
	if err == nil {
		return nil
	}
	var multi interface{ WrappedErrors() []error }
	if errors.As(err, &multi) {
		wrapped := multi.WrappedErrors()
		out := make([]string, len(wrapped))
		for i, e := range wrapped {
			out[i] = e.Error()
		}
		return out
	}
	return []string{err.Error()}
}
