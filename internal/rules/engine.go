// internal/rules/engine.go
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Hot-swappable compiled catalog set.
 *
 * Engine holds an atomic pointer to an immutable Snapshot. Load compiles
 * a full catalog set off to the side and publishes it with a single
 * pointer store; evaluations already running keep the snapshot they
 * loaded, so no caller ever observes a half-built generation. Snapshots
 * are replaced wholesale, never patched.
 *
 * Loads are serialized by a mutex; readers never lock.
 */

// Source supplies raw catalogs (files, database).
type Source interface {
	Catalogs(ctx context.Context) ([]types.Catalog, error)
}

// Snapshot is one compiled generation of catalogs.
type Snapshot[T any] struct {
	Version     types.VersionID
	Compiled    time.Time
	Diagnostics error
	catalogs    map[string]*CompiledCatalog[T]
}

// Catalog returns the compiled catalog called name.
func (s *Snapshot[T]) Catalog(name string) (*CompiledCatalog[T], error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrCatalogNotFound, name)
	}
	c, ok := s.catalogs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrCatalogNotFound, name)
	}
	return c, nil
}

// Names returns the catalog names in sorted order.
func (s *Snapshot[T]) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.catalogs))
	for name := range s.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine serves evaluations against the current snapshot.
type Engine[T any] struct {
	compiler *Compiler[T]
	current  atomic.Pointer[Snapshot[T]]
	mu       sync.Mutex
}

// NewEngine creates an engine with an empty snapshot.
func NewEngine[T any](compiler *Compiler[T]) *Engine[T] {
	e := &Engine[T]{compiler: compiler}
	e.current.Store(&Snapshot[T]{
		Version:  types.NewVersionID(),
		Compiled: time.Now().UTC(),
		catalogs: map[string]*CompiledCatalog[T]{},
	})
	return e
}

// Snapshot returns the current generation.
func (e *Engine[T]) Snapshot() *Snapshot[T] {
	return e.current.Load()
}

// Load compiles catalogs and swaps them in. Compile diagnostics do not
// prevent the swap; they are kept on the snapshot and returned.
// Duplicate catalog names and context cancellation abort the load and
// leave the current snapshot in place.
func (e *Engine[T]) Load(ctx context.Context, catalogs []types.Catalog) (*Snapshot[T], error) {
	seen := make(map[string]struct{}, len(catalogs))
	for _, c := range catalogs {
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make([]*CompiledCatalog[T], len(catalogs))
	diags := make([]error, len(catalogs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.compiler.opts.workers)
	for i := range catalogs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			compiled[i], diags[i] = e.compiler.Compile(catalogs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compile catalogs: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile catalogs: %w", err)
	}

	snap := &Snapshot[T]{
		Version:  types.NewVersionID(),
		Compiled: time.Now().UTC(),
		catalogs: make(map[string]*CompiledCatalog[T], len(catalogs)),
	}
	var merr *multierror.Error
	for i, c := range compiled {
		snap.catalogs[c.name] = c
		if diags[i] != nil {
			merr = multierror.Append(merr, diags[i])
		}
	}
	snap.Diagnostics = merr.ErrorOrNil()

	e.current.Store(snap)

	e.compiler.opts.logger.Info().
		Str("component", "rules").
		Str("operation", "load").
		Str("version", string(snap.Version)).
		Int("catalogs", len(snap.catalogs)).
		Bool("diagnostics", snap.Diagnostics != nil).
		Msg("catalog snapshot published")

	return snap, snap.Diagnostics
}

// Reload pulls catalogs from src and loads them.
func (e *Engine[T]) Reload(ctx context.Context, src Source) (*Snapshot[T], error) {
	catalogs, err := src.Catalogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogs: %w", err)
	}
	return e.Load(ctx, catalogs)
}

// Satisfied evaluates item against the named catalog.
func (e *Engine[T]) Satisfied(name string, item T) (bool, error) {
	c, err := e.Snapshot().Catalog(name)
	if err != nil {
		return false, err
	}
	return c.Satisfied(item), nil
}

// SatisfiedDetailed evaluates item against the named catalog, collecting codes.
func (e *Engine[T]) SatisfiedDetailed(name string, item T) (Outcome, error) {
	c, err := e.Snapshot().Catalog(name)
	if err != nil {
		return Outcome{}, err
	}
	return c.SatisfiedDetailed(item), nil
}

// FirstMatching returns the first satisfied group label of the named catalog.
func (e *Engine[T]) FirstMatching(name string, item T) (string, bool, error) {
	c, err := e.Snapshot().Catalog(name)
	if err != nil {
		return "", false, err
	}
	label, ok := c.FirstMatching(item)
	return label, ok, nil
}
