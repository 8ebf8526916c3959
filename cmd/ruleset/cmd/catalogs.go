package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/solatis/ruleset/internal/core/catalogfile"
	"github.com/solatis/ruleset/internal/core/config"
	"github.com/solatis/ruleset/internal/core/db"
	"github.com/solatis/ruleset/internal/rules"
	"github.com/solatis/ruleset/internal/types"
)

// catalogBackend is where catalogs and their schema come from: a catalog
// file, or the database when a file is not given.
type catalogBackend struct {
	source rules.Source
	schema map[string]string
	conn   *sqlx.DB
	store  *db.Store
}

func (b *catalogBackend) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// openBackend prefers catalogs.path over db.url for catalogs. The database
// is still opened when configured so API keys can be checked.
func openBackend(ctx context.Context, cfg *config.Config) (*catalogBackend, error) {
	b := &catalogBackend{}

	if cfg.DB.URL != "" {
		conn, err := openMigrated(ctx, cfg.DB.URL)
		if err != nil {
			return nil, err
		}
		store, err := db.NewStore(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		b.conn, b.store = conn, store
	}

	switch {
	case cfg.Catalogs.Path != "":
		doc, err := catalogfile.Load(cfg.Catalogs.Path)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.source = catalogfile.FileSource{Path: cfg.Catalogs.Path}
		b.schema = doc.Schema
	case b.store != nil:
		schema, err := b.store.Schema(ctx)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.source = b.store
		b.schema = schema
	default:
		return nil, fmt.Errorf("no catalog source: set --catalogs or --db-url")
	}

	return b, nil
}

// openMigrated opens dbURL and refuses to continue with pending migrations.
func openMigrated(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	conn, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	statuses, err := db.MigrateStatus(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			conn.Close()
			return nil, fmt.Errorf("migration %s not applied - run 'ruleset migrate' first", s.ID)
		}
	}
	return conn, nil
}

// newCompiler builds a record compiler from engine settings and a schema.
func newCompiler(cfg config.EngineConfig, schema map[string]string, logger zerolog.Logger) (*rules.Compiler[types.Record], error) {
	desc, err := rules.NewSchemaDescriptor(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	opts := []rules.Option{
		rules.WithLogger(logger),
		rules.WithWorkers(cfg.CompileWorkers),
		rules.WithMaxPatternLength(cfg.MaxPatternLength),
		rules.WithMaxMatchInput(cfg.MaxMatchInput),
	}
	if cfg.DropEmptyCodes {
		opts = append(opts, rules.WithDropEmptyCodes())
	}
	if cfg.CostOrdering {
		opts = append(opts, rules.WithCostOrdering())
	}
	return rules.NewCompiler[types.Record](desc, opts...), nil
}

// logDiagnostics reports compile problems without failing the command.
func logDiagnostics(logger zerolog.Logger, err error) {
	if err == nil {
		return
	}
	logger.Warn().Err(err).Msg("catalogs compiled with diagnostics; affected conditions or groups were dropped")
}

// addEngineFlags registers the catalog and compile flags shared by serve and eval.
func addEngineFlags(f *pflag.FlagSet) {
	f.String("catalogs", "", "catalog document (YAML or JSON); overrides the database as catalog source")
	f.Int("workers", 4, "parallel catalog compile workers")
	f.Bool("drop-empty", false, "omit empty failure codes from detailed results")
	f.Bool("cost-ordered", false, "evaluate cheaper conditions first within each group")
}
