package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/ruleset/internal/core/api"
	"github.com/solatis/ruleset/internal/core/auth"
	"github.com/solatis/ruleset/internal/core/catalogfile"
	"github.com/solatis/ruleset/internal/core/config"
	"github.com/solatis/ruleset/internal/core/server"
	"github.com/solatis/ruleset/internal/rules"
	"github.com/solatis/ruleset/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC evaluation service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.String("host", "0.0.0.0", "gRPC server host")
	f.Int("port", 50051, "gRPC server port")
	addEngineFlags(f)
	f.Bool("watch", false, "reload when the catalog file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	compiler, err := newCompiler(cfg.Engine, backend.schema, logger)
	if err != nil {
		return err
	}
	engine := rules.NewEngine(compiler)
	snap, err := engine.Reload(ctx, backend.source)
	if snap == nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}
	logDiagnostics(logger, err)

	authenticator, err := newAuthenticator(backend, logger)
	if err != nil {
		return err
	}

	service, err := api.NewService(engine, backend.source, cfg.Server, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info().
		Str("version", Version).
		Str("address", cfg.Server.Address()).
		Strs("catalogs", snap.Names()).
		Msg("starting ruleset evaluation service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully")
		return grpcServer.Shutdown(context.WithoutCancel(gctx))
	})
	if cfg.Catalogs.Watch {
		g.Go(func() error {
			return catalogfile.Watch(gctx, cfg.Catalogs.Path, catalogfile.DefaultDebounce, logger,
				func(doc *catalogfile.Document) { applyDocument(gctx, engine, backend.schema, doc, cfg, logger) })
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyDocument loads a changed catalog file. The schema is fixed for the
// process lifetime because compiled predicates close over it.
func applyDocument(ctx context.Context, engine *rules.Engine[types.Record], schema map[string]string,
	doc *catalogfile.Document, cfg *config.Config, logger zerolog.Logger) {
	if !maps.Equal(schema, doc.Schema) {
		logger.Warn().Str("path", cfg.Catalogs.Path).Msg("schema change ignored until restart")
	}
	snap, err := engine.Load(ctx, doc.Catalogs)
	if snap == nil {
		logger.Error().Err(err).Msg("catalog reload failed, keeping previous catalogs")
		return
	}
	logDiagnostics(logger, err)
}

// newAuthenticator enables API keys when HMAC secrets are configured.
func newAuthenticator(backend *catalogBackend, logger zerolog.Logger) (*auth.Authenticator, error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil
	}
	if backend.store == nil {
		return nil, fmt.Errorf("API key authentication requires --db-url")
	}
	return auth.NewAuthenticator(secrets, backend.store.Queries(), logger), nil
}
