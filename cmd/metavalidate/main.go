// Package main provides the metavalidate bibliographic validation and
// cross-reference service.
//
// This is the HTTP server entry point: it wires the static plugin registry,
// the validation engine, and the Postgres-backed API key store behind the
// middleware stack, then serves POST /v1/validate and GET /healthz.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/correlator-io/metavalidate/internal/api"
	"github.com/correlator-io/metavalidate/internal/api/middleware"
	"github.com/correlator-io/metavalidate/internal/storage"
	"github.com/correlator-io/metavalidate/internal/validate/authority/audit"
	"github.com/correlator-io/metavalidate/internal/validate/engine"
	"github.com/correlator-io/metavalidate/internal/validate/registry"

	_ "github.com/correlator-io/metavalidate/internal/ingestion"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/dates"
	"github.com/correlator-io/metavalidate/internal/validate/plugins/doi"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/issn"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/language"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/number"
	"github.com/correlator-io/metavalidate/internal/validate/plugins/orcid"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/text"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/textdistance"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "metavalidate"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting metavalidate service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
		slog.Int64("max_request_size", serverConfig.MaxRequestSize),
		slog.Int("engine_workers", serverConfig.EngineWorkers),
	)

	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("Invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database",
			slog.String("database_url", dbConfig.MaskDatabaseURL()),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	keyStore, err := storage.NewPersistentKeyStore(conn)
	if err != nil {
		logger.Error("Failed to create API key store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	auditStore := audit.NewStore(conn.DB, logger)
	doi.SetAuditStore(auditStore)
	orcid.SetAuditStore(auditStore)

	rateLimiter := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())

	eng := engine.New(registry.Default, engine.WithLogger(logger), engine.WithWorkers(serverConfig.EngineWorkers))

	server := api.NewServer(&serverConfig, keyStore, rateLimiter, eng)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("metavalidate service stopped")
}
