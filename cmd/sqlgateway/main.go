package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sqlgateway/sqlgateway/internal/config"
	"github.com/sqlgateway/sqlgateway/internal/dbexec"
	"github.com/sqlgateway/sqlgateway/internal/schema"
	"github.com/sqlgateway/sqlgateway/internal/server"
)

var (
	showVersion    = flag.Bool("version", false, "Show version information")
	validateConfig = flag.Bool("validate", false, "Validate configuration and exit")
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sqlgateway %s\n", Version)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(logLevel(cfg.Logging.Level))

	schemaDB, err := loadSchema(cfg.API.SchemaFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.API.SchemaFile).Msg("failed to load schema artifact")
	}
	log.Info().Str("file", cfg.API.SchemaFile).Int("schemas", len(schemaDB.Schemas)).Msg("schema loaded")

	if *validateConfig {
		log.Info().Msg("configuration and schema validated successfully")
		os.Exit(0)
	}

	ctx := context.Background()
	executor, err := newExecutor(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("dialect", cfg.Database.Dialect).Msg("failed to connect to database")
	}
	defer executor.Close()

	srv := server.NewServer(cfg, schemaDB, executor)

	if cfg.Cache.RedisAddr != "" {
		go subscribeSchemaReload(ctx, cfg.Cache, cfg.API.SchemaFile, srv)
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Str("dialect", cfg.Database.Dialect).Msg("starting sqlgateway")
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("exited")
}

// subscribeSchemaReload listens on cfg.SchemaReloadChannel for
// another instance's "the schema artifact changed" notification and
// hot-swaps this process's catalog, the way the teacher's
// schema_cache.go invalidates its in-memory cache off a Redis pubsub
// message rather than re-querying on every request. A malformed
// reload (unreadable file, invalid JSON) is logged and skipped,
// leaving the previous catalog serving traffic.
func subscribeSchemaReload(ctx context.Context, cfg config.CacheConfig, schemaFile string, srv *server.Server) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()

	sub := client.Subscribe(ctx, cfg.SchemaReloadChannel)
	defer sub.Close()

	log.Info().Str("channel", cfg.SchemaReloadChannel).Msg("listening for schema reload notifications")
	for msg := range sub.Channel() {
		log.Info().Str("payload", msg.Payload).Msg("schema reload notification received")
		db, err := loadSchema(schemaFile)
		if err != nil {
			log.Error().Err(err).Msg("schema reload failed, keeping previous catalog")
			continue
		}
		srv.ReloadSchema(db)
		log.Info().Int("schemas", len(db.Schemas)).Msg("schema reloaded")
	}
}

func loadSchema(path string) (*schema.DB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return schema.Load(raw)
}

// newExecutor picks the dbexec.Executor implementation for
// cfg.Dialect, mirroring connectDatabaseWithRetry's per-backend
// construction in the teacher's main.go, minus the retry loop: a
// compiler process with no database to talk to should fail fast
// rather than loop, since there is no migration step here to wait on.
func newExecutor(ctx context.Context, cfg config.DatabaseConfig) (dbexec.Executor, error) {
	switch cfg.Dialect {
	case "postgres":
		return dbexec.NewPostgresExecutor(ctx, cfg)
	case "sqlite":
		return dbexec.NewSQLiteExecutor(ctx, cfg.DSN)
	case "mysql":
		return dbexec.NewMySQLExecutor(ctx, cfg.DSN, int(cfg.MaxConnections), int(cfg.MinConnections), cfg.MaxConnLifetime)
	case "clickhouse":
		return dbexec.NewClickHouseExecutor(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}
}

func logLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
