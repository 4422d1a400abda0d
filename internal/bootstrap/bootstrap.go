// Package bootstrap builds the dependencies shared by the server and the
// worker from environment variables.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/kinship-crm/kinship/internal/queue"
	"github.com/kinship-crm/kinship/internal/storage"
	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/ai/ollama"
	"github.com/kinship-crm/kinship/pkg/ai/openai"
	"github.com/kinship-crm/kinship/pkg/assist"
	"github.com/kinship-crm/kinship/pkg/loader/image"
	"github.com/kinship-crm/kinship/pkg/loader/web"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
)

// Migrate applies all pending migrations from MIGRATIONS_PATH.
func Migrate(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	path := util.GetEnvString("MIGRATIONS_PATH", "migrations")
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("Database migrated", "version", version, "dirty", dirty)
	return nil
}

// Pool connects to Postgres with the pgvector types registered on every
// connection.
func Pool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = util.RetryErrWithContext(ctx, 5, 2*time.Second, pool.Ping)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Bucket returns the S3 bucket when AWS_BUCKET is set and an in-memory
// bucket serving links below baseURL otherwise.
func Bucket(ctx context.Context, baseURL string) (storage.Bucket, error) {
	name := util.GetEnv("AWS_BUCKET")
	if name == "" {
		logger.Warn("AWS_BUCKET not set, photos are kept in memory")
		return storage.NewMemory(baseURL), nil
	}
	return storage.NewS3(ctx, storage.S3Config{
		Region:         util.GetEnvString("AWS_REGION", "us-east-1"),
		Endpoint:       util.GetEnv("AWS_ENDPOINT"),
		PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		AccessKey:      util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey:      util.GetEnv("AWS_SECRET_KEY"),
		Bucket:         name,
		LinkTTL:        util.GetEnvDuration("AWS_LINK_TTL", 15*time.Minute),
	})
}

// QueueConfig reads the broker settings. ok is false without RABBITMQ_HOST.
func QueueConfig() (cfg queue.Config, ok bool) {
	cfg = queue.Config{
		User:     util.GetEnvString("RABBITMQ_USER", "guest"),
		Password: util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		Host:     util.GetEnv("RABBITMQ_HOST"),
		Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
	}
	return cfg, cfg.Host != ""
}

// AIClient selects the adapter named by AI_ADAPTER. It returns nil when no
// chat model is configured; the assistant then answers 503.
func AIClient() (ai.Client, error) {
	chatModel := util.GetEnv("AI_CHAT_MODEL")
	if chatModel == "" {
		logger.Warn("[AI] AI_CHAT_MODEL not set, assistant disabled")
		return nil, nil
	}
	parallel := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4))
	timeout := util.GetEnvDuration("AI_TIMEOUT", 2*time.Minute)

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := ollama.NewClient(ollama.NewClientParams{
			EmbeddingModel:        util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:             chatModel,
			ExtractionModel:       util.GetEnvString("AI_EXTRACT_MODEL", chatModel),
			ImageModel:            util.GetEnv("AI_IMAGE_MODEL"),
			BaseURL:               util.GetEnv("AI_CHAT_URL"),
			ApiKey:                util.GetEnv("AI_CHAT_KEY"),
			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return openai.NewClient(openai.NewClientParams{
			ChatModel:             chatModel,
			ExtractionModel:       util.GetEnvString("AI_EXTRACT_MODEL", chatModel),
			EmbeddingModel:        util.GetEnv("AI_EMBED_MODEL"),
			ImageModel:            util.GetEnv("AI_IMAGE_MODEL"),
			ChatURL:               util.GetEnv("AI_CHAT_URL"),
			ChatKey:               util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL:          util.GetEnvString("AI_EMBED_URL", util.GetEnv("AI_CHAT_URL")),
			EmbeddingKey:          util.GetEnvString("AI_EMBED_KEY", util.GetEnv("AI_CHAT_KEY")),
			ImageURL:              util.GetEnvString("AI_IMAGE_URL", util.GetEnv("AI_CHAT_URL")),
			ImageKey:              util.GetEnvString("AI_IMAGE_KEY", util.GetEnv("AI_CHAT_KEY")),
			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}

// Assist wires the assistant with the page loader and a photo describer
// reading from bucket.
func Assist(s store.Store, relations *relation.Service, client ai.Client, bucket storage.Bucket) *assist.Service {
	opts := assist.Options{
		Pages:         web.NewPageLoader(&http.Client{Timeout: 30 * time.Second}),
		ContextTokens: int(util.GetEnvNumeric("AI_CONTEXT_TOKENS", 6000)),
	}
	if client != nil {
		opts.Photos = image.NewDescriber(client, bucket)
	}
	return assist.New(s, relations, client, opts)
}
