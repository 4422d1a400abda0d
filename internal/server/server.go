package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kinship-crm/kinship/internal/bootstrap"
	"github.com/kinship-crm/kinship/internal/queue"
	mid "github.com/kinship-crm/kinship/internal/server/middleware"
	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
	"github.com/kinship-crm/kinship/pkg/store/memstore"
	"github.com/kinship-crm/kinship/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewValidator reports field errors under their JSON names.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// New returns the configured echo instance for app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(mid.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("25M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := util.GetEnvString("PORT", "8080")
	app := &mid.App{APIKey: util.GetEnv("API_KEY")}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimSuffix(authURL, "/") + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}
	if app.AuthDisabled() {
		logger.Warn("Neither API_KEY nor AUTH_URL set, authentication disabled")
	}

	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		if err := bootstrap.Migrate(dbURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
		pool, err := bootstrap.Pool(ctx, dbURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer pool.Close()
		app.Store = pgx.New(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		app.Store = memstore.New()
		if err := seedTypes(ctx, app.Store); err != nil {
			logger.Fatal("Failed to seed relationship types", "err", err)
		}
	}
	app.Relations = relation.NewService(app.Store)

	bucket, err := bootstrap.Bucket(ctx, util.GetEnvString("PUBLIC_URL", "http://localhost:"+port)+"/files")
	if err != nil {
		logger.Fatal("Failed to create object storage client", "err", err)
	}
	app.Bucket = bucket

	app.Queue = queue.Discard{}
	if cfg, ok := bootstrap.QueueConfig(); ok {
		conn, err := queue.Dial(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.Setup(ch, queue.Queues); err != nil {
			logger.Fatal("Failed to declare queues", "err", err)
		}
		app.Queue = queue.NewPublisher(ch)
	} else {
		logger.Warn("RABBITMQ_HOST not set, background jobs are not queued")
	}

	client, err := bootstrap.AIClient()
	if err != nil {
		logger.Fatal("Failed to create AI client", "err", err)
	}
	app.Assist = bootstrap.Assist(app.Store, app.Relations, client, bucket)

	e := New(app)
	go func() {
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// seedTypes gives the in-memory store the default relationship types the
// Postgres schema is seeded with.
func seedTypes(ctx context.Context, s store.Store) error {
	r := relation.NewService(s)
	for _, t := range relation.DefaultTypes {
		if _, err := r.CreateType(ctx, t); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return nil
}
