// Package server assembles the authkeeper components and runs them until
// the process receives a termination signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/events"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/telemetry"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokencache"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokens"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	redis     *redis.Client
	publisher io.Closer
	tracing   telemetry.Shutdown

	tokens *tokens.Manager
	pruner *tokens.Pruner
	http   *httpapi.Server
	health *gs.HealthServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	tracing, err := telemetry.Setup(ctx, "authkeeper", c.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		_ = tracing(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		_ = tracing(ctx)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	checks := map[string]gs.Check{"postgres": db.PingContext}

	cache, rc, err := openTokenCache(ctx, c.RedisURL, checks, logger)
	if err != nil {
		_ = db.Close()
		_ = tracing(ctx)
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, redis: rc, tracing: tracing}

	issuer := auth.NewIssuer(c.SecretKey, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)

	opts := []tokens.Option{tokens.WithTimeout(c.StoreTimeout)}
	switch {
	case c.EventsEnabled && rc == nil:
		logger.Warn(ctx, "token events need redis, publishing disabled")
	case c.EventsEnabled:
		p, err := events.NewRedisStreamPublisher(rc, logger)
		if err != nil {
			app.close(ctx)
			return nil, fmt.Errorf("events init error: %w", err)
		}
		wp := events.NewWatermillPublisher(p)
		app.publisher = wp
		opts = append(opts, tokens.WithEvents(wp))
	}

	app.tokens = tokens.NewManager(rm.Sessions(db), cache, issuer, logger, opts...)
	app.pruner = tokens.NewPruner(app.tokens, c.PruneInterval, logger)

	var ml mailer.Mailer = mailer.NewLogMailer(logger)
	if c.SMTPEnabled() {
		ml = mailer.NewSMTPMailer(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.MailFrom, logger)
	}

	users := services.NewUserService(db, rm, issuer, app.tokens, ml, c, logger)
	images := services.NewProfileImageService(db, rm, c, logger)

	handler := httpapi.NewHandler(app.tokens, users, images, logger)
	app.http = httpapi.NewServer(c.EndpointAddrHTTP, httpapi.NewRouter(handler, issuer, app.tokens, logger), logger)

	app.health = gs.NewHealthServer(c.EndpointAddrGRPC, c.HealthInterval, checks, logger)

	return app, nil
}

// openTokenCache connects to redis at url and registers its health check.
// An empty url selects the in-process cache, which only suits a single node.
func openTokenCache(ctx context.Context, url string, checks map[string]gs.Check, logger logging.Logger) (tokencache.Cache, *redis.Client, error) {
	if url == "" {
		logger.Warn(ctx, "no redis url configured, using in-process token cache")
		return tokencache.NewMemoryCache(), nil, nil
	}

	rc, err := tokencache.NewRedisClient(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	cache := tokencache.NewRedisCache(rc)
	checks["redis"] = cache.Ping
	return cache, rc, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHealthServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.pruner.Run(ctx)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error(ctx, "events close error", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.tracing(ctx); err != nil {
		app.logger.Error(ctx, "tracing shutdown error", "error", err)
	}
}
