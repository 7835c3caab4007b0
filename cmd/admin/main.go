package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/admin"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokencache"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokens"
)

// flags that take a value, see config.parseFlags and flagx.JsonConfigFlags
var valueFlags = []string{"-a", "-g", "-d", "-r", "-s", "-t", "-f", "-p", "-b", "-e", "-c", "-config"}

func main() {
	if err := run(context.Background()); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			admin.Usage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	args := flagx.Positional(os.Args[1:], valueFlags)
	if len(args) == 0 {
		return admin.ErrUsage
	}

	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogFormat, "warn")

	rm := repomanager.NewPostgresRepositoryManager()
	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rc, err := tokencache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis init error: %w", err)
	}
	defer rc.Close()

	issuer := auth.NewIssuer(cfg.SecretKey, cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	manager := tokens.NewManager(rm.Sessions(db), tokencache.NewRedisCache(rc), issuer, logger, tokens.WithTimeout(cfg.StoreTimeout))

	users := services.NewUserService(db, rm, issuer, manager, mailer.NewLogMailer(logger), cfg, logger)
	images := services.NewProfileImageService(db, rm, cfg, logger)

	migrate := func(ctx context.Context) error { return rm.RunMigrations(ctx, db) }

	return admin.New(migrate, manager, users, images, os.Stdout).Run(ctx, args)
}
