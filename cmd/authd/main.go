package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/isacitra/go-auth"
	"github.com/isacitra/go-auth/activitymap"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := auth.NewEnvConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := initDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	provider := auth.NewUserProvider(repo)

	sessions := auth.NewMemorySessionStore()
	sessions.StartJanitor(ctx, time.Minute)

	dispatcher := auth.NewDispatcher(auth.LogNotifier{}, cfg.NotifierWorkers, cfg.NotifierQueue)
	dispatcher.Start()
	defer dispatcher.Stop()

	manager := auth.NewSessionManager(provider, cfg).
		WithSessionStore(sessions).
		WithDispatcher(dispatcher).
		WithActivitySink(auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
			record := activitymap.Normalize(event)
			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}
			log.Printf("activity %s", encoded)
			return nil
		}))

	app := fiber.New()

	controller := auth.NewHTTPController(manager)
	controller.RegisterRoutes(app)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		log.Printf("received signal %s, shutting down", s)
	}

	return app.ShutdownWithTimeout(10 * time.Second)
}

func initDB(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*auth.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
