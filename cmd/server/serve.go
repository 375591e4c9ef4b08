package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/api"
	"github.com/akshat-collab/code-battle-arena/internal/arena"
	"github.com/akshat-collab/code-battle-arena/internal/bus"
	"github.com/akshat-collab/code-battle-arena/internal/cache"
	"github.com/akshat-collab/code-battle-arena/internal/config"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/lock"
	"github.com/akshat-collab/code-battle-arena/internal/stats"
	"github.com/akshat-collab/code-battle-arena/internal/users"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, newLogger())
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", "localhost:8000", "server address")
	flags.String("dsn", "", "database connection string")
	flags.String("store", config.StorePostgres, "room store: postgres or memory")
	flags.String("signing-key", "", "base64 encoded signing key")
	flags.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	flags.String("redis-addr", "", "redis address for the event bus, user cache and sweeper lock")
	flags.String("judge-url", "", "judge service URL, the built-in judge is used when empty")
	flags.Bool("migrate", false, "apply database migrations before serving")

	rootCmd.AddCommand(serveCmd)
}

func openStore(cfg *config.Config, logger *log.Logger) (database.ArenaRepository, func() error, error) {
	if cfg.Store == config.StoreMemory {
		logger.Println("using in-memory store")
		return database.NewMemoryArenaRepository(), func() error { return nil }, nil
	}

	if cfg.Migrate {
		if err := database.Migrate(cfg.DatabaseDSN, database.MigrateUp, logger); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	dbConn, err := database.NewPgArenaRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}

	return database.NewRetryingRepository(dbConn, logger), dbConn.Close, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	var (
		eventBus  bus.Bus
		userCache cache.UserCache
		locker    lock.Locker = lock.LocalLocker{}
	)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		eventBus = bus.NewRedisBus(rdb, cfg.Redis.Channel, logger)
		userCache = cache.NewRedisUserCache(rdb, cfg.Redis.CacheTTL)
		locker = lock.NewRedisLocker(rdb)
	} else {
		logger.Println("redis not configured, running as a single instance")
		eventBus = bus.NewLocalBus(1024)
	}

	var j judge.Judge = judge.FixedJudge{Score: cfg.JudgeScore}
	if cfg.JudgeURL != "" {
		j = judge.NewHTTPJudge(cfg.JudgeURL, cfg.JudgeTimeout)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	var manager *arena.Manager
	h := hub.NewHub(logger, eventBus, hub.RoomFinderFunc(func(ctx context.Context, id string) (bool, error) {
		return manager.RoomExists(ctx, id)
	}), statsUpdater)
	manager = arena.NewManager(store, h, j, users.NewResolver(store, userCache, logger), logger, arena.Options{
		JudgeTimeout: cfg.JudgeTimeout,
	})

	srv := api.NewArenaApp(mux, logger, manager, h, store, statsUpdater, cfg)
	sweeper := arena.NewSweeper(manager, locker, cfg.SweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Println("HTTP server shutdown:", err)
		}

		logger.Println("shutting down hub...")
		if err := h.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("hub shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Println("shutdown complete")
	return nil
}
