package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/config"
	"datalab-quiz-service/internal/domain"
	"datalab-quiz-service/internal/infra/memory"
	"datalab-quiz-service/internal/infra/postgres"
	redisinfra "datalab-quiz-service/internal/infra/redis"
	"datalab-quiz-service/internal/infra/sqlite"
	"datalab-quiz-service/internal/questionbank"
	transport "datalab-quiz-service/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the durable backend chosen by configuration.
type stores struct {
	progress     app.ProgressRepository
	attempts     app.AttemptRepository
	achievements app.AchievementRepository
	// questions is set when the catalog is served from the database.
	questions memory.QuestionLoader
	close     func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	var loader memory.QuestionLoader = questionbank.NewYAMLLoader(cfg.Questions.Path)
	if cfg.Questions.Source == "postgres" && backend.questions != nil {
		loader = backend.questions
	}

	var bank app.QuestionBank
	var progressCache app.ProgressCache
	var sessions app.SessionRepository
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, cfg.Questions.CacheTTL)
		progressCache = redisinfra.NewProgressCache(redisClient, cfg.Progress.CacheTTL, log)
		sessions = redisinfra.NewSessionStore(redisClient, cfg.Quiz.SessionTTL)
	} else {
		// the YAML catalog never changes while running
		bankTTL := time.Duration(0)
		if cfg.Questions.Source == "postgres" {
			bankTTL = cfg.Questions.CacheTTL
		}
		bank = memory.NewQuestionBank(loader, bankTTL)
		progressCache = memory.NewProgressCache(cfg.Progress.CacheTTL)
		sessions = memory.NewSessionStore(cfg.Quiz.SessionTTL)
	}

	if err := preloadQuestions(ctx, bank); err != nil {
		return err
	}

	service := app.NewQuizService(
		bank,
		sessions,
		app.NewProgressStore(backend.progress, progressCache, log),
		app.NewAttemptRecorder(backend.attempts, log),
		app.NewAchievementService(backend.achievements, log),
		app.NewRandSource(),
		log,
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Storage()),
			zap.Bool("redis", redisClient != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	switch cfg.Storage() {
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return stores{}, err
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres.URL, postgres.PoolConfig{MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return stores{}, err
		}
		tx := postgres.NewTransactor(pool)
		return stores{
			progress:     postgres.NewProgressRepository(pool),
			attempts:     postgres.NewAttemptRepository(pool, tx),
			achievements: postgres.NewAchievementRepository(pool),
			questions:    postgres.NewQuestionLoader(pool, tx),
			close:        pool.Close,
		}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return stores{}, err
		}
		return stores{
			progress:     sqlite.NewProgressRepository(db),
			attempts:     sqlite.NewAttemptRepository(db),
			achievements: sqlite.NewAchievementRepository(db),
			close:        func() { _ = db.Close() },
		}, nil
	default:
		log.Warn("no database configured, progress is kept in memory")
		store := memory.NewStore()
		return stores{
			progress:     store,
			attempts:     store,
			achievements: store,
			close:        func() {},
		}, nil
	}
}

// preloadQuestions loads every level so a broken catalog fails at startup.
func preloadQuestions(ctx context.Context, bank app.QuestionBank) error {
	for l := domain.Level(0); l < domain.LevelCount; l++ {
		pool, err := bank.Pool(ctx, l)
		if err != nil {
			return fmt.Errorf("load questions for level %d: %w", l, err)
		}
		if len(pool) < domain.QuestionsPerQuiz {
			return fmt.Errorf("%w: level %d has %d, need %d",
				domain.ErrInsufficientQuestions, l, len(pool), domain.QuestionsPerQuiz)
		}
	}
	return nil
}
