package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/engine"
	"quiz-session-service/internal/infra/memory"
	pgloader "quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/infra/sqlite"
	transport "quiz-session-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.CategoryLoader = memory.NewStaticCategoryLoader(sampleCategories())
	if pool != nil {
		loader = pgloader.NewCategoryLoader(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var bank engine.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewCategoryRepository(redisClient, loader, cacheTTL)
	} else {
		bank = memory.NewCategoryRepository(loader, cacheTTL)
	}

	var sqliteStore *sqlite.Store
	if cfg.SQLite.Path != "" {
		sqliteStore, err = sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
	}

	// Snapshot slot: redis when configured, else the local sqlite file,
	// else process memory (no resume across restarts).
	var store engine.SnapshotStore
	switch {
	case redisClient != nil:
		store = redisinfra.NewSnapshotStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 0))
	case sqliteStore != nil:
		store = sqlite.NewSnapshotStore(sqliteStore)
	default:
		store = memory.NewSnapshotStore()
	}

	var recorder engine.ResultRecorder
	if sqliteStore != nil {
		recorder = sqlite.NewResultRecorder(sqliteStore)
	} else {
		recorder = memory.NewResultRecorder()
	}

	service := engine.NewService(bank, store, recorder, engine.Defaults{
		TimePerQuestionSeconds: cfg.Quiz.TimePerQuestionSeconds,
		Shuffle:                cfg.Quiz.Shuffle,
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCategories provides demo content; configure postgres to serve
// real categories in production.
func sampleCategories() map[string]domain.Category {
	return map[string]domain.Category{
		"general": {
			ID:   "general",
			Name: "General Knowledge",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Type:          domain.SingleChoice,
					Prompt:        "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "4",
				},
				{
					ID:             "q2",
					Type:           domain.MultiSelect,
					Prompt:         "Which of these are prime numbers?",
					Options:        []string{"2", "4", "5", "9"},
					CorrectAnswers: []string{"2", "5"},
				},
				{
					ID:            "q3",
					Type:          domain.Boolean,
					Prompt:        "The Earth orbits the Sun.",
					Options:       []string{"true", "false"},
					CorrectAnswer: "true",
				},
				{
					ID:            "q4",
					Type:          domain.FreeText,
					Prompt:        "What is the capital of France?",
					CorrectAnswer: "Paris",
				},
			},
		},
	}
}
