package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chapter-quiz-service/internal/achievements"
	"chapter-quiz-service/internal/app"
	"chapter-quiz-service/internal/config"
	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/infra/files"
	"chapter-quiz-service/internal/infra/memory"
	pgstore "chapter-quiz-service/internal/infra/postgres"
	redisstore "chapter-quiz-service/internal/infra/redis"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/quiz"
	"chapter-quiz-service/internal/reconcile"
	"chapter-quiz-service/internal/remote"
	transport "chapter-quiz-service/internal/transport/http"
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

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// content: postgres, then a directory, then the built-in sample
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	switch {
	case pool != nil:
		loader = pgstore.NewQuizLoader(pool)
	case cfg.Quiz.Dir != "":
		loader = files.NewQuizLoader(cfg.Quiz.Dir)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionRepository
	var devices kv.Store
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
		devices = redisstore.NewKVStore(redisClient, "quizkv")
	} else {
		sessions = memory.NewSessionStore()
		devices = kv.NewMemory()
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rules := achievements.DefaultRules()
	rules.TotalChapters = cfg.Quiz.TotalChapters
	rules.Location = loc
	machine := quiz.Machine{Shuffle: quiz.ShuffleIndices, ImmediateFeedback: *cfg.Quiz.ImmediateFeedback}

	mux := http.NewServeMux()
	opts := app.Options{Machine: &machine, Rules: &rules, Logger: logger}

	var queue *reconcile.Queue
	if cfg.Remote.Mode != config.RemoteOff {
		var target reconcile.Remote
		switch cfg.Remote.Mode {
		case config.RemoteHTTP:
			target = remote.NewClient(cfg.Remote.BaseURL, &http.Client{Timeout: config.TTLDuration(cfg.Remote.Timeout, 10*time.Second)})
			logger.Info("remote progress store", "mode", cfg.Remote.Mode, "url", cfg.Remote.BaseURL)
		default:
			var store remote.Store = memory.NewRemoteStore()
			if pool != nil {
				store = pgstore.NewRemoteStore(pool)
			}
			service := remote.NewService(store, remote.NewValidator(cfg.Quiz.TotalChapters), logger)
			transport.NewRemoteHandler(service, cfg.Remote.AdminToken, logger).Register(mux)
			target = service
			logger.Info("remote progress store", "mode", cfg.Remote.Mode, "postgres", pool != nil)
		}
		queue = reconcile.NewQueue(cfg.Reconcile.QueueSize, config.TTLDuration(cfg.Reconcile.Timeout, 10*time.Second), logger)
		opts.Syncer = reconcile.NewSyncer(target, logger)
		opts.Queue = queue
	}

	service := app.NewQuizService(sessions, quizRepo, devices, opts)
	wsHandler := transport.NewWSHandler(service, logger)

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

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if queue != nil {
			if qerr := queue.Close(shutdownCtx); qerr != nil {
				logger.Warn("remote queue not drained", "error", qerr)
			}
			completed, failed, dropped := queue.Stats()
			logger.Info("remote queue closed", "completed", completed, "failed", failed, "dropped", dropped)
		}
		return err
	})
	return g.Wait()
}

// sampleQuizzes is the content served when neither Postgres nor a content
// directory is configured.
func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		domain.ChapterKey(1): {
			Chapter:      1,
			PassingScore: 70,
			Questions: []domain.Question{
				{
					Kind:         domain.KindMultipleChoice,
					Prompt:       "Which keyword starts a goroutine?",
					Options:      []string{"go", "async", "spawn", "thread"},
					CorrectIndex: 0,
					Explanation:  "A go statement runs a function call in a new goroutine.",
					Hints:        []string{"It is also the name of the language."},
				},
				{
					Kind:        domain.KindTrueFalse,
					Prompt:      "A nil map can be written to.",
					CorrectBool: false,
					Explanation: "Writing to a nil map panics; reading returns the zero value.",
				},
				{
					Kind:            domain.KindFillBlank,
					Prompt:          "The zero value of a pointer is ____.",
					AcceptedAnswers: []string{"nil"},
					Explanation:     "Pointers, slices, maps, channels and funcs are nil when zero.",
				},
				{
					Kind:        domain.KindOrdering,
					Prompt:      "Order the steps of a graceful shutdown.",
					Items:       []string{"stop accepting connections", "drain in-flight requests", "close resources"},
					Explanation: "Shutdown stops listeners before waiting on active connections.",
				},
			},
		},
	}
}
