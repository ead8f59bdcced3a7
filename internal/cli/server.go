package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
	"trivia-quiz-service/internal/infra/postgres"
	redisstore "trivia-quiz-service/internal/infra/redis"
	transport "trivia-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

// backends is the set of stores chosen from config.
type backends struct {
	questions app.QuestionSource
	sessions  app.SessionRepository
	users     app.UserRepository
	closers   []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends picks Postgres when a URL is configured, then Redis, then memory. Redis also
// fronts the catalog as a question cache whenever it is configured.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, domain.Unavailable("ping redis", err)
		}
	}

	var catalog app.QuestionSource
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			b.close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, domain.Unavailable("connect postgres", err)
		}
		b.closers = append(b.closers, pool.Close)

		pgCatalog := postgres.NewQuestionCatalog(pool)
		if n, err := pgCatalog.Count(ctx); err == nil && n == 0 {
			log.Warn().Msg("question catalog is empty; run the seed command")
		}
		catalog = pgCatalog
		b.sessions = postgres.NewSessionStore(pool)
		b.users = postgres.NewUserStore(pool)
		log.Info().Msg("using postgres session and user stores")
	} else {
		catalog = memory.NewQuestionCatalog(sampleQuestions())
	}

	switch {
	case redisClient != nil && b.sessions == nil:
		b.sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 0))
		b.users = redisstore.NewUserStore(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis session and user stores")
	case b.sessions == nil:
		b.sessions = memory.NewSessionStore()
		b.users = memory.NewUserStore()
		log.Warn().Msg("using in-memory stores; data is lost on restart")
	}

	if redisClient != nil {
		b.questions = redisstore.NewQuestionCache(redisClient, catalog, quizTTL)
	} else {
		b.questions = memory.NewQuestionCache(catalog, quizTTL)
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	leaderboard := app.NewLeaderboardService(b.users, cfg.Leaderboard.Size,
		config.TTLDuration(cfg.Leaderboard.CacheTTL, 2*time.Second))
	quiz := app.NewQuizService(b.sessions, b.questions, b.users,
		app.WithQuestionCount(cfg.Quiz.QuestionCount),
		app.WithCompletionListener(leaderboard),
	)

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("auth.jwtSecret not set; trusting X-User-ID headers")
	}
	handler := transport.NewRouter(quiz, leaderboard, transport.NewAuthenticator(cfg.Auth.JWTSecret),
		config.TTLDuration(cfg.Server.RequestTimeout, 5*time.Second))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions seeds the in-memory catalog when no database is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "sample-1", Category: "Science: Computers", Type: "multiple", Difficulty: "easy",
			Prompt: "What does CPU stand for?", CorrectAnswer: "Central Processing Unit",
			IncorrectAnswers: []string{"Central Process Unit", "Computer Personal Unit", "Central Processor Unit"}},
		{ID: "sample-2", Category: "Geography", Type: "multiple", Difficulty: "easy",
			Prompt: "What is the capital of Australia?", CorrectAnswer: "Canberra",
			IncorrectAnswers: []string{"Sydney", "Melbourne", "Perth"}},
		{ID: "sample-3", Category: "Science & Nature", Type: "multiple", Difficulty: "easy",
			Prompt: "What is the chemical symbol for gold?", CorrectAnswer: "Au",
			IncorrectAnswers: []string{"Ag", "Gd", "Go"}},
		{ID: "sample-4", Category: "History", Type: "multiple", Difficulty: "easy",
			Prompt: "In which year did the Berlin Wall fall?", CorrectAnswer: "1989",
			IncorrectAnswers: []string{"1991", "1987", "1985"}},
		{ID: "sample-5", Category: "Entertainment: Music", Type: "multiple", Difficulty: "easy",
			Prompt: "How many strings does a standard violin have?", CorrectAnswer: "4",
			IncorrectAnswers: []string{"5", "6", "3"}},
		{ID: "sample-6", Category: "Mathematics", Type: "multiple", Difficulty: "easy",
			Prompt: "What is the square root of 144?", CorrectAnswer: "12",
			IncorrectAnswers: []string{"14", "11", "16"}},
		{ID: "sample-7", Category: "Geography", Type: "multiple", Difficulty: "easy",
			Prompt: "Which is the longest river in South America?", CorrectAnswer: "Amazon",
			IncorrectAnswers: []string{"Paraná", "Orinoco", "Madeira"}},
		{ID: "sample-8", Category: "Science & Nature", Type: "multiple", Difficulty: "easy",
			Prompt: "Which planet is known as the Red Planet?", CorrectAnswer: "Mars",
			IncorrectAnswers: []string{"Venus", "Jupiter", "Mercury"}},
		{ID: "sample-9", Category: "Sports", Type: "multiple", Difficulty: "easy",
			Prompt: "How many players does a football (soccer) team field?", CorrectAnswer: "11",
			IncorrectAnswers: []string{"10", "12", "9"}},
		{ID: "sample-10", Category: "General Knowledge", Type: "multiple", Difficulty: "easy",
			Prompt: "How many days are in a leap year?", CorrectAnswer: "366",
			IncorrectAnswers: []string{"365", "364", "367"}},
		{ID: "sample-11", Category: "Science: Computers", Type: "multiple", Difficulty: "easy",
			Prompt: "Which company created the Go programming language?", CorrectAnswer: "Google",
			IncorrectAnswers: []string{"Microsoft", "Mozilla", "Apple"}},
		{ID: "sample-12", Category: "Animals", Type: "multiple", Difficulty: "easy",
			Prompt: "What is the largest mammal?", CorrectAnswer: "Blue whale",
			IncorrectAnswers: []string{"African elephant", "Giraffe", "Sperm whale"}},
	}
}
