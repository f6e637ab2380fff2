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

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/config"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
	"github.com/jhollyfer/cyber-sub000/internal/infra/memory"
	pgrepo "github.com/jhollyfer/cyber-sub000/internal/infra/postgres"
	rediscache "github.com/jhollyfer/cyber-sub000/internal/infra/redis"
	transport "github.com/jhollyfer/cyber-sub000/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the learning platform server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var content app.ContentRepository
	var sessions app.SessionRepository
	if pool != nil {
		content = pgrepo.NewContentRepository(pool)
		sessions = pgrepo.NewSessionRepository(pool)
	} else {
		modules, questions := sampleContent()
		content = memory.NewContentRepository(modules, questions)
		sessions = memory.NewSessionRepository()
		log.Printf("postgres not configured, using in-memory stores with sample content")
	}
	if redisClient != nil {
		contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
		content = rediscache.NewContentRepository(redisClient, content, contentTTL)
	}

	service := app.NewGameService(content, sessions)
	handler := transport.NewHandler(service)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/play", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", finalPort)
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

// sampleContent provides a minimal module track for running without Postgres.
func sampleContent() ([]domain.Module, []domain.Question) {
	modules := []domain.Module{
		{ID: "mod-1", Title: "Password Hygiene", Order: 1, Active: true, TimePerQuestion: 30},
		{ID: "mod-2", Title: "Phishing Awareness", Order: 2, Active: true, TimePerQuestion: 30},
	}
	questions := []domain.Question{
		{
			ID:          "q1",
			ModuleID:    "mod-1",
			Prompt:      "Which password is strongest?",
			Options:     []string{"123456", "password", "p4ssw0rd", "correct-horse-battery-staple"},
			Correct:     3,
			Explanation: "Long passphrases beat short substitutions.",
			Active:      true,
		},
		{
			ID:          "q2",
			ModuleID:    "mod-1",
			Prompt:      "How often should you reuse a password?",
			Options:     []string{"Never", "Only on trusted sites", "Once per year", "Whenever convenient"},
			Correct:     0,
			Explanation: "Reuse lets one breach unlock every account.",
			Active:      true,
		},
		{
			ID:          "q3",
			ModuleID:    "mod-2",
			Prompt:      "An urgent email asks for your credentials. What first?",
			Options:     []string{"Reply with them", "Click the link", "Verify the sender", "Forward to friends"},
			Correct:     2,
			Explanation: "Urgency is the classic phishing pressure tactic.",
			Active:      true,
		},
	}
	return modules, questions
}
