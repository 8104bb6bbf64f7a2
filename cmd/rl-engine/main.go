// Command rl-engine wires configuration, persistence, the Q-learning
// engine, the learning service, the event consumer, and the lifecycle
// manager into one running process. Grounded on the teacher's main.go
// composition order (load config -> open database -> construct
// repository -> construct algorithm -> start background workers).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apex-system/rl-engine/internal/config"
	"github.com/apex-system/rl-engine/internal/database"
	"github.com/apex-system/rl-engine/internal/events"
	"github.com/apex-system/rl-engine/internal/lifecycle"
	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/rlservice"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[rl-engine] failed to load configuration: %v", err)
	}

	db, err := database.NewDatabase(cfg.PersistenceURL)
	if err != nil {
		log.Fatalf("[rl-engine] failed to open persistence store: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	eng := engine.New(engine.Config{
		LearningRate:         cfg.LearningRate,
		DiscountFactor:       cfg.DiscountFactor,
		ExplorationRate:      cfg.ExplorationRate,
		MaxActiveBuffer:      cfg.MaxActiveBuffer,
		MaxHistoryBuffer:     cfg.MaxHistoryBuffer,
		AutoProcessThreshold: cfg.AutoProcessThreshold,
		HistoryRetention:     cfg.HistoryRetention(),
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	var publisher rlservice.EventPublisher
	var redisClient *redis.Client
	if cfg.EventBusEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			log.Printf("[rl-engine] redis unavailable at %s, continuing without the event bus: %v", cfg.RedisAddr, pingErr)
			redisClient = nil
		} else {
			publisher = events.NewPublisher(redisClient)
		}
	}

	svc := rlservice.New(eng, repo, publisher)

	manager := lifecycle.NewManager(eng, svc, repo, cfg)
	manager.OnFatal(func(err error) {
		log.Printf("[rl-engine] invariant violation forced shutdown: %v", err)
		cancelRun()
	})
	manager.LoadState(ctx)
	manager.Start(ctx)

	if redisClient != nil {
		consumer := events.NewConsumer(redisClient, svc, cfg.EventConsumerGroup, "rl-engine-1")
		if groupErr := consumer.EnsureGroups(ctx); groupErr != nil {
			log.Printf("[rl-engine] failed to ensure consumer groups: %v", groupErr)
		} else {
			go func() {
				if runErr := consumer.Run(ctx); runErr != nil {
					log.Printf("[rl-engine] event consumer stopped: %v", runErr)
				}
			}()
		}
	}

	log.Println("[rl-engine] started")
	<-ctx.Done()
	log.Println("[rl-engine] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.Shutdown(shutdownCtx)
}
