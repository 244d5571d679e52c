package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	redisClient "github.com/Gideonite22/clarity-trend-vault/broadcast-service/internal/redis"
	wsHandler "github.com/Gideonite22/clarity-trend-vault/broadcast-service/internal/websocket"
	"github.com/Gideonite22/clarity-trend-vault/shared/config"
	"github.com/Gideonite22/clarity-trend-vault/shared/logging"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Config holds application configuration
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8081"`
	Redis      redisClient.Options
	Log        logging.Options
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New("broadcast-service", cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("broadcast service stopped")
	}
}

func run(cfg Config, log zerolog.Logger) error {
	log.Info().Msg("starting broadcast service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", cfg.Redis.Addr).Msg("connecting to redis")
	subscriber, err := redisClient.NewSubscriber(cfg.Redis, log)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	// Subscribe to all vault events using pattern matching
	pattern := models.EventChannelPrefix + "*"
	if err := subscriber.SubscribeToPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to subscribe to Redis channels: %w", err)
	}
	log.Info().Str("pattern", pattern).Msg("subscribed to vault events")

	wsManager := wsHandler.NewManager(log)
	go wsManager.Run(ctx)

	messageChan := make(chan *redisClient.Message, 256)
	go func() {
		if err := subscriber.Listen(ctx, messageChan); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("redis listener stopped")
			stop()
		}
	}()

	// Redis Pub/Sub -> WebSocket
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-messageChan:
				wsManager.Broadcast(msg.Topic, []byte(msg.Payload))
			}
		}
	}()

	handler := wsHandler.NewHandler(wsManager)
	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     handler.SetupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("broadcast service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}
