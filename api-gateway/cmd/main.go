package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/auth"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/handlers"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/nats"
	redisClient "github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/redis"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/service"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/sqlite"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/config"
	"github.com/Gideonite22/clarity-trend-vault/shared/logging"
)

// Mining modes
const (
	MiningInstant  = "instant"
	MiningInterval = "interval"
)

// Config holds application configuration
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	Redis      redisClient.Options
	NatsURL    string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	SQLitePath string            `env:"SQLITE_PATH" envDefault:"data/trend-vault.db"`
	Owner      string            `env:"VAULT_OWNER,required"`
	Genesis    map[string]uint64 `env:"VAULT_GENESIS" envKeyValSeparator:"="`

	MiningMode     string        `env:"MINING_MODE" envDefault:"instant"`
	BlockInterval  time.Duration `env:"BLOCK_INTERVAL" envDefault:"5s"`
	MaxTxsPerBlock int           `env:"MAX_TXS_PER_BLOCK" envDefault:"100"`

	AuthSecret string `env:"AUTH_SECRET"`
	DevMode    bool   `env:"DEV_MODE" envDefault:"false"`

	Log logging.Options
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New("api-gateway", cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api gateway stopped")
	}
}

func run(cfg Config, log zerolog.Logger) error {
	log.Info().Msg("starting api gateway")

	if cfg.MiningMode != MiningInstant && cfg.MiningMode != MiningInterval {
		return fmt.Errorf("unknown MINING_MODE %q", cfg.MiningMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Block log
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open block log: %w", err)
	}
	defer store.Close()

	genesis := make(map[vault.Principal]uint64, len(cfg.Genesis))
	for p, amount := range cfg.Genesis {
		genesis[vault.Principal(p)] = amount
	}
	ledger, err := chain.New(chain.Options{
		Owner:   vault.Principal(cfg.Owner),
		Genesis: genesis,
		Store:   store,
	})
	if err != nil {
		return err
	}
	replayed, err := ledger.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay block log: %w", err)
	}
	log.Info().Int("blocks", replayed).Uint64("height", ledger.Height()).Msg("block log replayed")

	// Redis
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connecting to redis")
	redis, err := redisClient.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redis.Close()

	// NATS
	log.Info().Str("url", cfg.NatsURL).Msg("connecting to nats")
	natsConn, err := natsio.Connect(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConn.Close()

	archiver, err := nats.NewArchiver(ctx, natsConn, log)
	if err != nil {
		return err
	}

	var (
		submitter service.Submitter = ledger
		wg        sync.WaitGroup
	)
	if cfg.MiningMode == MiningInterval {
		miner := chain.NewMiner(ledger, cfg.BlockInterval, cfg.MaxTxsPerBlock, log)
		submitter = miner
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := miner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("miner stopped")
				stop()
			}
		}()
	}
	log.Info().Str("mode", cfg.MiningMode).Dur("interval", cfg.BlockInterval).Msg("mining configured")

	vaultService, err := service.NewVaultService(service.Options{
		Ledger:      ledger,
		Submitter:   submitter,
		Mirror:      redis,
		Broadcaster: redis,
		Archiver:    archiver,
		DevMode:     cfg.DevMode,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer vaultService.Close()

	resolver := auth.NewResolver(cfg.AuthSecret, ledger.Escrow())
	if resolver.HeaderMode() {
		log.Warn().Msg("AUTH_SECRET not set, trusting the " + auth.PrincipalHeader + " header")
	}

	handler := handlers.NewHandler(vaultService, resolver, log)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("api gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	wg.Wait()

	log.Info().Uint64("height", ledger.Height()).Msg("server stopped gracefully")
	return nil
}
