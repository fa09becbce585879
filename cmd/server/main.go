// Package main runs the launch lifecycle service: an authenticated HTTP API
// in front of the orchestrator, wired to the mixing pool, the trade venue,
// and the Solana network.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"stealth-launch/internal/auth"
	"stealth-launch/internal/executor"
	"stealth-launch/internal/launch"
	"stealth-launch/internal/mixer"
	"stealth-launch/internal/observability"
	"stealth-launch/internal/solana"
	"stealth-launch/internal/storage"
	chstore "stealth-launch/internal/storage/clickhouse"
	"stealth-launch/internal/storage/memory"
	"stealth-launch/internal/storage/migrations"
	pgstore "stealth-launch/internal/storage/postgres"
	redisstore "stealth-launch/internal/storage/redis"
	"stealth-launch/internal/venue"
)

func main() {
	// Load .env if present; flags below default from the environment.
	_ = godotenv.Load()

	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, enables WS finality)")
	mixerURL := flag.String("mixer-url", os.Getenv("MIXER_URL"), "Mixing collaborator base URL")
	portalURL := flag.String("portal-url", os.Getenv("PORTAL_URL"), "Trade venue portal base URL")
	ipfsURL := flag.String("ipfs-url", os.Getenv("PORTAL_IPFS_URL"), "Trade venue IPFS upload URL")
	portalAPIKey := flag.String("portal-api-key", os.Getenv("PORTAL_API_KEY"), "Trade venue API key (optional)")

	store := flag.String("store", envOr("STORE", "memory"), "Launch/wallet store backend: memory, redis, or postgres")
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis connection URL (store=redis)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (store=postgres)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the transition log (optional)")

	passphrase := flag.String("vault-passphrase", os.Getenv("VAULT_PASSPHRASE"), "Passphrase for wallet secret encryption")
	sessionSecret := flag.String("session-secret", os.Getenv("SESSION_SECRET"), "HS256 secret for session token verification")
	ratePerMinute := flag.Int("rate-limit", envOrInt("RATE_LIMIT", 60), "Per-principal requests per minute per route")
	rateBurst := flag.Int("rate-burst", envOrInt("RATE_BURST", 10), "Per-principal burst size")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *mixerURL == "" {
		logger.Fatal("--mixer-url is required")
	}
	if *portalURL == "" || *ipfsURL == "" {
		logger.Fatal("--portal-url and --ipfs-url are required")
	}
	if *passphrase == "" {
		logger.Fatal("--vault-passphrase is required")
	}
	if *sessionSecret == "" {
		logger.Fatal("--session-secret is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *store, *redisURL, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	rpc := solana.NewHTTPClient(*rpcEndpoint, solana.WithMetrics(metrics))

	execOpts := []executor.Option{executor.WithMetrics(metrics)}
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			// Polling confirmation still works; WS is an optimization.
			logger.Printf("WebSocket connect failed, falling back to polling finality: %v", err)
		} else {
			defer ws.Close()
			execOpts = append(execOpts, executor.WithFinalityWaiter(ws))
		}
	}
	exec := executor.New(rpc, execOpts...)

	mixerClient := mixer.NewClient(*mixerURL, mixer.WithMetrics(metrics))

	venueOpts := []venue.ClientOption{venue.WithMetrics(metrics)}
	if *portalAPIKey != "" {
		venueOpts = append(venueOpts, venue.WithAPIKey(*portalAPIKey))
	}
	venueClient := venue.NewClient(*portalURL, *ipfsURL, venueOpts...)

	service, err := launch.NewService(launch.Options{
		Launches:    stores.launches,
		Wallets:     stores.wallets,
		Transitions: stores.transitions,
		Mixer:       mixerClient,
		Venue:       venueClient,
		Executor:    exec,
		Chain:       rpc,
		Passphrase:  *passphrase,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create launch service: %v", err)
	}

	verifier, err := auth.NewVerifier(*sessionSecret)
	if err != nil {
		logger.Fatalf("Failed to create session verifier: %v", err)
	}

	api := &API{
		service:  service,
		verifier: verifier,
		limits:   newLimiterRegistry(*ratePerMinute, *rateBurst),
		metrics:  metrics,
		logger:   logger,
	}

	mux := http.NewServeMux()
	api.Routes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "running",
			"store":  *store,
		})
	})

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM; a second signal forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing exit", sig)
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	logger.Printf("Listening on %s (store: %s)", *listenAddr, *store)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// serverStores bundles the storage implementations the service needs.
type serverStores struct {
	launches    storage.LaunchStore
	wallets     storage.WalletStore
	transitions storage.TransitionLogStore
}

// createStores builds the configured backend. The transition log rides on
// ClickHouse when a DSN is given, otherwise it stays in memory.
func createStores(ctx context.Context, backend, redisURL, postgresDSN, clickhouseDSN string, logger *log.Logger) (*serverStores, func(), error) {
	stores := &serverStores{}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	switch backend {
	case "memory":
		stores.launches = memory.NewLaunchStore()
		stores.wallets = memory.NewWalletStore()

	case "redis":
		if redisURL == "" {
			return nil, nil, fmt.Errorf("--redis-url is required for store=redis")
		}
		opts, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		cleanups = append(cleanups, func() { client.Close() })
		stores.launches = redisstore.NewLaunchStore(client)
		stores.wallets = redisstore.NewWalletStore(client)

	case "postgres":
		if postgresDSN == "" {
			return nil, nil, fmt.Errorf("--postgres-dsn is required for store=postgres")
		}
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.launches = pgstore.NewLaunchStore(pool)
		stores.wallets = pgstore.NewWalletStore(pool)

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}

	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.transitions = chstore.NewTransitionLogStore(conn)
	} else {
		stores.transitions = memory.NewTransitionLogStore()
		logger.Println("No ClickHouse DSN, keeping the transition log in memory")
	}

	return stores, cleanup, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
