package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Jorgeluia82/inversiones/internal/metrics"
	"github.com/Jorgeluia82/inversiones/internal/portfolio"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch {
	case os.Getenv("DATABASE_URL") != "":
		pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.InitSchema(ctx); err != nil {
			slog.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case os.Getenv("MEMORY_STORE") != "":
		slog.Warn("using in-memory store (data will not persist)")
		st = store.NewMemoryStore()

	default:
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "inversiones.db"
		}
		db, err := store.OpenSQLite(path)
		if err != nil {
			slog.Error("sqlite open failed", "path", path, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { db.Close() })
		if err := db.InitSchema(ctx); err != nil {
			slog.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		st = db
		slog.Info("using SQLite store", "path", path)
	}

	// Wrap with Redis read-through cache if configured.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, 30*time.Second)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Optional demo data for a fresh database.
	if os.Getenv("SEED_DEMO") != "" {
		if err := store.SeedDemo(ctx, st); err != nil {
			slog.Error("demo seed failed", "err", err)
			os.Exit(1)
		}
	}

	// --- WebSocket hub ---
	hub := portfolio.NewHub()
	go hub.Run()

	// --- Portfolio service ---
	svc := portfolio.NewService(st, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"inversiones"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time capital and price updates.
		r.Get("/ws", hub.HandleWS)

		// Client management.
		r.Get("/clients", svc.HandleListClients)
		r.Post("/clients", svc.HandleCreateClient)
		r.Get("/clients/{clientID}", svc.HandleGetClient)

		// Cash operations.
		r.Post("/clients/{clientID}/deposit", svc.HandleDeposit)
		r.Post("/clients/{clientID}/withdraw", svc.HandleWithdraw)

		// Investment operations.
		r.Post("/clients/{clientID}/buy", svc.HandleBuy)
		r.Post("/investments/{investmentID}/sell", svc.HandleSell)
		r.Post("/investments/{investmentID}/price", svc.HandleUpdatePrice)
		r.Get("/investments/{investmentID}/prices", svc.HandlePriceHistory)

		// Reporting.
		r.Get("/clients/{clientID}/portfolio", svc.HandlePortfolio)
		r.Get("/clients/{clientID}/history", svc.HandleHistory)
		r.Get("/clients/{clientID}/history/export", svc.HandleHistoryExport)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("inversiones listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down inversiones...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("inversiones stopped")
}
