package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	httpadapter "github.com/Koss-Lab/crypto-portfolio-tracker/internal/adapter/http"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/adapter/marketdata/coingecko"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/adapter/repository/postgres"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/alert"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/ledger"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/pricecache"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/seeder"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/valuation"
)

const defaultHTTPAddr = ":8080"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 1. Setup Database
	dbConnStr := os.Getenv("DB_CONN_STR")
	if dbConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		host := envOr("DB_HOST", "localhost")
		port := envOr("DB_PORT", "5432")
		user := envOr("DB_USER", "postgres")
		password := envOr("DB_PASSWORD", "postgres")
		dbname := envOr("DB_NAME", "portfolio")

		dbConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}

	// Add 2-second delay to ensure Postgres is up (Simple retry)
	time.Sleep(2 * time.Second)

	db, err := postgres.NewDB(dbConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 2. Initialize Repositories (Postgres)
	ledgerRepo := postgres.NewLedgerRepository(db)
	snapshotRepo := postgres.NewPriceSnapshotRepository(db)
	seriesCacheRepo := postgres.NewSeriesCacheRepository(db)
	alertRepo := postgres.NewAlertRuleRepository(db)

	// 3. Initialize Market Data Source (CoinGecko)
	source := coingecko.NewClient(coingecko.Config{
		BaseURL: os.Getenv("COINGECKO_BASE_URL"),
		APIKey:  os.Getenv("COINGECKO_API_KEY"),
	}, logger)

	// 4. Initialize Services (Use Cases)
	priceService := pricecache.NewPriceCacheService(source, seriesCacheRepo, snapshotRepo, pricecache.DefaultConfig(), logger)
	ledgerService := ledger.NewLedgerService(ledgerRepo, priceService)
	valuationService := valuation.NewValuationService(ledgerRepo, priceService, logger)
	alertService := alert.NewAlertService(alertRepo, priceService, logger)

	// Optional demo data for local runs
	if os.Getenv("SEED_DEMO") == "true" {
		demoSeeder := seeder.NewDemoSeeder(ledgerRepo)
		if err := demoSeeder.Seed(context.Background()); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
		logger.Info("demo data seeded")
	}

	// 5. Start HTTP Server
	apiToken := os.Getenv("API_TOKEN")
	if apiToken == "" {
		logger.Warn("API_TOKEN not set, serving without authentication")
	}

	addr := envOr("HTTP_ADDR", defaultHTTPAddr)
	server := httpadapter.NewServer(logger, ledgerService, valuationService, priceService, alertService, apiToken)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	waitForShutdown(logger, httpServer)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(logger *zap.Logger, httpServer *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}

// envOr reads an environment variable with a fallback default
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
