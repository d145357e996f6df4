package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	cfg "github.com/sand/wallet-transactions/backend/config"
	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/blockchains/evm"
	"github.com/sand/wallet-transactions/backend/internal/blockchains/svm"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/internal/handlers"
	"github.com/sand/wallet-transactions/backend/internal/shared"
	"github.com/sand/wallet-transactions/backend/internal/usecases"
	"github.com/sand/wallet-transactions/backend/internal/usecases/repository"
	"github.com/sand/wallet-transactions/backend/internal/workers"
	"github.com/sand/wallet-transactions/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if config.Blockchain.Debug {
		_ = os.Setenv(shared.EnvBlockchainDebugMode, "true")
	}

	opts := &slog.HandlerOptions{
		Level: config.Log.Level,
	}
	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"blockchain_debug", shared.IsBlockchainDebugMode(),
		"bsc_rpc_url", config.BSCRPCURL,
		"solana_rpc_url", config.SolanaRPCURL,
		"server_port", config.HTTP.Port)

	if err = run(logger, config); err != nil {
		logger.Error("Application stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}

func run(logger *slog.Logger, config *cfg.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}
	defer pg.Close()

	migrationsPath := findMigrations()
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		return err
	}

	storage := repository.NewStorage(logger, pg)
	scanCursors := repository.NewScanCursorsRepository(logger, pg)

	// Chain clients and adapters
	bscClient, err := ethclient.DialContext(ctx, config.BSCRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to BSC node: %w", err)
	}
	defer bscClient.Close()

	bscNetwork := evm.NetworkName()
	bscAdapter, err := evm.NewAdapter(logger, bscClient, bscNetwork, evm.DefaultTokens(bscNetwork))
	if err != nil {
		return err
	}

	solanaClient, err := svm.Dial(ctx, logger, svm.HTTPEndpoints(config.SolanaRPCURL))
	if err != nil {
		return err
	}
	defer solanaClient.Close()

	solanaNetwork := svm.NetworkName()
	solanaAdapter := svm.NewAdapter(logger, solanaClient, solanaNetwork, svm.DefaultTokens())

	router := usecases.NewAccountRouter(map[entities.BlockchainKey]ports.BlockchainAdapter{
		entities.BlockchainBSC:    bscAdapter,
		entities.BlockchainSolana: solanaAdapter,
	})

	// Usecases
	updateHub := handlers.NewUpdateHub(logger)
	txCallbacks := usecases.NewTxCallbacks(logger)

	transactionService, err := usecases.NewTransactions(
		logger,
		router,
		storage,
		updateHub,
		txCallbacks,
		usecases.NewLocalTransactionBuilder(),
		config.Wallet.CompletionTimeout,
	)
	if err != nil {
		return err
	}

	scryptN, scryptP := blockchains.StandardScryptN, blockchains.StandardScryptP
	if config.Wallet.LightScrypt {
		scryptN, scryptP = blockchains.LightScryptN, blockchains.LightScryptP
	}
	accountService := usecases.NewAccounts(logger, router, storage, storage, scryptN, scryptP)

	// Workers
	bscScanner := workers.NewBinanceSmartChain(logger, bscClient, storage, scanCursors, bscAdapter, workers.BSCScannerOptions{
		Network:               bscNetwork,
		RequiredConfirmations: config.Blockchain.RequiredConfirmations,
		ScanInterval:          config.Blockchain.ScanInterval,
		BlocksPerScan:         config.Blockchain.BlocksPerScan,
	})
	poller := workers.NewTransactionPoller(logger, txCallbacks, transactionService, storage,
		router.Blockchains(), config.Wallet.CompletionPollInterval)
	solanaWatcher := workers.NewSolanaBlockchain(logger, svm.WebSocketEndpoints(), solanaNetwork, storage, poller)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return bscScanner.SubscribeToTransactions(groupCtx) })
	group.Go(func() error { return poller.Start(groupCtx) })
	group.Go(func() error { return solanaWatcher.SubscribeToTransactions(groupCtx) })
	logger.Info("All workers initialized and started")

	// HTTP
	httpHandler := handlers.NewHTTPHandler(logger, transactionService, accountService)
	wsHandler := handlers.NewWebSocketHandler(logger, updateHub, handlers.NewWebSocketManager(logger))

	muxRouter := mux.NewRouter()
	wsHandler.RegisterRoutes(muxRouter)
	httpHandler.RegisterRoutes(muxRouter)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      c.Handler(muxRouter),
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var errs *multierror.Error

	select {
	case <-groupCtx.Done():
	case err, ok := <-serverErr:
		if ok {
			errs = multierror.Append(errs, fmt.Errorf("server error: %w", err))
		}
	}

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := group.Wait(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("worker failed: %w", err))
	}
	transactionService.Close()

	return errs.ErrorOrNil()
}

// findMigrations looks for the migrations directory next to the working directory.
func findMigrations() string {
	workDir, err := os.Getwd()
	if err != nil {
		return "./migrations"
	}

	for _, candidate := range []string{
		filepath.Join(workDir, "migrations"),
		filepath.Join(workDir, "..", "migrations"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./migrations"
}
