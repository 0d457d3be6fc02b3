package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	httpadp "mazaochain/internal/adapter/http"
	"mazaochain/internal/adapter/ledger"
	"mazaochain/internal/adapter/lock"
	idemp "mazaochain/internal/adapter/middleware"
	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/adapter/repository/postgres"
	"mazaochain/internal/config"
	"mazaochain/internal/infrastructure/cache"
	"mazaochain/internal/infrastructure/db"
	"mazaochain/internal/infrastructure/hedera"
	"mazaochain/internal/infrastructure/logger"
	"mazaochain/internal/infrastructure/metrics"
	"mazaochain/internal/infrastructure/telemetry"
	"mazaochain/internal/usecase/eligibility"
	loanuc "mazaochain/internal/usecase/loan"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/retry"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, zl)
	if err != nil {
		zl.Fatal("telemetry", zap.Error(err))
	}

	policies, err := retry.LoadPolicies(cfg.RetryPolicyFile)
	if err != nil {
		zl.Fatal("retry policies", zap.Error(err))
	}

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN())
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	if err := postgres.Migrate(gdb); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		zl.Fatal("database handle", zap.Error(err))
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		zl.Fatal("redis", zap.Error(err))
	}

	hc, err := hedera.NewClient(hedera.Config{
		Network:     cfg.HederaNetwork,
		OperatorID:  cfg.HederaOperatorID,
		OperatorKey: cfg.HederaOperatorKey,
		SignerKeys:  cfg.SignerKeys(),
	})
	if err != nil {
		zl.Fatal("hedera client", zap.Error(err))
	}
	defer func() { _ = hc.Close() }()

	gateway := ledger.NewGateway(hc, ledger.Config{
		USDCTokenID:     cfg.USDCTokenID,
		USDCDecimals:    int32(cfg.USDCDecimals),
		MazaoDecimals:   int32(cfg.MazaoDecimals),
		TreasuryAccount: cfg.TreasuryAccountID,
		EscrowAccount:   cfg.EscrowAccountID,
	}, zl)

	loans := postgres.NewLoanRepository(gdb)
	portfolios := postgres.NewCollateralRepository(gdb)
	calc := eligibility.NewCalculator(portfolios, loans)

	orch := loanuc.NewOrchestrator(loanuc.Deps{
		Loans:           loans,
		Profiles:        postgres.NewProfileRepository(gdb),
		Collateral:      portfolios,
		Records:         txuc.NewService(postgres.NewTransactionRepository(gdb), zl),
		Calculator:      calc,
		Gateway:         gateway,
		Notifier:        notification.NewDispatcher(rdb, zl),
		Locker:          lock.NewLoanLocker(rdb, time.Duration(cfg.LoanLockTTLSecs)*time.Second),
		UoW:             postgres.NewGormUoW(gdb),
		Retry:           policies,
		Log:             zl,
		TreasuryAccount: cfg.TreasuryAccountID,
		EscrowAccount:   cfg.EscrowAccountID,

		CollateralDecimals: int32(cfg.MazaoDecimals),
	})

	h := httpadp.NewHandler(map[string]httpadp.Check{
		"database": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Logger(), middleware.Recover())

	httpadp.Register(e, h, httpadp.NewLoanHandler(orch, calc),
		echo.WrapHandler(metrics.Handler()),
		idemp.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, zl),
	)

	go func() {
		addr := ":" + cfg.AppPort
		zl.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(stopCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(stopCtx); err != nil {
		zl.Error("tracing shutdown", zap.Error(err))
	}
	_ = rdb.Close()
	_ = sqlDB.Close()
}
