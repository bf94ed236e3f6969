package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	"github.com/odyssey-erp/odyssey-wms/internal/dashboard"
	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/goodsin"
	"github.com/odyssey-erp/odyssey-wms/internal/goodsout"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/stockcount"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.PGAutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	money := shared.NewMoneyFormatter(cfg.DisplayLocale)

	dashboardCache := dashboard.NewCache(redisClient, cfg.CacheTTL)
	if err := dashboardCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("dashboard cache subscribe", slog.Any("error", err))
	}

	productService := products.NewService(products.NewRepository(dbpool))
	warehouseService := warehouses.NewService(warehouses.NewRepository(dbpool))

	engine := inventory.NewEngine(metrics)
	inventoryService := inventory.NewService(
		inventory.NewRepository(dbpool),
		engine,
		inventory.ServiceConfig{MinStockDefault: cfg.MinStockDefault},
		dashboardCache,
		logger,
	)

	debtService := debt.NewService(debt.NewRepository(dbpool), auditLogger, logger)

	goodsInService := goodsin.NewService(goodsin.Deps{
		Repo:        goodsin.NewRepository(dbpool),
		Catalog:     productService,
		Warehouses:  warehouseService,
		Engine:      engine,
		Debts:       debt.NewGenerator(cfg.DebtTermDays),
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Listener:    dashboardCache,
		Metrics:     metrics,
		Logger:      logger,
	})
	goodsOutService := goodsout.NewService(goodsout.Deps{
		Repo:        goodsout.NewRepository(dbpool),
		Catalog:     productService,
		Warehouses:  warehouseService,
		Stock:       inventoryService,
		Engine:      engine,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Listener:    dashboardCache,
		Metrics:     metrics,
		Logger:      logger,
	})
	stockCountService := stockcount.NewService(stockcount.NewRepository(dbpool), warehouseService, auditLogger, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, metrics, cfg.MinStockDefault, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		GoodsInHandler:    goodsin.NewHandler(logger, goodsInService, money),
		GoodsOutHandler:   goodsout.NewHandler(logger, goodsOutService),
		StockCountHandler: stockcount.NewHandler(logger, stockCountService),
		WarehouseHandler:  warehouses.NewHandler(logger, warehouseService),
		DebtHandler:       debt.NewHandler(logger, debtService),
		DashboardHandler:  dashboard.NewHandler(logger, dashboardService),
		AuditHandler:      audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:        jobs.NewHandler(inspector, jobClient, logger),
		Metrics:           metrics,
		Database:          dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
