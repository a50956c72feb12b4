package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"match-escrow-system/config"
	"match-escrow-system/handlers"
	"match-escrow-system/middleware"
	"match-escrow-system/models"
	"match-escrow-system/services"
	"match-escrow-system/utils"
	"match-escrow-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ invalid configuration: ", err)
	}
	execCtx, _ := cfg.Context()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&models.MatchPool{},
		&models.Delegation{},
		&models.PrizePayout{},
		&models.DepositReceipt{},
		&models.LedgerEvent{},
		&models.SettlementCommit{},
		&models.TokenAccount{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := utils.NewHTTPClient(cfg.HTTPTimeout)

	var ledger services.TokenLedger
	if cfg.TokenLedgerURL != "" {
		ledger = services.NewTokenLedgerClient(cfg.TokenLedgerURL, cfg.ServiceToken, httpClient)
	} else {
		log.Println("⚠️  TOKEN_LEDGER_URL not set, using the in-memory token ledger")
		ledger = services.NewMemoryTokenLedger()
	}

	var transport services.SettlementTransport
	if cfg.SettlementURL != "" {
		transport = services.NewSettlementClient(cfg.SettlementURL, cfg.ServiceToken, httpClient)
	} else {
		log.Println("⚠️  SETTLEMENT_URL not set, settlement snapshots stay in memory")
		transport = services.NewMemorySettlementTransport()
	}

	events := services.NewEventService(db)

	pools := services.NewMatchPoolService(db, ledger, events, execCtx, cfg.TokenMint)
	pools.Decimals = cfg.TokenDecimals

	settlement := services.NewSettlementService(db, ledger, transport, events, execCtx)
	settlement.CommitFrequency = cfg.CommitFrequency
	if cfg.R2().Enabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.R2())
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		settlement.Archive = archive
	}

	var authClient *services.AuthServiceClient
	var exempt []string
	if cfg.AuthServiceURL != "" {
		authClient = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken, httpClient)
		exempt = append(exempt, "/events/stream")
	}

	app := fiber.New(fiber.Config{
		AppName:   "match-escrow-system",
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐 Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, exempt...))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, pools, settlement, events, authClient)

	g, gctx := errgroup.WithContext(ctx)

	sched, err := settlement.StartCommitSweep(gctx, cfg.CommitSweepInterval)
	if err != nil {
		log.Fatal("failed to start commit sweep:", err)
	}

	if cfg.SyncServiceURL != "" {
		syncClient := workers.NewTokenAccountSyncClient(db, cfg.SyncServiceURL, cfg.ServiceToken, httpClient)
		g.Go(func() error {
			workers.PollTokenAccounts(gctx, syncClient, cfg.AccountPollInterval)
			return nil
		})
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, token account mirror will not be refreshed")
	}

	g.Go(func() error {
		return app.Listen(cfg.ListenAddr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		if err := sched.Shutdown(); err != nil {
			log.Printf("[Scheduler] shutdown error: %v", err)
		}
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	log.Printf("✅ Server running on http://localhost%s (%s context)", cfg.ListenAddr(), execCtx)
	log.Printf("✅ Commit sweep every %s, default commit frequency %s", cfg.CommitSweepInterval, cfg.CommitFrequency)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}
}
