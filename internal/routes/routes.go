package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fiscal-reconciliation-backend/internal/config"
	handler "fiscal-reconciliation-backend/internal/handlers"
	"fiscal-reconciliation-backend/internal/repository"
	"fiscal-reconciliation-backend/internal/services/bankfeed"
	"fiscal-reconciliation-backend/internal/services/distribution"
	"fiscal-reconciliation-backend/internal/services/fiscal"
	"fiscal-reconciliation-backend/internal/services/ingestion"
	"fiscal-reconciliation-backend/internal/services/issuance"
	"fiscal-reconciliation-backend/internal/services/matching"
	"fiscal-reconciliation-backend/internal/services/orders"
	"fiscal-reconciliation-backend/internal/services/payments"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	log := slog.Default()

	txRepo := repository.NewBankTransactionRepository(db)
	matchRepo := repository.NewPaymentMatchRepository(db)

	rules := payments.Rules{
		NovaPoshtaAccount: cfg.Rules.NovaPoshtaAccount,
		ExcludedCodes:     cfg.ExcludedCodeSet(),
	}

	feed := bankfeed.NewHTTPClient(cfg.BankFeed.BaseURL, cfg.BankFeed.Token)
	orderStore := orders.NewHTTPStore(cfg.Orders.BaseURL, cfg.Orders.Token)

	fiscalClient := fiscal.NewClient(
		cfg.Fiscal.BaseURL,
		cfg.Fiscal.Login,
		cfg.Fiscal.Password,
		cfg.Fiscal.LicenseKey,
		cfg.Fiscal.SessionTTL,
		log,
	)

	distributor := distribution.New(
		cfg.Distribution.SingleItemThreshold,
		cfg.Distribution.MinItemPrice,
		cfg.Distribution.MaxItemPrice,
		nil,
	)

	ingester := ingestion.NewService(txRepo, cfg.MaxAmount(), log)
	engine := matching.NewEngine(txRepo, matchRepo, cfg.MatchEpsilon(), cfg.Matching.WindowDays, log)
	issuer := issuance.NewService(txRepo, matchRepo, fiscalClient, distributor, rules, log)

	txHandler := handler.NewTransactionHandler(ingester, feed, cfg.BankFeed.Source, txRepo, matchRepo, rules)
	matchingHandler := handler.NewMatchingHandler(engine, orderStore, cfg.Orders.ShopID, log)
	checkHandler := handler.NewCheckHandler(issuer)

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	tx := api.Group("/transactions")
	tx.POST("/sync", txHandler.Sync)
	tx.POST("/ingest", txHandler.Ingest)
	tx.GET("", txHandler.List)

	api.POST("/matching/run", matchingHandler.Run)

	checks := api.Group("/checks")
	checks.POST("/issue", checkHandler.IssueCheck)
	checks.POST("/skip", checkHandler.SkipCheck)
}
