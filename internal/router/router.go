package router

import (
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/config"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/handler"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/middleware"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Store ← DB
// rdb and sinkCB are only reported by /health and may be nil.
func New(cfg *config.Config, store repository.Store, rdb *redis.Client, sinkCB *infra.CircuitBreaker, metrics *infra.Metrics) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute))

	// ── Services ─────────────────────────────────────────────────────────────
	emitter := audit.NewEmitter()
	catalogSvc := service.NewCatalogService(store)
	ledgerSvc := service.NewLedgerService(store, emitter, cfg.LowStockThreshold)
	fulfillmentSvc := service.NewFulfillmentService(store, emitter, metrics, service.FulfillmentOptions{
		MaxAttempts:       cfg.FulfillMaxAttempts,
		RejectSplitOrders: cfg.RejectSplitOrders,
	})
	transferSvc := service.NewTransferService(store, emitter, metrics)

	// ── Handlers ─────────────────────────────────────────────────────────────
	catalogH := handler.NewCatalogHandler(catalogSvc)
	allocationsH := handler.NewAllocationsHandler(ledgerSvc)
	fulfillmentsH := handler.NewFulfillmentsHandler(fulfillmentSvc)
	transfersH := handler.NewTransfersHandler(transferSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(store, rdb, sinkCB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	readers := []string{middleware.RoleOperations, middleware.RoleOrderService, middleware.RoleViewer}

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		ful := v1.Group("/fulfillments", middleware.RequireRole(middleware.RoleOrderService, middleware.RoleOperations))
		{
			ful.POST("", fulfillmentsH.Fulfill)
			ful.POST("/validate", fulfillmentsH.Validate)
		}

		v1.GET("/transfers", middleware.RequireRole(readers...), transfersH.List)
		v1.GET("/transfers/:id", middleware.RequireRole(readers...), transfersH.Get)
		v1.POST("/transfers", middleware.RequireRole(middleware.RoleOperations), transfersH.Create)

		alloc := v1.Group("/allocations")
		{
			alloc.GET("/alerts", middleware.RequireRole(readers...), allocationsH.Alerts)
			alloc.GET("/:product_id/:warehouse_id", middleware.RequireRole(readers...), allocationsH.Get)
			alloc.GET("/:product_id/:warehouse_id/history", middleware.RequireRole(readers...), allocationsH.History)
			alloc.POST("/receive", middleware.RequireRole(middleware.RoleOperations), allocationsH.Receive)
			alloc.POST("/adjust", middleware.RequireRole(middleware.RoleOperations), allocationsH.Adjust)
			alloc.PUT("/safety-stock", middleware.RequireRole(middleware.RoleOperations), allocationsH.SetSafetyStock)
		}

		v1.GET("/products", middleware.RequireRole(readers...), catalogH.ListProducts)
		v1.GET("/products/:id", middleware.RequireRole(readers...), catalogH.GetProduct)
		v1.GET("/products/:id/stock", middleware.RequireRole(readers...), allocationsH.StockReport)
		v1.POST("/products", middleware.RequireRole(middleware.RoleOperations), catalogH.CreateProduct)

		// Warehouses are shared infrastructure; only admins register them.
		v1.GET("/warehouses", middleware.RequireRole(readers...), catalogH.ListWarehouses)
		v1.GET("/warehouses/:id", middleware.RequireRole(readers...), catalogH.GetWarehouse)
		v1.GET("/warehouses/:id/stock", middleware.RequireRole(readers...), allocationsH.WarehouseStock)
		v1.POST("/warehouses", middleware.RequireRole(middleware.RoleAdmin), catalogH.CreateWarehouse)
	}

	// Swagger UI outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
