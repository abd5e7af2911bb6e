package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/AllanGomesCorrea/QRmenu-sub001/config"
	"github.com/AllanGomesCorrea/QRmenu-sub001/controllers"
	"github.com/AllanGomesCorrea/QRmenu-sub001/cooldown"
	"github.com/AllanGomesCorrea/QRmenu-sub001/middlewares"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/realtime"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
)

// Deps -> kolaborator opsional; nilai kosong memakai default produksi
type Deps struct {
	Dispatcher services.CodeDispatcher
	Menu       services.MenuLookup
	// Sinks tambahan (mis. Telegram) yang menerima setiap event bersama hub
	Sinks []services.Broadcaster
	Now   func() time.Time
}

// Server -> semua komponen yang dirakit SetupRouter
type Server struct {
	Engine       *gin.Engine
	Hub          *realtime.Hub
	Guard        *cooldown.Guard
	Sessions     *services.SessionService
	Verification *services.VerificationService
	Orders       *services.OrderService
	Tables       *services.TableService
	Sweeper      *services.Sweeper

	RateLimiter   *middlewares.RateLimiter
	StrictLimiter *middlewares.StrictRateLimiter
}

func SetupRouter(db *gorm.DB, cfg *config.Config) *gin.Engine {
	return NewServer(db, cfg, Deps{}).Engine
}

func NewServer(db *gorm.DB, cfg *config.Config, deps Deps) *Server {
	opts := cfg.ServiceOptions()
	if deps.Now != nil {
		opts.Now = deps.Now
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	hub := realtime.NewHub(nil)
	broadcaster := services.FanOut(append([]services.Broadcaster{hub}, deps.Sinks...))
	guard := cooldown.New(cfg.Session.InteractionCooldown, now)

	sessions := services.NewSessionService(db, broadcaster, opts)
	verification := services.NewVerificationService(db, sessions, deps.Dispatcher, opts)
	orders := services.NewOrderService(db, sessions, deps.Menu, broadcaster, opts)
	tables := services.NewTableService(db, sessions, guard, broadcaster, opts)
	sweeper := services.NewSweeper(sessions, verification, guard, cfg.Session.SweepInterval)

	customerCtrl := controllers.NewCustomerController(sessions, verification)
	orderCtrl := controllers.NewOrderController(orders)
	tableCtrl := controllers.NewTableController(tables, sessions)
	realtimeCtrl := controllers.NewRealtimeController(hub, sessions, tables, cfg.HTTP.AllowedOrigins)

	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		r.SetTrustedProxies(nil)
	}

	r.Use(middlewares.SecurityHeaders(cfg.GinMode == gin.ReleaseMode))
	r.Use(middlewares.CORSMiddlewares(cfg.HTTP.AllowedOrigins))
	r.Use(middlewares.LoggerMiddleware())
	limiter := middlewares.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, 1)
	r.Use(limiter.RateLimit())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Publik: alur scan QR per restaurant
	strict := middlewares.NewStrictRateLimiter(6*time.Second, 10)
	// map per IP ikut disapu supaya tidak tumbuh tanpa batas
	sweeper.AddCleanup("rate_limiter", limiter.Cleanup)
	sweeper.AddCleanup("strict_rate_limiter", strict.Cleanup)
	public := r.Group("/api/r/:slug")
	{
		public.GET("/tables/:qr_code/status", customerCtrl.GetTableStatus)
		public.GET("/tables/:qr_code/session", customerCtrl.CheckSession)
		public.POST("/sessions", customerCtrl.CreateSession)
		public.POST("/sessions/request-code", strict.Handler(), customerCtrl.RequestCode)
		public.POST("/sessions/verify", strict.Handler(), customerCtrl.VerifyCode)
	}

	// Customer: token session
	customer := r.Group("/api/session")
	customer.Use(middlewares.SessionAuthMiddleware(sessions))
	{
		customer.GET("", customerCtrl.GetCurrentSession)
		customer.GET("/orders", orderCtrl.GetSessionOrders)
		customer.GET("/orders/:order_id", orderCtrl.GetSessionOrder)
		customer.POST("/orders", orderCtrl.CreateOrder)
		customer.POST("/call-waiter", tableCtrl.CallWaiter)
		customer.POST("/request-bill", tableCtrl.RequestBill)
	}

	// Staff: token JWT
	admin := r.Group("/api/admin")
	admin.Use(middlewares.StaffAuthMiddleware())
	{
		staff := middlewares.RoleCheck(models.RoleKitchen, models.RoleWaiter)
		floor := middlewares.RoleCheck(models.RoleWaiter)

		admin.GET("/orders", staff, orderCtrl.GetAllOrders)
		admin.GET("/orders/:order_id", staff, orderCtrl.GetOrderByID)
		admin.PATCH("/orders/:order_id/status", staff, orderCtrl.UpdateOrderStatus)
		admin.PATCH("/orders/:order_id/items/:item_id/status", staff, orderCtrl.UpdateItemStatus)
		admin.POST("/orders/:order_id/cancel", staff, orderCtrl.CancelOrder)
		admin.PATCH("/orders/:order_id/discount", middlewares.RoleCheck(), orderCtrl.SetDiscount)

		admin.GET("/tables", staff, tableCtrl.GetAllTables)
		admin.PATCH("/tables/:table_id/status", floor, tableCtrl.UpdateTableStatus)
		admin.POST("/tables/:table_id/close", floor, tableCtrl.CloseTable)
		admin.GET("/tables/:table_id/sessions", floor, tableCtrl.GetTableSessions)
		admin.POST("/sessions/:session_id/close", floor, tableCtrl.CloseSession)
	}

	r.GET("/ws", middlewares.WebSocketAuthMiddleware(sessions), realtimeCtrl.Connect)

	return &Server{
		Engine:       r,
		Hub:          hub,
		Guard:        guard,
		Sessions:     sessions,
		Verification: verification,
		Orders:       orders,
		Tables:       tables,
		Sweeper:      sweeper,

		RateLimiter:   limiter,
		StrictLimiter: strict,
	}
}
