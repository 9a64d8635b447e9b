package server

import (
	"context"
	"net/http"
	"time"

	"skibook/internal/auth"
	"skibook/internal/bonus"
	"skibook/internal/booking"
	"skibook/internal/client"
	"skibook/internal/config"
	"skibook/internal/payment"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Handlers are the HTTP handlers the router mounts.
type Handlers struct {
	Client   *client.Handler
	Schedule *schedule.Handler
	Booking  *booking.Handler
	Payment  *payment.Handler
	Wallet   *wallet.Handler
	Bonus    *bonus.Handler

	// Checks are run by /health, keyed by dependency name.
	Checks map[string]Check
}

type Server struct {
	router   *gin.Engine
	http     *http.Server
	limiter  *RateLimiter
	webhooks *RateLimiter
}

func New(cfg *config.Config, h Handlers) *Server {
	// Probes skip limiting; webhooks are limited by their own bucket below.
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute,
		"/health", "/metrics", webhookPrefix)
	webhooks := NewRateLimiter(cfg.WebhookRateLimitRPS, cfg.WebhookRateLimitBurst, 3*time.Minute)

	router := gin.New()
	router.Use(
		RecoveryMiddleware(),
		RequestLoggingMiddleware(),
		MetricsMiddleware(),
		corsMiddleware(),
		limiter.Middleware(),
	)

	registerRoutes(router, cfg.JWTSecret, webhooks.Middleware(), h)

	return &Server{
		router:   router,
		limiter:  limiter,
		webhooks: webhooks,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

const webhookPrefix = "/payments/webhook/"

func registerRoutes(router *gin.Engine, jwtSecret string, webhookLimit gin.HandlerFunc, h Handlers) {
	router.GET("/health", health(h.Checks))
	router.GET("/metrics", metricsHandler())

	public := router.Group("/auth")
	{
		public.POST("/register", h.Client.Register)
		public.POST("/login", h.Client.Login)
		public.POST("/refresh", h.Client.Refresh)
	}

	payments := router.Group("/payments")
	{
		payments.POST("/webhook/:provider", webhookLimit, h.Payment.Webhook)
		payments.GET("/return", h.Payment.Return)
	}

	authMiddleware := auth.AuthMiddleware(jwtSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", h.Client.Me)
		protected.GET("/resources", h.Schedule.ListResources)
		protected.GET("/resources/:resourceID/slots", h.Schedule.ListSlots)
		protected.GET("/group-trainings", h.Schedule.ListGroupTrainings)
		protected.POST("/slots/:slotID/book", h.Booking.BookSlot)
		protected.POST("/slots/:slotID/checkout", h.Payment.Checkout)
		protected.DELETE("/checkouts/:orderID", h.Payment.CancelCheckout)
		protected.GET("/transactions/:orderID", h.Payment.GetTransaction)
		protected.POST("/group-trainings/:groupID/join", h.Booking.JoinGroup)
		protected.GET("/bookings", h.Booking.ListMine)
		protected.POST("/bookings/:bookingID/cancel", h.Booking.CancelBooking)
		protected.GET("/wallet", h.Wallet.GetBalance)
		protected.GET("/wallet/transactions", h.Wallet.ListTransactions)
		protected.GET("/bonuses", h.Bonus.ListMine)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/resources", h.Schedule.CreateResource)
		admin.POST("/slots/generate", h.Schedule.GenerateSlots)
		admin.POST("/blocks", h.Schedule.CreateBlock)
		admin.DELETE("/blocks/:blockID", h.Schedule.DeleteBlock)
		admin.POST("/group-trainings", h.Schedule.CreateGroupTraining)
		admin.POST("/bookings/:bookingID/complete", h.Booking.CompleteBooking)
		admin.GET("/slots/:slotID/bookings", h.Booking.ListBySlot)
		admin.POST("/wallets/:clientID/topup", h.Wallet.TopUp)
		admin.GET("/bonus-settings", h.Bonus.ListSettings)
		admin.POST("/bonus-settings", h.Bonus.CreateSetting)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	s.webhooks.Close()
	return s.http.Shutdown(ctx)
}
