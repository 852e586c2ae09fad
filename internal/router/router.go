package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/handler"
	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// calendarMaxAge lets calendar apps poll an export without hammering the API.
const calendarMaxAge = 15 * 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Simulation *handler.SimulationHandler
	Session    *handler.SessionHandler
	Result     *handler.ResultHandler
	Assignment *handler.AssignmentHandler
	Calendar   *handler.CalendarHandler
	Message    *handler.MessageHandler
	Me         *handler.MeHandler
	Cron       *handler.CronHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// Guards carries what the authentication middlewares need.
type Guards struct {
	Tokens   middleware.TokenValidator
	Accounts middleware.AccountChecker
	// Stop ends background upkeep of the rate limiter.
	Stop <-chan struct{}
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(guards Guards, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:      middleware.DefaultBrotliConfig.Quality,
		MinLength:    middleware.DefaultBrotliConfig.MinLength,
		SkipPrefixes: []string{"/ws/"},
	}))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", handlers.System.Ready)

	authenticated := []gin.HandlerFunc{
		middleware.RequireAuth(guards.Tokens),
		middleware.RequireActiveAccount(guards.Accounts),
	}

	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute)
	if guards.Stop != nil {
		go submitLimiter.Run(guards.Stop)
	}

	// ─── 1. Caller Group (any role) ────────────────────────────────────
	me := router.Group("/api/v1/me")
	me.Use(authenticated...)
	{
		me.GET("", handlers.Me.GetMe)
		me.GET("/notifications", handlers.Me.ListNotifications)
		me.POST("/notifications/:id/read", handlers.Me.MarkNotificationRead)
		me.POST("/devices", handlers.Me.RegisterDevice)
		me.DELETE("/devices/:token", handlers.Me.UnregisterDevice)
	}

	// ─── 2. Simulation Group (any role, gated by the access resolver) ──
	sims := router.Group("/api/v1/simulations/:id")
	sims.Use(authenticated...)
	{
		sims.GET("/paper", handlers.Simulation.GetPaper)
		sims.GET("/leaderboard", handlers.Result.GetLeaderboard)
		sims.GET("/calendar", middleware.CacheControl(calendarMaxAge), handlers.Calendar.ExportCalendar)
		sims.GET("/messages", handlers.Message.ListMessages)
		sims.POST("/messages", handlers.Message.PostMessage)

		live := sims.Group("", middleware.RequireStudent(), middleware.NoStore())
		live.POST("/start", handlers.Session.StartSession)
		live.GET("/session", handlers.Session.GetSession)
		live.POST("/submit", submitLimiter.Middleware(), handlers.Result.SubmitSimulation)
	}
	results := router.Group("/api/v1/results")
	results.Use(authenticated...)
	{
		results.GET("/:id", handlers.Result.GetResult)
	}

	// ─── 3. Student Group ──────────────────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(authenticated...)
	student.Use(middleware.RequireStudent())
	{
		student.GET("/assignments", handlers.Assignment.ListMyAssignments)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(authenticated...)
	ws.Use(middleware.RequireStudent())
	{
		ws.GET("/simulations/:id/stream", handlers.WS.SimulationStream)
	}

	// ─── 5. Staff Group ────────────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(authenticated...)
	admin.Use(middleware.RequireStaff())
	{
		admin.GET("/simulations", handlers.Simulation.ListSimulations)
		admin.POST("/simulations", handlers.Simulation.CreateSimulation)
		admin.GET("/simulations/:id", handlers.Simulation.GetSimulation)
		admin.POST("/simulations/:id/publish", handlers.Simulation.PublishSimulation)
		admin.POST("/simulations/:id/archive", handlers.Simulation.ArchiveSimulation)
		admin.GET("/simulations/:id/assignments", handlers.Assignment.ListSimulationAssignments)
		admin.POST("/simulations/:id/assignments", handlers.Assignment.CreateAssignment)
		admin.GET("/simulations/:id/results", handlers.Result.ListResults)
		admin.POST("/results/:id/review", handlers.Result.ReviewResult)
		admin.GET("/students/:id/assignments", handlers.Assignment.ListStudentAssignments)

		system := admin.Group("/system", middleware.RequireRole(model.RoleAdmin), middleware.NoStore())
		system.GET("", handlers.System.Metrics)
		system.GET("/metrics", handlers.System.MetricsStream)
	}

	// ─── 6. Cron Group (shared secret) ─────────────────────────────────
	cron := router.Group("/cron")
	cron.Use(middleware.RequireCronSecret(cfg.CronSecret, cfg.CronSecretHash))
	{
		cron.POST("/close-simulations", handlers.Cron.CloseSimulations)
		cron.POST("/expire-contracts", handlers.Cron.ExpireContracts)
	}

	return router
}
