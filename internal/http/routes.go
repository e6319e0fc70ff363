package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessions/internal/confessions"
	"github.com/sujalbistaa/confessions/internal/logging"
	"github.com/sujalbistaa/confessions/internal/ws"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Repo         *confessions.Repository
	Moderator    Moderator
	Hub          *ws.Hub
	Log          *zap.Logger
	CORSOrigin   string
	PostInterval time.Duration
	Cookies      CookiePolicy
}

// SetupRoutes configures all application routes and middleware. Background
// work started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, deps Deps) {

	// --- Dependencies ---
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	env := &Env{Repo: deps.Repo, Moderator: deps.Moderator, Log: deps.Log}

	// --- Middleware ---
	// Identity lives in cookies, so a credentialed cross-site front end needs
	// an explicit CORS origin and a SameSite=None cookie policy.
	router.Use(logging.AccessLog(deps.Log))
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := deps.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	// --- Rate Limiter Setup ---
	interval := deps.PostInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	limiter := NewIPRateLimiter(rate.Every(interval), rateLimitBurst)
	go limiter.RunPruner(ctx, pruneInterval)

	// --- API Routes ---
	api := router.Group("/api", IdentityMiddleware(deps.Log, deps.Cookies))
	{
		api.GET("/health", env.Health)
		api.GET("/me", env.GetMe)
		api.GET("/confessions", env.GetConfessions)
		api.GET("/confessions/daily", env.GetDailyPick)
		api.POST("/confessions", RateLimitMiddleware(limiter), env.CreateConfession)
		api.POST("/confessions/:id/reactions", env.React)
		api.POST("/confessions/:id/views", env.RecordView)
		api.POST("/confessions/:id/shares", env.RecordShare)
	}

	// --- WebSocket Route ---
	if deps.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			ws.ServeWs(deps.Hub, c.Writer, c.Request)
		})
	}
}

// Broadcaster turns repository events into websocket messages.
func Broadcaster(hub *ws.Hub) func(confessions.Event) {
	return func(e confessions.Event) {
		hub.Publish(ws.Message{Type: string(e.Type), Data: e})
	}
}
